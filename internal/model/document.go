// Package model 定义了应用中的数据模型。
package model

import "time"

// Document 表示一个已摄取的 PDF：提取出的纯文本加上元数据。
// 在注册进文档集合后不可变，只有重新扫描发现源文件被删除时才会移除。
type Document struct {
	// FileMD5 是文件内容的 MD5，作为文档的稳定标识。
	FileMD5 string `json:"fileMd5"`
	// Path 是知识库文件夹中的源文件路径，也是集合中的主键。
	Path string `json:"path"`
	// Title 是展示用标题，取文件名。
	Title string `json:"title"`
	// Text 是提取出的纯文本内容。
	Text string `json:"-"`
	// Size 是源文件字节数。
	Size int64 `json:"size"`
	// ExtractedAt 是文本提取完成的时间戳。
	ExtractedAt time.Time `json:"extractedAt"`
}

// PDFDocument 对应于数据库中的 'pdf_documents' 表。
// 它记录了每个已摄取文件的元数据和处理状态。
type PDFDocument struct {
	ID              uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	FileMD5         string     `gorm:"type:varchar(32);not null;uniqueIndex" json:"fileMd5"`
	FileName        string     `gorm:"type:varchar(255);not null" json:"fileName"`
	FilePath        string     `gorm:"type:varchar(500);not null" json:"filePath"`
	FileSize        int64      `gorm:"not null" json:"fileSize"`
	Status          int        `gorm:"type:tinyint;not null;default:0" json:"status"` // 0: pending, 1: processed, 2: failed
	ProcessingError string     `gorm:"type:text" json:"processingError"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	ProcessedAt     *time.Time `gorm:"default:null" json:"processedAt"`
}

// 处理状态常量，与 pdf_documents.status 对应。
const (
	DocumentStatusPending   = 0
	DocumentStatusProcessed = 1
	DocumentStatusFailed    = 2
)

// TableName 指定了此模型在数据库中对应的表名。
func (PDFDocument) TableName() string {
	return "pdf_documents"
}
