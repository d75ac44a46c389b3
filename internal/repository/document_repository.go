// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"pdf-chat-go/internal/model"
)

// DocumentRepository 接口定义了文档元数据的持久化操作。
type DocumentRepository interface {
	Upsert(record *model.PDFDocument) error
	UpdateStatus(fileMD5 string, status int, processingError string) error
	DeleteByMD5(fileMD5 string) error
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Upsert 按文件 MD5 创建或更新一条文档元数据记录。
func (r *documentRepository) Upsert(record *model.PDFDocument) error {
	var existing model.PDFDocument
	err := r.db.Where("file_md5 = ?", record.FileMD5).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(record).Error
	}
	if err != nil {
		return err
	}
	record.ID = existing.ID
	record.CreatedAt = existing.CreatedAt
	return r.db.Save(record).Error
}

// UpdateStatus 更新指定文档的处理状态；处理成功时写入完成时间。
func (r *documentRepository) UpdateStatus(fileMD5 string, status int, processingError string) error {
	updates := map[string]interface{}{
		"status":           status,
		"processing_error": processingError,
	}
	if status == model.DocumentStatusProcessed {
		now := time.Now()
		updates["processed_at"] = &now
	}
	return r.db.Model(&model.PDFDocument{}).Where("file_md5 = ?", fileMD5).Updates(updates).Error
}

// DeleteByMD5 删除一条文档记录，连同其分块记录。
func (r *documentRepository) DeleteByMD5(fileMD5 string) error {
	if err := r.db.Where("file_md5 = ?", fileMD5).Delete(&model.DocumentChunk{}).Error; err != nil {
		return err
	}
	return r.db.Where("file_md5 = ?", fileMD5).Delete(&model.PDFDocument{}).Error
}
