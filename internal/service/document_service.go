// Package service 包含了应用的业务逻辑层。
package service

import (
	"fmt"
	"sort"
	"time"

	"pdf-chat-go/internal/config"
	"pdf-chat-go/internal/loader"
	"pdf-chat-go/internal/model"
	"pdf-chat-go/pkg/storage"
)

// DocumentInfoDTO 是文档列表项，隐藏全文内容只保留元数据。
type DocumentInfoDTO struct {
	FileMD5     string    `json:"fileMd5"`
	Title       string    `json:"title"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ExtractedAt time.Time `json:"extractedAt"`
}

// DownloadInfoDTO 封装了归档文件下载链接所需的信息。
type DownloadInfoDTO struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
	FileSize    int64  `json:"fileSize"`
}

// DocumentService 接口定义了文档集合的查询操作，供下游问答组件使用。
type DocumentService interface {
	ListDocuments() []DocumentInfoDTO
	GetDocument(fileMD5 string) (model.Document, error)
	GenerateDownloadURL(fileMD5 string) (*DownloadInfoDTO, error)
}

type documentService struct {
	library  *loader.Library
	minioCfg config.MinIOConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(library *loader.Library, minioCfg config.MinIOConfig) DocumentService {
	return &documentService{
		library:  library,
		minioCfg: minioCfg,
	}
}

// ListDocuments 返回文档集合的元数据列表，按标题排序。
func (s *documentService) ListDocuments() []DocumentInfoDTO {
	docs := s.library.All()
	out := make([]DocumentInfoDTO, 0, len(docs))
	for _, doc := range docs {
		out = append(out, DocumentInfoDTO{
			FileMD5:     doc.FileMD5,
			Title:       doc.Title,
			Path:        doc.Path,
			Size:        doc.Size,
			ExtractedAt: doc.ExtractedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

// GetDocument 按文件 MD5 取回完整文档（含提取文本）。
func (s *documentService) GetDocument(fileMD5 string) (model.Document, error) {
	doc, ok := s.library.GetByMD5(fileMD5)
	if !ok {
		return model.Document{}, fmt.Errorf("文档不存在: %s", fileMD5)
	}
	return doc, nil
}

// GenerateDownloadURL 为已归档的源 PDF 生成临时下载链接。
func (s *documentService) GenerateDownloadURL(fileMD5 string) (*DownloadInfoDTO, error) {
	if !s.minioCfg.Enabled {
		return nil, fmt.Errorf("对象存储未启用")
	}
	doc, ok := s.library.GetByMD5(fileMD5)
	if !ok {
		return nil, fmt.Errorf("文档不存在: %s", fileMD5)
	}

	objectName := storage.ArchiveObjectName(doc.FileMD5, doc.Title)
	url, err := storage.GetPresignedURL(s.minioCfg.BucketName, objectName, 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("生成下载链接失败: %w", err)
	}
	return &DownloadInfoDTO{
		FileName:    doc.Title,
		DownloadURL: url,
		FileSize:    doc.Size,
	}, nil
}
