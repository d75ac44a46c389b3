// Package loader 实现了知识库文件夹的扫描与文档注册。
package loader

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pdf-chat-go/internal/config"
	"pdf-chat-go/internal/model"
	"pdf-chat-go/pkg/log"
	"pdf-chat-go/pkg/tasks"
)

// Extractor 定义了从文件中提取纯文本的能力。
type Extractor interface {
	ExtractText(path string) (string, error)
}

// Indexer 定义了文档集合对应的检索索引的维护操作。
// IndexDocument 对单个文档是原子的：读取方不会看到写到一半的文档。
type Indexer interface {
	IndexDocument(doc model.Document) error
	RemoveDocument(fileMD5 string)
}

// Deps 汇集了扫描过程中的可选旁路依赖，未设置的成员会被跳过。
type Deps struct {
	// Fallback 是本地提取失败或无文本时的兜底提取器（如 Tika）。
	Fallback Extractor
	// Publish 将已接受的文档作为处理任务发送到消息队列。
	Publish func(task tasks.DocumentTask) error
	// Archive 将已接受的文档归档到对象存储。
	Archive func(ctx context.Context, doc model.Document) error
	// Record 持久化文档元数据。
	Record func(ctx context.Context, doc model.Document) error
	// OnRemove 在重新扫描发现源文件被删除时清理持久化状态与外部索引。
	OnRemove func(ctx context.Context, fileMD5 string) error
}

// Loader 在启动时扫描配置的文件夹，对每个合格的 PDF 提取文本并注册为文档。
// 扫描是顺序的一次性操作；重新扫描时源文件已消失的文档会被移除。
type Loader struct {
	cfg       config.LoaderConfig
	extractor Extractor
	indexer   Indexer
	deps      Deps
	library   *Library
}

// New 创建一个新的 Loader 实例。
func New(cfg config.LoaderConfig, extractor Extractor, indexer Indexer, deps Deps) *Loader {
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 50
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".pdf"}
	}
	return &Loader{
		cfg:       cfg,
		extractor: extractor,
		indexer:   indexer,
		deps:      deps,
		library:   NewLibrary(),
	}
}

// Library 返回扫描产出的文档集合，供下游问答组件按引用持有。
func (l *Loader) Library() *Library {
	return l.library
}

// Scan 枚举知识库文件夹并注册所有合格的 PDF 文档。
// 单个文件的校验失败或提取失败只记录告警并跳过，不会中断整个扫描。
// 文件夹不存在或为空不是错误，产出零个文档。
func (l *Loader) Scan(ctx context.Context) error {
	folder := l.cfg.FolderPath
	log.Infof("[Loader] 开始扫描知识库文件夹: %s", folder)

	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		log.Infof("[Loader] 文件夹 '%s' 不存在或不可用，本轮产出 0 个文档", folder)
		l.removeMissing(ctx, map[string]struct{}{})
		return nil
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return fmt.Errorf("读取知识库文件夹失败: %w", err)
	}

	maxBytes := l.cfg.MaxFileSizeMB * 1024 * 1024
	seen := make(map[string]struct{}, len(entries))
	accepted := 0

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		path := filepath.Join(folder, name)

		if !l.supportedExtension(name) {
			log.Warnf("[Loader] 跳过不支持的文件类型: %s", name)
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			log.Warnf("[Loader] 读取文件信息失败, 跳过: %s, err=%v", name, err)
			continue
		}
		if fi.Size() > maxBytes {
			log.Warnf("[Loader] 文件超过大小上限 (%dMB), 跳过: %s (%d 字节)", l.cfg.MaxFileSizeMB, name, fi.Size())
			continue
		}

		seen[path] = struct{}{}

		// 已注册且未变化的文件不重复处理（按 mtime+size 粗判，内容以 MD5 为准）
		if existing, ok := l.library.Get(path); ok && existing.Size == fi.Size() {
			continue
		}

		doc, err := l.loadOne(ctx, path, name, fi.Size())
		if err != nil {
			log.Warnf("[Loader] 文件处理失败, 跳过: %s, err=%v", name, err)
			continue
		}

		l.register(ctx, doc)
		accepted++
	}

	l.removeMissing(ctx, seen)

	log.Infof("[Loader] 扫描完成: 新注册 %d 个文档, 集合现有 %d 个文档", accepted, l.library.Len())
	return nil
}

// loadOne 对单个文件做校验后的提取，构建完整的 Document。
func (l *Loader) loadOne(ctx context.Context, path, name string, size int64) (model.Document, error) {
	fileMD5, err := fileMD5Sum(path)
	if err != nil {
		return model.Document{}, fmt.Errorf("计算文件 MD5 失败: %w", err)
	}

	text, err := l.extractor.ExtractText(path)
	if (err != nil || strings.TrimSpace(text) == "") && l.deps.Fallback != nil {
		if err != nil {
			log.Warnf("[Loader] 本地提取失败, 尝试兜底提取器: %s, err=%v", name, err)
		} else {
			log.Warnf("[Loader] 本地提取无文本, 尝试兜底提取器: %s", name)
		}
		text, err = l.deps.Fallback.ExtractText(path)
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("文本提取失败: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return model.Document{}, fmt.Errorf("未提取到任何文本（可能是扫描件）")
	}

	return model.Document{
		FileMD5:     fileMD5,
		Path:        path,
		Title:       name,
		Text:        strings.TrimSpace(text),
		Size:        size,
		ExtractedAt: time.Now(),
	}, nil
}

// register 将文档写入集合与索引，并触发旁路动作。
// 集合与索引的写入对单个文档是原子的；旁路失败只记录告警。
func (l *Loader) register(ctx context.Context, doc model.Document) {
	if err := l.indexer.IndexDocument(doc); err != nil {
		log.Warnf("[Loader] 索引文档失败: %s, err=%v", doc.Title, err)
		return
	}
	l.library.Put(doc)
	log.Infof("[Loader] 已注册文档: %s (md5=%s, %d 字符)", doc.Title, doc.FileMD5, len(doc.Text))

	if l.deps.Record != nil {
		if err := l.deps.Record(ctx, doc); err != nil {
			log.Warnf("[Loader] 持久化文档元数据失败: %s, err=%v", doc.Title, err)
		}
	}
	if l.deps.Archive != nil {
		if err := l.deps.Archive(ctx, doc); err != nil {
			log.Warnf("[Loader] 归档文档失败: %s, err=%v", doc.Title, err)
		}
	}
	if l.deps.Publish != nil {
		task := tasks.DocumentTask{
			FileMD5:  doc.FileMD5,
			Path:     doc.Path,
			FileName: doc.Title,
			Size:     doc.Size,
		}
		if err := l.deps.Publish(task); err != nil {
			log.Warnf("[Loader] 发送文档处理任务失败: %s, err=%v", doc.Title, err)
		}
	}
}

// removeMissing 移除源文件已不存在的文档，保证索引条目只引用仍然存在的文档。
func (l *Loader) removeMissing(ctx context.Context, seen map[string]struct{}) {
	removed := l.library.RemoveAbsent(seen)
	for _, doc := range removed {
		l.indexer.RemoveDocument(doc.FileMD5)
		log.Infof("[Loader] 源文件已删除, 移除文档: %s (md5=%s)", doc.Title, doc.FileMD5)
		if l.deps.OnRemove != nil {
			if err := l.deps.OnRemove(ctx, doc.FileMD5); err != nil {
				log.Warnf("[Loader] 清理已删除文档的持久化状态失败: %s, err=%v", doc.Title, err)
			}
		}
	}
}

// supportedExtension 检查文件扩展名是否在允许列表内（大小写不敏感）。
func (l *Loader) supportedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range l.cfg.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// fileMD5Sum 计算文件内容的 MD5。
func fileMD5Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
