package loader

import (
	"sync"

	"pdf-chat-go/internal/model"
)

// Library 是以文件路径为键的文档集合。
// 单个文档的注册是原子的：读取方要么看到完整的文档，要么看不到。
// 文档本身在注册后不可变，只有重新扫描发现源文件被删除时才整体移除。
type Library struct {
	mu   sync.RWMutex
	docs map[string]model.Document
}

// NewLibrary 创建一个空的文档集合。
func NewLibrary() *Library {
	return &Library{docs: make(map[string]model.Document)}
}

// Put 注册一个完整构建好的文档。
func (l *Library) Put(doc model.Document) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs[doc.Path] = doc
}

// Get 按路径取回文档。
func (l *Library) Get(path string) (model.Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	doc, ok := l.docs[path]
	return doc, ok
}

// GetByMD5 按文件 MD5 取回文档。
func (l *Library) GetByMD5(fileMD5 string) (model.Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, doc := range l.docs {
		if doc.FileMD5 == fileMD5 {
			return doc, true
		}
	}
	return model.Document{}, false
}

// All 返回集合中所有文档的快照。
func (l *Library) All() []model.Document {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Document, 0, len(l.docs))
	for _, doc := range l.docs {
		out = append(out, doc)
	}
	return out
}

// Len 返回集合中的文档数量。
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.docs)
}

// RemoveAbsent 移除路径不在 seen 中的文档，返回被移除的文档。
func (l *Library) RemoveAbsent(seen map[string]struct{}) []model.Document {
	l.mu.Lock()
	defer l.mu.Unlock()
	var removed []model.Document
	for path, doc := range l.docs {
		if _, ok := seen[path]; !ok {
			removed = append(removed, doc)
			delete(l.docs, path)
		}
	}
	return removed
}
