// Package index 提供进程内的分块倒排索引，作为默认的检索后端。
// 不依赖任何外部服务，适合单机部署与测试。
package index

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"pdf-chat-go/internal/model"
)

// chunkEntry 是索引中的一个条目：某个文档的一段文本及其词频。
type chunkEntry struct {
	fileMD5  string
	fileName string
	chunkID  int
	text     string
	terms    map[string]int
}

// MemoryIndex 以文档为单位维护分块条目，按查询词重合度打分检索。
// 单个文档的索引写入是原子的：检索方不会看到只写了一半的文档。
type MemoryIndex struct {
	mu           sync.RWMutex
	docs         map[string][]chunkEntry // fileMD5 -> 分块条目
	chunkSize    int
	chunkOverlap int
}

// NewMemoryIndex 创建一个进程内索引。
func NewMemoryIndex(chunkSize, chunkOverlap int) *MemoryIndex {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 100
	}
	return &MemoryIndex{
		docs:         make(map[string][]chunkEntry),
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// IndexDocument 切分文档文本并替换该文档的全部索引条目。
func (m *MemoryIndex) IndexDocument(doc model.Document) error {
	chunks := splitText(doc.Text, m.chunkSize, m.chunkOverlap)
	entries := make([]chunkEntry, 0, len(chunks))
	for i, chunk := range chunks {
		entries = append(entries, chunkEntry{
			fileMD5:  doc.FileMD5,
			fileName: doc.Title,
			chunkID:  i,
			text:     chunk,
			terms:    termFrequencies(chunk),
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.FileMD5] = entries
	return nil
}

// RemoveDocument 移除指定文档的全部索引条目。
func (m *MemoryIndex) RemoveDocument(fileMD5 string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, fileMD5)
}

// Len 返回当前索引的分块条目总数。
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, entries := range m.docs {
		n += len(entries)
	}
	return n
}

// Retrieve 按查询词与分块的重合度打分，返回得分最高的 topK 个分块。
// 得分 = 命中的查询词个数，同分时按词频合计排序。
func (m *MemoryIndex) Retrieve(ctx context.Context, query string, topK int) ([]model.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	queryTerms := queryTokens(query)
	if len(queryTerms) == 0 {
		return []model.SearchResult{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		entry   chunkEntry
		overlap int
		freq    int
	}
	var candidates []scored
	for _, entries := range m.docs {
		for _, e := range entries {
			overlap, freq := 0, 0
			for _, term := range queryTerms {
				if n, ok := e.terms[term]; ok {
					overlap++
					freq += n
				}
			}
			if overlap > 0 {
				candidates = append(candidates, scored{entry: e, overlap: overlap, freq: freq})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		return candidates[i].freq > candidates[j].freq
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]model.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, model.SearchResult{
			FileMD5:     c.entry.fileMD5,
			FileName:    c.entry.fileName,
			ChunkID:     c.entry.chunkID,
			TextContent: c.entry.text,
			Score:       float64(c.overlap) + float64(c.freq)/1000,
		})
	}
	return results, nil
}

// splitText 将长文本按指定大小（按字符计）和重叠切分，尽量在词边界断开。
func splitText(text string, chunkSize, chunkOverlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}

		// 尽量在词边界断开
		if end < len(runes) {
			for i := end - 1; i > start; i-- {
				if unicode.IsSpace(runes[i]) {
					end = i
					break
				}
			}
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
		// 回退重叠量，但必须保证向前推进
		next := end - chunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// termFrequencies 统计分块中各词项的出现次数。
func termFrequencies(text string) map[string]int {
	freq := make(map[string]int)
	for _, term := range tokenize(text) {
		freq[term]++
	}
	return freq
}

// queryTokens 提取查询中的有效词项并去重。
func queryTokens(query string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, term := range tokenize(query) {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}

// tokenize 将文本切成小写词项：英文/数字按边界切分并过滤过短的词，
// 中文按单字切分。
func tokenize(text string) []string {
	var tokens []string
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		runes := []rune(f)
		hasHan := false
		for _, r := range runes {
			if unicode.Is(unicode.Han, r) {
				hasHan = true
				break
			}
		}
		if hasHan {
			for _, r := range runes {
				tokens = append(tokens, string(r))
			}
			continue
		}
		if len(runes) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
