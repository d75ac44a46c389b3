package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-chat-go/internal/config"
	"pdf-chat-go/internal/model"
	"pdf-chat-go/pkg/tasks"
)

// stubExtractor 按路径返回预置文本或错误。
type stubExtractor struct {
	texts map[string]string // 文件名 -> 文本
	errs  map[string]error  // 文件名 -> 错误
}

func (s *stubExtractor) ExtractText(path string) (string, error) {
	name := filepath.Base(path)
	if err, ok := s.errs[name]; ok {
		return "", err
	}
	return s.texts[name], nil
}

// stubIndexer 记录索引与移除调用。
type stubIndexer struct {
	indexed map[string]string // fileMD5 -> text
	removed []string
	failFor string // 文件标题等于该值时索引失败
}

func newStubIndexer() *stubIndexer {
	return &stubIndexer{indexed: make(map[string]string)}
}

func (s *stubIndexer) IndexDocument(doc model.Document) error {
	if s.failFor != "" && doc.Title == s.failFor {
		return errors.New("index unavailable")
	}
	s.indexed[doc.FileMD5] = doc.Text
	return nil
}

func (s *stubIndexer) RemoveDocument(fileMD5 string) {
	s.removed = append(s.removed, fileMD5)
	delete(s.indexed, fileMD5)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(folder string) config.LoaderConfig {
	return config.LoaderConfig{
		FolderPath:    folder,
		MaxFileSizeMB: 50,
		Extensions:    []string{".pdf"},
	}
}

func TestScan_RegistersEachValidPDF(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.pdf", "raw-a")
	writeFile(t, dir, "b.pdf", "raw-b")

	extractor := &stubExtractor{texts: map[string]string{
		"a.pdf": "文档 A 的内容",
		"b.pdf": "document B content",
	}}
	l := New(testConfig(dir), extractor, newStubIndexer(), Deps{})

	require.NoError(t, l.Scan(context.Background()))

	assert.Equal(t, 2, l.Library().Len())
	for _, doc := range l.Library().All() {
		assert.NotEmpty(t, doc.Text)
		assert.NotEmpty(t, doc.FileMD5)
		assert.False(t, doc.ExtractedAt.IsZero())
	}

	docA, ok := l.Library().Get(filepath.Join(dir, "a.pdf"))
	require.True(t, ok)
	assert.Equal(t, "a.pdf", docA.Title)
	assert.Equal(t, "文档 A 的内容", docA.Text)
	assert.Equal(t, int64(len("raw-a")), docA.Size)
}

func TestScan_SkipsUnsupportedExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "plain text")
	writeFile(t, dir, "data.json", "{}")
	writeFile(t, dir, "Report.PDF", "raw") // 扩展名大小写不敏感

	extractor := &stubExtractor{texts: map[string]string{"Report.PDF": "report text"}}
	l := New(testConfig(dir), extractor, newStubIndexer(), Deps{})

	require.NoError(t, l.Scan(context.Background()))

	assert.Equal(t, 1, l.Library().Len())
	_, ok := l.Library().Get(filepath.Join(dir, "Report.PDF"))
	assert.True(t, ok)
}

func TestScan_SkipsOversizedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "big.pdf", string(make([]byte, 2*1024*1024)))
	writeFile(t, dir, "small.pdf", "raw")

	cfg := testConfig(dir)
	cfg.MaxFileSizeMB = 1

	extractor := &stubExtractor{texts: map[string]string{
		"big.pdf":   "should never be read",
		"small.pdf": "small text",
	}}
	l := New(cfg, extractor, newStubIndexer(), Deps{})

	require.NoError(t, l.Scan(context.Background()))

	assert.Equal(t, 1, l.Library().Len())
	_, ok := l.Library().Get(filepath.Join(dir, "small.pdf"))
	assert.True(t, ok)
}

func TestScan_SkipsFileWhenExtractionFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.pdf", "raw")
	writeFile(t, dir, "corrupt.pdf", "raw")

	extractor := &stubExtractor{
		texts: map[string]string{"good.pdf": "good text"},
		errs:  map[string]error{"corrupt.pdf": errors.New("malformed xref")},
	}
	l := New(testConfig(dir), extractor, newStubIndexer(), Deps{})

	// 单个文件失败不中断扫描
	require.NoError(t, l.Scan(context.Background()))

	assert.Equal(t, 1, l.Library().Len())
	_, ok := l.Library().Get(filepath.Join(dir, "corrupt.pdf"))
	assert.False(t, ok)
}

func TestScan_SkipsScannedPDFWithoutText(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "scan.pdf", "raw")

	extractor := &stubExtractor{texts: map[string]string{"scan.pdf": "   \n  "}}
	l := New(testConfig(dir), extractor, newStubIndexer(), Deps{})

	require.NoError(t, l.Scan(context.Background()))
	assert.Equal(t, 0, l.Library().Len())
}

func TestScan_UsesFallbackExtractor(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tricky.pdf", "raw")

	primary := &stubExtractor{errs: map[string]error{"tricky.pdf": errors.New("parse error")}}
	fallback := &stubExtractor{texts: map[string]string{"tricky.pdf": "fallback text"}}
	l := New(testConfig(dir), primary, newStubIndexer(), Deps{Fallback: fallback})

	require.NoError(t, l.Scan(context.Background()))

	doc, ok := l.Library().Get(filepath.Join(dir, "tricky.pdf"))
	require.True(t, ok)
	assert.Equal(t, "fallback text", doc.Text)
}

func TestScan_MissingFolderYieldsZeroDocuments(t *testing.T) {
	l := New(testConfig("/nonexistent/folder"), &stubExtractor{}, newStubIndexer(), Deps{})
	require.NoError(t, l.Scan(context.Background()))
	assert.Equal(t, 0, l.Library().Len())
}

func TestScan_EmptyFolderYieldsZeroDocuments(t *testing.T) {
	l := New(testConfig(t.TempDir()), &stubExtractor{}, newStubIndexer(), Deps{})
	require.NoError(t, l.Scan(context.Background()))
	assert.Equal(t, 0, l.Library().Len())
}

func TestScan_IgnoresSubdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested.pdf"), 0o755))
	writeFile(t, dir, "top.pdf", "raw")

	extractor := &stubExtractor{texts: map[string]string{"top.pdf": "top text"}}
	l := New(testConfig(dir), extractor, newStubIndexer(), Deps{})

	require.NoError(t, l.Scan(context.Background()))
	assert.Equal(t, 1, l.Library().Len())
}

func TestScan_RescanRemovesDeletedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.pdf", "raw")
	gone := writeFile(t, dir, "gone.pdf", "raw")

	extractor := &stubExtractor{texts: map[string]string{
		"keep.pdf": "keep text",
		"gone.pdf": "gone text",
	}}
	indexer := newStubIndexer()

	var removedMD5s []string
	deps := Deps{OnRemove: func(ctx context.Context, fileMD5 string) error {
		removedMD5s = append(removedMD5s, fileMD5)
		return nil
	}}
	l := New(testConfig(dir), extractor, indexer, deps)

	require.NoError(t, l.Scan(context.Background()))
	require.Equal(t, 2, l.Library().Len())

	goneDoc, ok := l.Library().Get(gone)
	require.True(t, ok)

	require.NoError(t, os.Remove(gone))
	require.NoError(t, l.Scan(context.Background()))

	assert.Equal(t, 1, l.Library().Len())
	_, ok = l.Library().Get(gone)
	assert.False(t, ok)
	assert.Equal(t, []string{goneDoc.FileMD5}, indexer.removed)
	assert.Equal(t, []string{goneDoc.FileMD5}, removedMD5s)
}

func TestScan_UnchangedFilesNotReprocessed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stable.pdf", "raw")

	extractor := &stubExtractor{texts: map[string]string{"stable.pdf": "stable text"}}
	var published []tasks.DocumentTask
	deps := Deps{Publish: func(task tasks.DocumentTask) error {
		published = append(published, task)
		return nil
	}}
	l := New(testConfig(dir), extractor, newStubIndexer(), deps)

	require.NoError(t, l.Scan(context.Background()))
	require.NoError(t, l.Scan(context.Background()))

	assert.Len(t, published, 1)
	assert.Equal(t, "stable.pdf", published[0].FileName)
}

func TestScan_IndexFailureKeepsDocumentOut(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.pdf", "raw")

	extractor := &stubExtractor{texts: map[string]string{"doc.pdf": "some text"}}
	indexer := newStubIndexer()
	indexer.failFor = "doc.pdf"
	l := New(testConfig(dir), extractor, indexer, Deps{})

	require.NoError(t, l.Scan(context.Background()))

	// 索引失败时文档不进入集合，读取方不会看到写到一半的文档
	assert.Equal(t, 0, l.Library().Len())
}

func TestScan_SidecarFailuresDoNotBlockRegistration(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.pdf", "raw")

	extractor := &stubExtractor{texts: map[string]string{"doc.pdf": "some text"}}
	deps := Deps{
		Publish: func(tasks.DocumentTask) error { return errors.New("broker down") },
		Archive: func(context.Context, model.Document) error { return errors.New("bucket down") },
		Record:  func(context.Context, model.Document) error { return errors.New("db down") },
	}
	l := New(testConfig(dir), extractor, newStubIndexer(), deps)

	require.NoError(t, l.Scan(context.Background()))
	assert.Equal(t, 1, l.Library().Len())
}
