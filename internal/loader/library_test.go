package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-chat-go/internal/model"
)

func TestLibrary_PutAndGet(t *testing.T) {
	lib := NewLibrary()
	doc := model.Document{FileMD5: "md5-a", Path: "/kb/a.pdf", Title: "a.pdf", Text: "text a"}
	lib.Put(doc)

	got, ok := lib.Get("/kb/a.pdf")
	require.True(t, ok)
	assert.Equal(t, doc, got)

	byMD5, ok := lib.GetByMD5("md5-a")
	require.True(t, ok)
	assert.Equal(t, doc, byMD5)

	_, ok = lib.Get("/kb/missing.pdf")
	assert.False(t, ok)
}

func TestLibrary_PutReplacesSamePath(t *testing.T) {
	lib := NewLibrary()
	lib.Put(model.Document{FileMD5: "v1", Path: "/kb/a.pdf", Text: "old"})
	lib.Put(model.Document{FileMD5: "v2", Path: "/kb/a.pdf", Text: "new"})

	assert.Equal(t, 1, lib.Len())
	got, _ := lib.Get("/kb/a.pdf")
	assert.Equal(t, "new", got.Text)

	_, ok := lib.GetByMD5("v1")
	assert.False(t, ok)
}

func TestLibrary_RemoveAbsent(t *testing.T) {
	lib := NewLibrary()
	lib.Put(model.Document{FileMD5: "m1", Path: "/kb/a.pdf"})
	lib.Put(model.Document{FileMD5: "m2", Path: "/kb/b.pdf"})

	removed := lib.RemoveAbsent(map[string]struct{}{"/kb/a.pdf": {}})

	require.Len(t, removed, 1)
	assert.Equal(t, "m2", removed[0].FileMD5)
	assert.Equal(t, 1, lib.Len())
}
