package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelevant_FiltersByExtension(t *testing.T) {
	w := &Watcher{extensions: []string{".pdf"}}

	assert.True(t, w.relevant(fsnotify.Event{Name: "/kb/a.pdf", Op: fsnotify.Create}))
	assert.True(t, w.relevant(fsnotify.Event{Name: "/kb/A.PDF", Op: fsnotify.Write}))
	assert.True(t, w.relevant(fsnotify.Event{Name: "/kb/a.pdf", Op: fsnotify.Remove}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/kb/a.txt", Op: fsnotify.Create}))
	// chmod 不触发重扫描
	assert.False(t, w.relevant(fsnotify.Event{Name: "/kb/a.pdf", Op: fsnotify.Chmod}))
}

func TestRelevant_NoExtensionsMatchesAll(t *testing.T) {
	w := &Watcher{}
	assert.True(t, w.relevant(fsnotify.Event{Name: "/kb/anything.bin", Op: fsnotify.Write}))
}

func TestWatcher_TriggersRescanAfterDebounce(t *testing.T) {
	dir := t.TempDir()

	rescanned := make(chan struct{}, 1)
	w, err := New(dir, []string{".pdf"}, func(ctx context.Context) {
		select {
		case rescanned <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// 等待监听器就绪
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.pdf"), []byte("%PDF"), 0o644))

	select {
	case <-rescanned:
	case <-time.After(10 * time.Second):
		t.Fatal("重扫描未在合并窗口结束后触发")
	}
}
