// Package watcher 监听知识库文件夹的变化，触发增量重扫描。
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"pdf-chat-go/pkg/log"
)

// debounceInterval 是事件合并窗口：编辑器写文件往往产生连续多个事件，
// 在窗口内只触发一次重扫描。
const debounceInterval = 2 * time.Second

// Watcher 监听单个文件夹，文件发生变化时调用 rescan 回调。
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	folderPath string
	extensions []string
	rescan     func(ctx context.Context)
}

// New 创建一个文件夹监听器。extensions 为空时监听所有文件。
func New(folderPath string, extensions []string, rescan func(ctx context.Context)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsWatcher:  fsWatcher,
		folderPath: folderPath,
		extensions: extensions,
		rescan:     rescan,
	}, nil
}

// Run 开始监听，阻塞直到 ctx 被取消。
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.fsWatcher.Add(w.folderPath); err != nil {
		return err
	}
	defer w.fsWatcher.Close()

	log.Infof("[Watcher] 开始监听文件夹: %s", w.folderPath)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			log.Infof("[Watcher] 检测到文件变化: %s (%s)", event.Name, event.Op)
			// 重置合并窗口
			if timer == nil {
				timer = time.NewTimer(debounceInterval)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounceInterval)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			log.Info("[Watcher] 变化合并窗口结束，触发重扫描")
			w.rescan(ctx)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("[Watcher] 监听出错: %s", err)
		}
	}
}

// relevant 判断事件是否与知识库文件相关。
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	for _, e := range w.extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
