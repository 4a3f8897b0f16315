package orchestrator

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchSet 按目录维护存档目录监听，每次刷新按目录字符串做差集
type WatchSet struct {
	watcher *fsnotify.Watcher
	dirs    map[string]struct{}
	log     *zap.Logger
}

// NewWatchSet 创建目录监听集合
func NewWatchSet(log *zap.Logger) (*WatchSet, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &WatchSet{watcher: w, dirs: make(map[string]struct{}), log: log}, nil
}

// Events 文件事件通道
func (w *WatchSet) Events() <-chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.watcher.Events
}

// Errors 监听错误通道
func (w *WatchSet) Errors() <-chan error {
	if w == nil {
		return nil
	}
	return w.watcher.Errors
}

// Sync 保留仍需要的监听，移除多余的，只为已存在的目录新建监听
func (w *WatchSet) Sync(dirs []string) {
	want := make(map[string]struct{}, len(dirs))
	for _, d := range dirs {
		if d == "" {
			continue
		}
		want[filepath.Clean(d)] = struct{}{}
	}

	for d := range w.dirs {
		if _, ok := want[d]; ok {
			continue
		}
		if err := w.watcher.Remove(d); err != nil {
			w.log.Debug("移除目录监听失败", zap.String("dir", d), zap.Error(err))
		}
		delete(w.dirs, d)
		w.log.Info("停止监听存档目录", zap.String("dir", d))
	}

	for d := range want {
		if _, ok := w.dirs[d]; ok {
			continue
		}
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			// 目录不存在时下次刷新再试
			continue
		}
		if err := w.watcher.Add(d); err != nil {
			w.log.Warn("添加目录监听失败", zap.String("dir", d), zap.Error(err))
			continue
		}
		w.dirs[d] = struct{}{}
		w.log.Info("开始监听存档目录", zap.String("dir", d))
	}
}

// Dirs 当前监听的目录（已排序）
func (w *WatchSet) Dirs() []string {
	out := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Close 释放全部监听
func (w *WatchSet) Close() error {
	w.dirs = make(map[string]struct{})
	return w.watcher.Close()
}
