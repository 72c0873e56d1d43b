package v4l2

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// WatchRemoval は path が削除されたら onRemoved を一度だけ呼ぶ
// 返り値の stop で監視を終了する
func WatchRemoval(path string, onRemoved func()) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ファイル監視の作成に失敗: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("%s の監視に失敗: %w", filepath.Dir(path), err)
	}

	target := filepath.Clean(path)
	done := make(chan struct{})
	go func() {
		removed := waitRemoval(watcher, target)
		close(done)
		if removed {
			onRemoved()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = watcher.Close()
			<-done
		})
	}, nil
}

func waitRemoval(watcher *fsnotify.Watcher, target string) bool {
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return false
			}
			if filepath.Clean(ev.Name) == target && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				return true
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return false
			}
		}
	}
}
