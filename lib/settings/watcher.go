package settings

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/focusfinder/server/lib/logger"
)

// Rapid write+rename sequences collapse into one reload.
const watchDebounce = 200 * time.Millisecond

// Watcher notifies about out-of-band edits of the settings file (manual edits
// or another process), the file-system analog of a storage change listener.
type Watcher struct {
	store     *FileStore
	watcher   *fsnotify.Watcher
	onChange  func(Settings)
	closeOnce sync.Once
}

// Watch starts watching the store's directory and invokes onChange with the
// reloaded settings after each modification of the settings file. It returns
// once the watch is registered; delivery happens on a background goroutine
// until ctx is canceled.
func Watch(ctx context.Context, store *FileStore, onChange func(Settings)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: atomic saves replace the inode.
	if err := fsw.Add(filepath.Dir(store.Path())); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{store: store, watcher: fsw, onChange: onChange}
	go w.run(ctx)
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	log := logger.FromContext(ctx)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	target := filepath.Clean(w.store.Path())
	for {
		select {
		case <-ctx.Done():
			w.Close()
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				s, _, err := w.store.Load()
				if err != nil {
					log.Error("failed to reload settings after change", "err", err)
					return
				}
				w.onChange(s)
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error("settings watcher error", "err", err)
		}
	}
}

// Close stops the underlying fsnotify.Watcher exactly once.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		_ = w.watcher.Close()
	})
}
