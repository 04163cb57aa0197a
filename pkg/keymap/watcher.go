package keymap

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a keymap file when it changes and hands the parsed
// result to a callback. Reload failures keep the previous keymap; a
// broken edit must never take down running sessions.
type Watcher struct {
	path     string
	onReload func(Keymap)
	fsw      *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher watches path and invokes onReload with each successfully
// parsed keymap. The watch is registered on the parent directory so
// editors that replace the file (rename-over) are still observed.
func NewWatcher(path string, onReload func(Keymap)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create keymap watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch keymap directory: %w", err)
	}

	w := &Watcher{
		path:     path,
		onReload: onReload,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	target := filepath.Clean(w.path)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			km, err := LoadFile(w.path)
			if err != nil {
				log.Printf("Keymap reload failed, keeping previous keymap: %v", err)
				continue
			}
			w.onReload(km)
			log.Printf("Keymap reloaded: path=%s entries=%d", w.path, len(km))

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("Keymap watcher error: %v", err)

		case <-w.done:
			return
		}
	}
}

// Close stops watching. Safe to call once.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
