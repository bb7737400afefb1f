// ABOUTME: IndexWatcher hot-reloads the vector index when its directory is replaced
// ABOUTME: Watches the parent directory because saves swap the index directory in with a rename
package core

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce coalesces the burst of events produced by one save
const DefaultReloadDebounce = 250 * time.Millisecond

// IndexWatcher reloads an index after its directory changes on disk
type IndexWatcher struct {
	index    *VectorIndex
	dir      string
	debounce time.Duration

	// OnReload is called after every reload attempt with its result
	OnReload func(err error)

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// NewIndexWatcher creates a watcher for the index persisted at dir
func NewIndexWatcher(index *VectorIndex, dir string) *IndexWatcher {
	return &IndexWatcher{
		index:    index,
		dir:      filepath.Clean(dir),
		debounce: DefaultReloadDebounce,
		done:     make(chan struct{}),
	}
}

// Start begins watching. The watch is registered before Start returns; the
// event loop runs until ctx is cancelled or Close is called.
func (w *IndexWatcher) Start(ctx context.Context) error {
	parent := filepath.Dir(w.dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("failed to create index parent directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(parent); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", parent, err)
	}
	w.watcher = watcher

	log.Printf("[Index] Watching %s for changes", w.dir)
	go w.loop(ctx)
	return nil
}

// Close stops the watcher and waits for the event loop to exit
func (w *IndexWatcher) Close() error {
	var err error
	w.once.Do(func() {
		if w.watcher != nil {
			err = w.watcher.Close()
			<-w.done
		}
	})
	return err
}

func (w *IndexWatcher) loop(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Index] Watcher error: %v", err)
		case <-timer.C:
			w.reload()
		}
	}
}

// relevant reports whether event created, replaced or moved the index directory
func (w *IndexWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.dir {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0
}

func (w *IndexWatcher) reload() {
	err := w.index.Reload(w.dir)
	if err != nil {
		log.Printf("[Index] Reload failed, keeping current index: %v", err)
	}
	if w.OnReload != nil {
		w.OnReload(err)
	}
}
