package catalog

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads a catalog override file
type Watcher struct {
	catalog  *Catalog
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	done     chan struct{}
	once     sync.Once
	onReload func(error)
}

// Watch loads path into c and starts watching it for changes.
// onReload, if non-nil, is called after each reload attempt.
func Watch(c *Catalog, path string, onReload func(error)) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if err := c.LoadFile(absPath); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory; editors replace files rather than writing in place
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	w := &Watcher{
		catalog:  c,
		path:     absPath,
		watcher:  fw,
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
		onReload: onReload,
	}
	go w.loop()

	log.Printf("👁️  [CATALOG] Watching %s for changes (hot-reload enabled)", absPath)
	return w, nil
}

func (w *Watcher) loop() {
	filename := filepath.Base(w.path)
	var debounceTimer *time.Timer

	for {
		select {
		case <-w.done:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounce, w.reload)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  [CATALOG] File watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	log.Printf("🔄 [CATALOG] Detected changes in %s, reloading schemas...", w.path)
	err := w.catalog.LoadFile(w.path)
	if err != nil {
		log.Printf("❌ [CATALOG] Reload failed, keeping previous schemas: %v", err)
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

// Close stops watching
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
