package hyperbox

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/hyperdesk/hyperdesk/internal/logger"
)

// EventType classifies a filesystem change.
type EventType string

const (
	EventCreated  EventType = "created"
	EventModified EventType = "modified"
)

// EventFunc receives watcher callbacks. It is invoked from the watcher
// goroutine; implementations must hand off to their own scheduling.
type EventFunc func(eventType EventType, path string)

// Watcher emits created/modified events for files under the hyperbox root,
// recursively. Directory events are consumed internally: new directories are
// added to the watch set, never reported. Start and Stop are idempotent.
type Watcher struct {
	root     string
	callback EventFunc

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher returns a watcher for root. The callback fires for every
// non-directory create or write.
func NewWatcher(root string, callback EventFunc) *Watcher {
	return &Watcher{root: root, callback: callback}
}

// Start begins watching. A second Start without a Stop is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := addRecursive(watcher, w.root); err != nil {
		watcher.Close()
		return err
	}

	w.watcher = watcher
	w.done = make(chan struct{})
	go w.run(watcher, w.done)
	logger.Info("hyperbox watcher started", logger.Path(w.root))
	return nil
}

// Stop halts the watcher and waits for the event loop to exit. A Stop
// without a Start is a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	watcher := w.watcher
	done := w.done
	w.watcher = nil
	w.done = nil
	w.mu.Unlock()

	if watcher == nil {
		return
	}
	watcher.Close()
	<-done
}

func (w *Watcher) run(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handle(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("filesystem watcher error", logger.Err(err))
		}
	}
}

func (w *Watcher) handle(watcher *fsnotify.Watcher, event fsnotify.Event) {
	info, err := os.Stat(event.Name)
	if err != nil {
		// Removed or renamed away before we could look; nothing to report.
		return
	}

	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := addRecursive(watcher, event.Name); err != nil {
				logger.Warn("failed to watch new directory",
					logger.Path(event.Name), logger.Err(err))
			}
		}
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		w.callback(EventCreated, event.Name)
	case event.Has(fsnotify.Write):
		w.callback(EventModified, event.Name)
	}
}

// addRecursive registers dir and every subdirectory below it.
func addRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
