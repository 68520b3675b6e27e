package sections

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kayz/stageprompt/internal/logger"
	"github.com/kayz/stageprompt/internal/metrics"
)

const defaultDebounce = 300 * time.Millisecond

// Watcher reloads a catalog when its backing directory or YAML file changes.
// A reload that fails validation keeps the previous catalog in service.
type Watcher struct {
	path     string
	isDir    bool
	load     func() (*Catalog, error)
	onReload func(*Catalog)
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher watches path, a sections directory or a sections YAML file.
// load rebuilds the catalog; onReload receives every catalog that loads.
func NewWatcher(path string, load func() (*Catalog, error), onReload func(*Catalog)) (*Watcher, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("watch sections %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		isDir:    info.IsDir(),
		load:     load,
		onReload: onReload,
		debounce: defaultDebounce,
		watcher:  fw,
	}
	// Editors often replace files on save, so a single file is watched through
	// its directory.
	target := w.path
	if !w.isDir {
		target = filepath.Dir(w.path)
	}
	if err := fw.Add(target); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch sections %s: %w", target, err)
	}
	return w, nil
}

// Run processes change events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	logger.Info("Watching sections at %s", w.path)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			logger.Debug("Sections changed: %s (%s)", event.Name, event.Op)
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Sections watcher error: %v", err)
		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Clean(event.Name)
	if w.isDir {
		return strings.HasSuffix(name, ".md")
	}
	return name == w.path
}

func (w *Watcher) reload() {
	cat, err := w.load()
	if err != nil {
		metrics.CatalogReloads.WithLabelValues("failed").Inc()
		logger.Warn("Section reload failed, keeping current catalog: %v", err)
		return
	}
	metrics.CatalogReloads.WithLabelValues("ok").Inc()
	logger.Info("Reloaded %d sections from %s", cat.Len(), w.path)
	w.onReload(cat)
}

// Close releases the watcher without running it. Run closes it on return.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
