package daemon

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/heefoo/codeloom/internal/ingest"
	"github.com/heefoo/codeloom/internal/util"
)

// Watcher fsnotify-watches a set of directories and reindexes changed files
// through an ingest.Driver, debouncing bursts of events (editors routinely
// fire several Write events per save) into a single RunIncremental call per
// settled file.
type Watcher struct {
	watcher         *fsnotify.Watcher
	driver          *ingest.Driver
	root            string
	excludePatterns []string
	debounceMs      atomic.Int64
	indexTimeoutMs  atomic.Int64
	mu              sync.Mutex
	pendingFiles    map[string]time.Time
	stopCh          chan struct{}
	stopOnce        sync.Once
}

type WatcherConfig struct {
	Driver          *ingest.Driver
	Root            string
	ExcludePatterns []string
	DebounceMs      int
	IndexTimeoutMs  int
}

func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounceMs := cfg.DebounceMs
	if debounceMs == 0 {
		debounceMs = 100
	}

	indexTimeoutMs := cfg.IndexTimeoutMs
	if indexTimeoutMs == 0 {
		indexTimeoutMs = 60000
	}

	w := &Watcher{
		watcher:         fsWatcher,
		driver:          cfg.Driver,
		root:            cfg.Root,
		excludePatterns: cfg.ExcludePatterns,
		pendingFiles:    make(map[string]time.Time),
		stopCh:          make(chan struct{}),
	}
	w.debounceMs.Store(int64(debounceMs))
	w.indexTimeoutMs.Store(int64(indexTimeoutMs))
	return w, nil
}

func (w *Watcher) Watch(ctx context.Context, dirs []string) error {
	for _, dir := range dirs {
		if err := w.addDirRecursive(dir); err != nil {
			log.Printf("Warning: failed to watch %s: %v", dir, err)
		}
	}

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
}

func (w *Watcher) addDirRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if w.shouldExclude(path) {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) shouldExclude(path string) bool {
	name := filepath.Base(path)
	for _, pattern := range w.excludePatterns {
		if util.MatchPattern(pattern, name) {
			return true
		}
		currentPath := path
		for currentPath != "." && currentPath != "/" {
			base := filepath.Base(currentPath)
			if util.MatchPattern(pattern, base) {
				return true
			}
			currentPath = filepath.Dir(currentPath)
		}
	}
	return false
}

var watchedExtensions = map[string]bool{".ts": true, ".tsx": true}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.shouldExclude(event.Name) {
		return
	}
	if !watchedExtensions[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}

	switch {
	case event.Op&fsnotify.Write == fsnotify.Write,
		event.Op&fsnotify.Create == fsnotify.Create,
		event.Op&fsnotify.Remove == fsnotify.Remove,
		event.Op&fsnotify.Rename == fsnotify.Rename:
		w.queueFile(event.Name)
	}
}

func (w *Watcher) queueFile(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pendingFiles[path] = time.Now()
}

func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(w.debounceMs.Load()) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

func (w *Watcher) processPending(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	debounceThreshold := time.Duration(w.debounceMs.Load()) * time.Millisecond

	var toProcess []string
	for path, queuedAt := range w.pendingFiles {
		if now.Sub(queuedAt) >= debounceThreshold {
			toProcess = append(toProcess, path)
			delete(w.pendingFiles, path)
		}
	}
	w.mu.Unlock()

	if len(toProcess) == 0 {
		return
	}

	rel := make([]string, 0, len(toProcess))
	for _, abs := range toProcess {
		r, err := filepath.Rel(w.root, abs)
		if err != nil {
			r = abs
		}
		rel = append(rel, r)
	}

	indexCtx, cancel := context.WithTimeout(ctx, time.Duration(w.indexTimeoutMs.Load())*time.Millisecond)
	defer cancel()

	status, err := w.driver.RunIncremental(indexCtx, w.root, rel, nil)
	if err != nil {
		log.Printf("Warning: incremental reindex failed: %v", err)
		return
	}
	for _, fe := range status.Errors {
		log.Printf("Warning: failed to index %s: %v", fe.Path, fe.Err)
	}
	log.Printf("Reindexed %d file(s), deleted %d, skipped %d unchanged", status.FilesIndexed, status.FilesDeleted, status.FilesSkipped)
}
