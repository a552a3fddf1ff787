package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/heefoo/codeloom/internal/astsrc"
	"github.com/heefoo/codeloom/internal/graphmodel"
	"github.com/heefoo/codeloom/internal/ingest"
)

type fakeProvider struct{}

func (fakeProvider) Parse(path string, content []byte) (*astsrc.SourceFile, error) {
	return &astsrc.SourceFile{Path: path, Extension: filepath.Ext(path)}, nil
}

type fakeStorage struct{}

func (fakeStorage) AddNodes(ctx context.Context, nodes []graphmodel.Node) error   { return nil }
func (fakeStorage) AddEdges(ctx context.Context, edges []graphmodel.Edge) error   { return nil }
func (fakeStorage) RemoveFileNodes(ctx context.Context, path string) error        { return nil }
func (fakeStorage) DeleteFile(ctx context.Context, path string) error             { return nil }
func (fakeStorage) ClearAll(ctx context.Context) error                            { return nil }
func (fakeStorage) NodesByFile(ctx context.Context, path string) ([]graphmodel.Node, error) {
	return nil, nil
}
func (fakeStorage) UpsertEmbedding(ctx context.Context, nodeID string, vector []float32) error {
	return nil
}

func testDriver() *ingest.Driver {
	return ingest.New(ingest.Config{Provider: fakeProvider{}, Storage: fakeStorage{}})
}

// TestWatcherStopCleanup verifies that calling Stop() properly cleans up
// watcher goroutines and doesn't cause leaks.
func TestWatcherStopCleanup(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "watcher_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	testFile := filepath.Join(tmpDir, "test.ts")
	if err := os.WriteFile(testFile, []byte("export function foo() {}\n"), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	w, err := NewWatcher(WatcherConfig{
		Driver:     testDriver(),
		Root:       tmpDir,
		DebounceMs: 10,
	})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	watchDone := make(chan struct{})
	go func() {
		w.Watch(ctx, []string{tmpDir})
		close(watchDone)
	}()

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(testFile, []byte("export function bar() {}\n"), 0o644); err != nil {
		t.Logf("Warning: Failed to modify test file: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	cancel()
	w.Stop()

	select {
	case <-watchDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Watcher did not stop within 5 seconds - likely goroutine leak")
	}

	time.Sleep(100 * time.Millisecond)
}

// TestWatcherExcludesNonSourceAndIgnoredPaths verifies shouldExclude and the
// extension filter keep non-TypeScript churn (and excluded directories) from
// ever reaching the debounce queue.
func TestWatcherExcludesNonSourceAndIgnoredPaths(t *testing.T) {
	w, err := NewWatcher(WatcherConfig{
		Driver:          testDriver(),
		Root:            t.TempDir(),
		ExcludePatterns: []string{"node_modules"},
		DebounceMs:      10,
	})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}

	if !w.shouldExclude(filepath.Join("proj", "node_modules", "lib", "index.ts")) {
		t.Error("shouldExclude() = false, want true for a node_modules path")
	}
	if w.shouldExclude(filepath.Join("proj", "src", "index.ts")) {
		t.Error("shouldExclude() = true, want false for a normal source path")
	}
}

// TestWatcherDebounceCoalescesBurstsIntoOneReindex verifies several rapid
// writes to the same file collapse into a single RunIncremental call once
// the debounce window elapses.
func TestWatcherDebounceCoalescesBurstsIntoOneReindex(t *testing.T) {
	dir := t.TempDir()
	testFile := filepath.Join(dir, "test.ts")
	if err := os.WriteFile(testFile, []byte("export function foo() {}\n"), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	w, err := NewWatcher(WatcherConfig{
		Driver:     testDriver(),
		Root:       dir,
		DebounceMs: 1,
	})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}

	w.queueFile(testFile)
	w.queueFile(testFile)
	w.mu.Lock()
	pending := len(w.pendingFiles)
	w.mu.Unlock()
	if pending != 1 {
		t.Errorf("pendingFiles size = %d, want 1 (coalesced)", pending)
	}

	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.processPending(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pendingFiles) != 0 {
		t.Errorf("pendingFiles not drained after processPending, got %v", w.pendingFiles)
	}
}
