// Package ingest is the driver that turns a project directory into graph
// rows: it walks the configured source tree, parses each file once, builds
// a project-wide import/symbol index so the Extractor can resolve
// cross-file references, and writes nodes/edges through the Store under
// content-hash short-circuiting and per-file invalidation (§4.8).
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/heefoo/codeloom/internal/astsrc"
	"github.com/heefoo/codeloom/internal/extractor"
	"github.com/heefoo/codeloom/internal/graphmodel"
	"github.com/heefoo/codeloom/internal/ident"
)

// DefaultExcludePatterns matches directories and files this driver never
// descends into or indexes, independent of any project-specific excludes a
// caller appends.
var DefaultExcludePatterns = []string{
	"node_modules", ".git", "dist", "build", "coverage", ".next", ".turbo",
	"*.min.js", "*.d.ts",
}

// sourceExtensions is the set of file extensions this driver's one concrete
// AST provider (astsrc.TypeScriptProvider, §0 of SPEC_FULL) understands.
var sourceExtensions = map[string]bool{".ts": true, ".tsx": true}

// Storage is the slice of store.Storage the driver writes through.
type Storage interface {
	AddNodes(ctx context.Context, nodes []graphmodel.Node) error
	AddEdges(ctx context.Context, edges []graphmodel.Edge) error
	RemoveFileNodes(ctx context.Context, path string) error
	DeleteFile(ctx context.Context, path string) error
	ClearAll(ctx context.Context) error
	NodesByFile(ctx context.Context, path string) ([]graphmodel.Node, error)
	UpsertEmbedding(ctx context.Context, nodeID string, vector []float32) error
}

// Embedder is the slice of embedding.Provider the driver needs to populate
// search_graph's optional topic path — generating a vector is best-effort:
// a failure here never fails the file it came from (§6.3, the search
// collaborator is optional).
type Embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// Config configures one ingestion run.
type Config struct {
	Provider        astsrc.Provider
	Storage         Storage
	Embedder        Embedder
	ExcludePatterns []string
}

// Status reports the outcome of a Run, mirroring §4.8's per-file error
// collection: a failed file never aborts the rest of the project.
type Status struct {
	Root          string
	FilesTotal    int
	FilesIndexed  int
	FilesSkipped  int
	FilesDeleted  int
	NodesTotal    int
	NodesCreated  int
	EdgesCreated  int
	Errors        []FileError
}

// FileError pairs a project-relative path with the error extracting or
// storing it produced.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

// ProgressFunc is invoked after each file finishes, successfully or not.
type ProgressFunc func(status Status)

// Driver orchestrates full and incremental indexing runs over one project
// root against one Storage.
type Driver struct {
	provider        astsrc.Provider
	storage         Storage
	embedder        Embedder
	excludePatterns []string
}

func New(cfg Config) *Driver {
	patterns := append([]string{}, DefaultExcludePatterns...)
	patterns = append(patterns, cfg.ExcludePatterns...)
	return &Driver{provider: cfg.Provider, storage: cfg.Storage, embedder: cfg.Embedder, excludePatterns: patterns}
}

// RunFull clears the store and reindexes every source file under root —
// §4.8 step 4.
func (d *Driver) RunFull(ctx context.Context, root string, progress ProgressFunc) (Status, error) {
	if err := d.storage.ClearAll(ctx); err != nil {
		return Status{}, fmt.Errorf("clear store: %w", err)
	}
	return d.run(ctx, root, nil, progress)
}

// RunIncremental reindexes only the given project-relative paths (used by
// the file watcher). Paths no longer present on disk are deleted via
// DeleteFile rather than extracted.
func (d *Driver) RunIncremental(ctx context.Context, root string, paths []string, progress ProgressFunc) (Status, error) {
	return d.run(ctx, root, paths, progress)
}

func (d *Driver) run(ctx context.Context, root string, only []string, progress ProgressFunc) (Status, error) {
	status := Status{Root: root}

	files, err := d.discoverFiles(root, only)
	if err != nil {
		return status, fmt.Errorf("discover files: %w", err)
	}
	status.FilesTotal = len(files)

	sources := make(map[string]*astsrc.SourceFile, len(files))
	relPaths := make([]string, 0, len(files))
	for _, abs := range files {
		rel := relPath(root, abs)
		content, err := os.ReadFile(abs)
		if err != nil {
			if only != nil && os.IsNotExist(err) {
				if derr := d.storage.DeleteFile(ctx, rel); derr != nil {
					status.Errors = append(status.Errors, FileError{Path: rel, Err: derr})
				} else {
					status.FilesDeleted++
				}
				continue
			}
			status.Errors = append(status.Errors, FileError{Path: rel, Err: err})
			continue
		}
		sf, err := d.provider.Parse(rel, content)
		if err != nil {
			status.Errors = append(status.Errors, FileError{Path: rel, Err: err})
			continue
		}
		sources[rel] = sf
		relPaths = append(relPaths, rel)
	}

	index := newProjectIndex(root, sources)

	sort.Strings(relPaths)
	for _, rel := range relPaths {
		sf := sources[rel]
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		default:
		}

		nodes, edges, err := extractor.Extract(extractor.ExtractionContext{FilePath: rel}, sf, index)
		if err != nil {
			status.Errors = append(status.Errors, FileError{Path: rel, Err: err})
			if progress != nil {
				progress(status)
			}
			continue
		}
		status.NodesTotal += len(nodes)

		unchanged, err := d.unchanged(ctx, rel, nodes)
		if err != nil {
			status.Errors = append(status.Errors, FileError{Path: rel, Err: err})
			if progress != nil {
				progress(status)
			}
			continue
		}
		if unchanged {
			status.FilesSkipped++
			if progress != nil {
				progress(status)
			}
			continue
		}

		if err := d.storage.RemoveFileNodes(ctx, rel); err != nil {
			status.Errors = append(status.Errors, FileError{Path: rel, Err: err})
			if progress != nil {
				progress(status)
			}
			continue
		}
		if err := d.storage.AddNodes(ctx, nodes); err != nil {
			status.Errors = append(status.Errors, FileError{Path: rel, Err: err})
			if progress != nil {
				progress(status)
			}
			continue
		}
		if err := d.storage.AddEdges(ctx, edges); err != nil {
			status.Errors = append(status.Errors, FileError{Path: rel, Err: err})
			if progress != nil {
				progress(status)
			}
			continue
		}

		if d.embedder != nil {
			d.embedNodes(ctx, rel, sf, nodes)
		}

		status.FilesIndexed++
		status.NodesCreated += len(nodes)
		status.EdgesCreated += len(edges)
		if progress != nil {
			progress(status)
		}
	}

	return status, nil
}

// embedNodes generates and stores an embedding for each node whose source
// declaration has a body, matching nodes back to their declaration text by
// ID. A failed or empty embedding result is skipped without logging, and an
// UpsertEmbedding error is ignored; neither is surfaced as a file error —
// the search collaborator is optional per §6.3.
func (d *Driver) embedNodes(ctx context.Context, rel string, sf *astsrc.SourceFile, nodes []graphmodel.Node) {
	textByID := make(map[string]string, len(sf.Declarations))
	for _, decl := range sf.Declarations {
		if decl.Text == "" {
			continue
		}
		textByID[ident.MakeID(rel, decl.Kind, decl.SymbolPath...)] = decl.Text
	}
	for _, n := range nodes {
		text, ok := textByID[n.ID]
		if !ok {
			continue
		}
		vec, err := d.embedder.EmbedSingle(ctx, text)
		if err != nil || len(vec) == 0 {
			continue
		}
		d.storage.UpsertEmbedding(ctx, n.ID, vec)
	}
}

// unchanged implements §8 property 3 (content-hash short-circuit): the file
// is skipped only if its new declaration set has exactly the same IDs and
// content hashes already stored.
func (d *Driver) unchanged(ctx context.Context, path string, nodes []graphmodel.Node) (bool, error) {
	existing, err := d.storage.NodesByFile(ctx, path)
	if err != nil {
		return false, err
	}
	if len(existing) != len(nodes) {
		return false, nil
	}
	byID := make(map[string]string, len(existing))
	for _, n := range existing {
		byID[n.ID] = n.ContentHash
	}
	for _, n := range nodes {
		hash, ok := byID[n.ID]
		if !ok || hash == "" || hash != n.ContentHash {
			return false, nil
		}
	}
	return true, nil
}

func (d *Driver) discoverFiles(root string, only []string) ([]string, error) {
	if only != nil {
		out := make([]string, 0, len(only))
		for _, p := range only {
			if filepath.IsAbs(p) {
				out = append(out, p)
			} else {
				out = append(out, filepath.Join(root, p))
			}
		}
		return out, nil
	}

	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		base := info.Name()
		if info.IsDir() {
			if base != "." && d.excluded(base) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.excluded(base) {
			return nil
		}
		if !sourceExtensions[strings.ToLower(filepath.Ext(base))] {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func (d *Driver) excluded(name string) bool {
	for _, pat := range d.excludePatterns {
		if name == pat {
			return true
		}
		if matched, _ := filepath.Match(pat, name); matched {
			return true
		}
	}
	return false
}

func relPath(root, abs string) string {
	r, err := filepath.Rel(root, abs)
	if err != nil {
		r = abs
	}
	return ident.NormalizePath(r)
}

// importBinding is one name a file's import statements bring into scope:
// either a single symbol bound to a declaration in another file, or a
// namespace import (exported == "*") standing for every top-level export of
// the target file.
type importBinding struct {
	file     string
	exported string
}

// projectIndex is the extractor.SymbolIndex built once per ingestion pass
// (§9: "per-file global state ... scoped to one ingestion pass"). It never
// touches the store — cross-file resolution is purely a function of the
// parsed sources in this run. Resolution goes through the import map §4.4
// describes: a name not declared locally is looked up through the binding
// this file's own import statements established for it.
type projectIndex struct {
	mu sync.RWMutex

	// declByFile maps a file path to its top-level declarations by name (for
	// named imports) and to the declarations visible under a namespace
	// import by file.
	declByFile    map[string]map[string]astsrc.Declaration
	importsByFile map[string]map[string]importBinding
	root          string
}

func newProjectIndex(root string, sources map[string]*astsrc.SourceFile) *projectIndex {
	idx := &projectIndex{
		root:          root,
		declByFile:    make(map[string]map[string]astsrc.Declaration, len(sources)),
		importsByFile: make(map[string]map[string]importBinding, len(sources)),
	}
	for path, sf := range sources {
		byName := make(map[string]astsrc.Declaration, len(sf.Declarations))
		for _, decl := range sf.Declarations {
			if decl.Kind == graphmodel.KindFile || len(decl.SymbolPath) != 1 {
				continue
			}
			byName[decl.Name] = decl
		}
		idx.declByFile[path] = byName
	}
	// bindings are resolved in a second pass so every file's declarations are
	// already indexed, regardless of map iteration order.
	for path, sf := range sources {
		bindings := map[string]importBinding{}
		for _, imp := range sf.Imports {
			target, ok := resolveModuleAgainst(idx.declByFile, path, imp.ModuleSpec)
			if !ok {
				continue
			}
			for _, s := range imp.Symbols {
				exported := s.ExportedName
				if exported == "" {
					exported = s.Name
				}
				bindings[s.Name] = importBinding{file: target, exported: exported}
			}
			if imp.Namespace != "" {
				bindings[imp.Namespace] = importBinding{file: target, exported: "*"}
			}
		}
		idx.importsByFile[path] = bindings
	}
	return idx
}

// LookupInFile resolves name against file's own top-level declarations,
// falling back to the binding file's own import statements established for
// name (§4.4's cross-file import map).
func (p *projectIndex) LookupInFile(file, name string) (string, graphmodel.NodeKind, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if byName, ok := p.declByFile[file]; ok {
		if d, ok := byName[name]; ok {
			return ident.MakeID(file, d.Kind, d.SymbolPath...), d.Kind, true
		}
	}
	binding, ok := p.importsByFile[file][name]
	if !ok || binding.exported == "*" {
		return "", "", false
	}
	byName, ok := p.declByFile[binding.file]
	if !ok {
		return "", "", false
	}
	d, ok := byName[binding.exported]
	if !ok {
		return "", "", false
	}
	return ident.MakeID(binding.file, d.Kind, d.SymbolPath...), d.Kind, true
}

// ResolveModule turns a relative module specifier into a project-relative
// file path by trying the extensions the TypeScript provider understands,
// then an index-file fallback. Bare specifiers (no leading "." or "/") are
// treated as outside the project and reported unresolved, matching §4.4's
// "cross-package types whose owning package is not indexed" rule.
func (p *projectIndex) ResolveModule(fromFile, moduleSpec string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return resolveModuleAgainst(p.declByFile, fromFile, moduleSpec)
}

func resolveModuleAgainst(declByFile map[string]map[string]astsrc.Declaration, fromFile, moduleSpec string) (string, bool) {
	if !strings.HasPrefix(moduleSpec, ".") && !strings.HasPrefix(moduleSpec, "/") {
		return "", false
	}
	dir := filepath.Dir(fromFile)
	joined := ident.NormalizePath(filepath.Join(dir, moduleSpec))

	candidates := []string{joined}
	for ext := range sourceExtensions {
		candidates = append(candidates, joined+ext)
	}
	for ext := range sourceExtensions {
		candidates = append(candidates, ident.NormalizePath(filepath.Join(joined, "index"+ext)))
	}
	for _, c := range candidates {
		if _, ok := declByFile[c]; ok {
			return c, true
		}
	}
	return "", false
}
