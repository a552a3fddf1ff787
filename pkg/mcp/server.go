package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/heefoo/codeloom/internal/astsrc"
	"github.com/heefoo/codeloom/internal/config"
	"github.com/heefoo/codeloom/internal/daemon"
	"github.com/heefoo/codeloom/internal/embedding"
	"github.com/heefoo/codeloom/internal/ingest"
	"github.com/heefoo/codeloom/internal/query"
	"github.com/heefoo/codeloom/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wires internal/query's four entry points and internal/ingest's
// driver onto an MCP tool surface. Storage and the embedding provider are
// connected lazily on first use so the process can start (and answer
// health/ready checks) before a database is reachable.
type Server struct {
	config *config.Config
	mcp    *server.MCPServer

	mu          sync.RWMutex
	storage     *store.Storage
	embedding   embedding.Provider
	embeddingOK bool
	projectRoot string

	watcher     *daemon.Watcher
	watchCancel context.CancelFunc
}

type ServerConfig struct {
	Config *config.Config
}

func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		config:      cfg.Config,
		projectRoot: ".",
	}

	mcpServer := server.NewMCPServer(
		"codeloom",
		"0.1.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)
	s.mcp = mcpServer
	return s
}

// ensureStorage connects to the configured store on first use and runs its
// migrations. Subsequent calls reuse the same connection.
func (s *Server) ensureStorage(ctx context.Context) (*store.Storage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.storage != nil {
		return s.storage, nil
	}

	st, err := store.NewStorage(s.config.Database.SurrealDB)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := st.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("run schema migrations: %w", err)
	}
	s.storage = st
	return st, nil
}

// ensureEmbedding lazily builds the embedding provider. The first attempt
// sets embeddingOK whatever its outcome, so after a failure callers degrade
// to "unavailable" without retrying the connection on every query.
func (s *Server) ensureEmbedding() embedding.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embedding != nil || s.embeddingOK {
		return s.embedding
	}
	s.embeddingOK = true

	provider, err := embedding.NewProvider(s.config.Embedding)
	if err != nil {
		log.Printf("Warning: embedding provider not available: %v", err)
		return nil
	}
	s.embedding = provider
	return provider
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.Tool{
		Name: "index_directory",
		Description: `Parse a TypeScript directory and (re)build the code graph from scratch.

Call this before dependencies_of, dependents_of, paths_between, or search_graph —
those tools read whatever was last indexed. Indexing clears and rewrites the
whole graph; it does not merge with a previous run.

Example: {"directory": "./src", "exclude_patterns": ["test"]}`,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"directory": map[string]interface{}{
					"type":        "string",
					"description": "Path to the TypeScript project root to index",
				},
				"exclude_patterns": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Additional glob patterns to exclude (node_modules, dist, .git are always excluded)",
				},
				"skip_embeddings": map[string]interface{}{
					"type":        "boolean",
					"description": "Skip embedding generation (search_graph's topic path will be unavailable)",
					"default":     false,
				},
			},
			Required: []string{"directory"},
		},
	}, s.handleIndexDirectory)

	mcpServer.AddTool(mcp.Tool{
		Name: "dependencies_of",
		Description: `Find everything a symbol depends on (calls, references, extends/implements, type usage).

Resolves symbol (optionally scoped to file) against the indexed graph and
walks forward from it. Returns the "## Graph" / "## Nodes" text view plus a
Mermaid flowchart.

Example: {"symbol": "UserService.save", "file": "src/services/user.ts"}`,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"symbol":    map[string]interface{}{"type": "string", "description": "Symbol name to resolve, e.g. 'save' or 'UserService.save'"},
				"file":      map[string]interface{}{"type": "string", "description": "Project-relative file path to scope resolution to, if known"},
				"max_depth": map[string]interface{}{"type": "integer", "description": "Maximum traversal depth"},
				"max_nodes": map[string]interface{}{"type": "integer", "description": "Truncate the result to at most this many nodes"},
			},
			Required: []string{"symbol"},
		},
	}, s.handleDependenciesOf)

	mcpServer.AddTool(mcp.Tool{
		Name: "dependents_of",
		Description: `Find everything that depends on a symbol — the reverse of dependencies_of.

Example: {"symbol": "UserService"}`,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"symbol":    map[string]interface{}{"type": "string", "description": "Symbol name to resolve"},
				"file":      map[string]interface{}{"type": "string", "description": "Project-relative file path to scope resolution to, if known"},
				"max_depth": map[string]interface{}{"type": "integer", "description": "Maximum traversal depth"},
				"max_nodes": map[string]interface{}{"type": "integer", "description": "Truncate the result to at most this many nodes"},
			},
			Required: []string{"symbol"},
		},
	}, s.handleDependentsOf)

	mcpServer.AddTool(mcp.Tool{
		Name: "paths_between",
		Description: `Find the shortest dependency path between two symbols.

Tries a forward search from from_symbol to to_symbol first, then falls back
to a reverse search. A direct edge always wins over a longer indirect path.

Example: {"from_symbol": "main", "to_symbol": "Database.query"}`,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"from_symbol": map[string]interface{}{"type": "string", "description": "Starting symbol name"},
				"from_file":   map[string]interface{}{"type": "string", "description": "File to scope from_symbol to, if known"},
				"to_symbol":   map[string]interface{}{"type": "string", "description": "Target symbol name"},
				"to_file":     map[string]interface{}{"type": "string", "description": "File to scope to_symbol to, if known"},
				"max_depth":   map[string]interface{}{"type": "integer", "description": "Maximum search depth"},
				"max_nodes":   map[string]interface{}{"type": "integer", "description": "Truncate the result to at most this many nodes"},
			},
			Required: []string{"from_symbol", "to_symbol"},
		},
	}, s.handlePathsBetween)

	mcpServer.AddTool(mcp.Tool{
		Name: "search_graph",
		Description: `Connect a set of seed symbols into the minimal subgraph linking them.

Give either two named symbols (from_symbol/to_symbol) or a free-text topic —
topic defers to the embedding search collaborator to resolve seed nodes, and
requires the index to have been built without skip_embeddings.

Example: {"topic": "payment processing"}`,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"from_symbol": map[string]interface{}{"type": "string", "description": "First seed symbol name"},
				"from_file":   map[string]interface{}{"type": "string", "description": "File to scope from_symbol to, if known"},
				"to_symbol":   map[string]interface{}{"type": "string", "description": "Second seed symbol name"},
				"to_file":     map[string]interface{}{"type": "string", "description": "File to scope to_symbol to, if known"},
				"topic":       map[string]interface{}{"type": "string", "description": "Free-text description to resolve seeds from via semantic search"},
				"max_depth":   map[string]interface{}{"type": "integer", "description": "Maximum search depth"},
				"max_nodes":   map[string]interface{}{"type": "integer", "description": "Truncate the result to at most this many nodes"},
			},
		},
	}, s.handleSearchGraph)
}

// ==========================================================================
// TOOL HANDLERS
// ==========================================================================

func (s *Server) handleIndexDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, ok := request.Params.Arguments["directory"].(string)
	if !ok || dir == "" {
		return errorResult("directory argument must be a string")
	}

	var excludePatterns []string
	if patterns, ok := request.Params.Arguments["exclude_patterns"].([]interface{}); ok {
		for _, p := range patterns {
			if ps, ok := p.(string); ok {
				excludePatterns = append(excludePatterns, ps)
			}
		}
	}

	skipEmbeddings := false
	if v, ok := request.Params.Arguments["skip_embeddings"].(bool); ok {
		skipEmbeddings = v
	}

	st, err := s.ensureStorage(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to connect to database: %v", err))
	}

	var embedder ingest.Embedder
	if !skipEmbeddings {
		if provider := s.ensureEmbedding(); provider != nil {
			embedder = provider
		}
	}

	driver := ingest.New(ingest.Config{
		Provider:        astsrc.NewTypeScriptProvider(),
		Storage:         st,
		Embedder:        embedder,
		ExcludePatterns: excludePatterns,
	})

	status, err := driver.RunFull(ctx, dir, nil)
	if err != nil {
		return errorResult(fmt.Sprintf("indexing failed: %v", err))
	}

	s.mu.Lock()
	s.projectRoot = dir
	s.mu.Unlock()

	result := map[string]interface{}{
		"directory":      dir,
		"files_total":    status.FilesTotal,
		"files_indexed":  status.FilesIndexed,
		"files_skipped":  status.FilesSkipped,
		"files_deleted":  status.FilesDeleted,
		"nodes_total":    status.NodesTotal,
		"nodes_created":  status.NodesCreated,
		"edges_created":  status.EdgesCreated,
		"errors_count":   len(status.Errors),
	}
	return jsonResult(result)
}

func (s *Server) handleDependenciesOf(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	symbol, ok := request.Params.Arguments["symbol"].(string)
	if !ok || symbol == "" {
		return errorResult("symbol argument must be a string")
	}
	file, _ := request.Params.Arguments["file"].(string)

	st, err := s.ensureStorage(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to connect to database: %v", err))
	}

	ref := query.SymbolRef{FilePath: file, Symbol: symbol}
	result, err := query.Dependencies(ctx, st, s.projectRootSnapshot(), ref, queryOptions(request))
	if err != nil {
		return errorResult(fmt.Sprintf("query failed: %v", err))
	}
	return graphResult(result)
}

func (s *Server) handleDependentsOf(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	symbol, ok := request.Params.Arguments["symbol"].(string)
	if !ok || symbol == "" {
		return errorResult("symbol argument must be a string")
	}
	file, _ := request.Params.Arguments["file"].(string)

	st, err := s.ensureStorage(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to connect to database: %v", err))
	}

	ref := query.SymbolRef{FilePath: file, Symbol: symbol}
	result, err := query.Dependents(ctx, st, s.projectRootSnapshot(), ref, queryOptions(request))
	if err != nil {
		return errorResult(fmt.Sprintf("query failed: %v", err))
	}
	return graphResult(result)
}

func (s *Server) handlePathsBetween(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fromSymbol, ok := request.Params.Arguments["from_symbol"].(string)
	if !ok || fromSymbol == "" {
		return errorResult("from_symbol argument must be a string")
	}
	toSymbol, ok := request.Params.Arguments["to_symbol"].(string)
	if !ok || toSymbol == "" {
		return errorResult("to_symbol argument must be a string")
	}
	fromFile, _ := request.Params.Arguments["from_file"].(string)
	toFile, _ := request.Params.Arguments["to_file"].(string)

	st, err := s.ensureStorage(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to connect to database: %v", err))
	}

	from := query.SymbolRef{FilePath: fromFile, Symbol: fromSymbol}
	to := query.SymbolRef{FilePath: toFile, Symbol: toSymbol}
	result, err := query.PathsBetween(ctx, st, s.projectRootSnapshot(), from, to, queryOptions(request))
	if err != nil {
		return errorResult(fmt.Sprintf("query failed: %v", err))
	}
	return graphResult(result)
}

func (s *Server) handleSearchGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fromSymbol, _ := request.Params.Arguments["from_symbol"].(string)
	toSymbol, _ := request.Params.Arguments["to_symbol"].(string)
	topic, _ := request.Params.Arguments["topic"].(string)

	if fromSymbol == "" && toSymbol == "" && topic == "" {
		return errorResult("one of from_symbol/to_symbol or topic is required")
	}

	st, err := s.ensureStorage(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to connect to database: %v", err))
	}

	seedQuery := query.SeedQuery{}
	if fromSymbol != "" {
		fromFile, _ := request.Params.Arguments["from_file"].(string)
		seedQuery.From = &query.SymbolRef{FilePath: fromFile, Symbol: fromSymbol}
	}
	if toSymbol != "" {
		toFile, _ := request.Params.Arguments["to_file"].(string)
		seedQuery.To = &query.SymbolRef{FilePath: toFile, Symbol: toSymbol}
	}

	if topic != "" {
		provider := s.ensureEmbedding()
		if provider == nil {
			return errorResult("embedding provider not available; re-index without skip_embeddings to enable topic search")
		}
		vec, err := provider.EmbedSingle(ctx, topic)
		if err != nil {
			return errorResult(fmt.Sprintf("failed to embed topic: %v", err))
		}
		ids, err := st.SearchEmbeddings(ctx, vec, 10)
		if err != nil {
			return errorResult(fmt.Sprintf("search failed: %v", err))
		}
		seedQuery.Seeds = ids
	}

	result, err := query.SearchGraph(ctx, st, s.projectRootSnapshot(), seedQuery, queryOptions(request))
	if err != nil {
		return errorResult(fmt.Sprintf("query failed: %v", err))
	}
	return graphResult(result)
}

// ==========================================================================
// HELPERS
// ==========================================================================

func (s *Server) projectRootSnapshot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectRoot
}

func queryOptions(request mcp.CallToolRequest) query.Options {
	var opts query.Options
	if v, ok := request.Params.Arguments["max_depth"].(float64); ok {
		opts.MaxDepth = int(v)
	}
	if v, ok := request.Params.Arguments["max_nodes"].(float64); ok {
		opts.MaxNodes = int(v)
	}
	return opts
}

// graphResult renders a query.Result as two text blocks — the graph/nodes
// view spec.md's byte-stable strings come from, and the Mermaid diagram —
// so a caller gets both without re-running the query.
func graphResult(result query.Result) (*mcp.CallToolResult, error) {
	content := []mcp.Content{mcp.TextContent{Type: "text", Text: result.Text}}
	if result.Mermaid != "" {
		content = append(content, mcp.TextContent{Type: "text", Text: result.Mermaid})
	}
	return &mcp.CallToolResult{Content: content}, nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(jsonBytes)}},
	}, nil
}

func errorResult(msg string) (*mcp.CallToolResult, error) {
	result := map[string]interface{}{
		"error":   true,
		"message": msg,
	}
	jsonBytes, _ := json.Marshal(result)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
		IsError: true,
	}, nil
}

// ==========================================================================
// WATCHING
// ==========================================================================

// StartWatching connects storage, builds an ingest.Driver, and runs a
// fsnotify-backed watcher in the background that reindexes changed files
// under dirs[0]. Only one watch session runs at a time; calling this again
// stops the previous one.
func (s *Server) StartWatching(ctx context.Context, dirs []string) error {
	if len(dirs) == 0 {
		return fmt.Errorf("no directories to watch")
	}

	st, err := s.ensureStorage(ctx)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	driver := ingest.New(ingest.Config{
		Provider: astsrc.NewTypeScriptProvider(),
		Storage:  st,
		Embedder: s.ensureEmbedding(),
	})

	debounceMs := 100
	indexTimeoutMs := 60000
	if s.config != nil {
		if s.config.Server.WatcherDebounceMs > 0 {
			debounceMs = s.config.Server.WatcherDebounceMs
		}
		if s.config.Server.IndexTimeoutMs > 0 {
			indexTimeoutMs = s.config.Server.IndexTimeoutMs
		}
	}

	watcher, err := daemon.NewWatcher(daemon.WatcherConfig{
		Driver:         driver,
		Root:           dirs[0],
		DebounceMs:     debounceMs,
		IndexTimeoutMs: indexTimeoutMs,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.watcher != nil {
		s.watcher.Stop()
		s.watchCancel()
	}
	s.watcher = watcher
	s.watchCancel = cancel
	s.projectRoot = dirs[0]
	s.mu.Unlock()

	go func() {
		if err := watcher.Watch(watchCtx, dirs); err != nil && err != context.Canceled {
			log.Printf("Warning: watcher stopped: %v", err)
		}
	}()

	return nil
}

// ==========================================================================
// HTTP LIFECYCLE
// ==========================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	connected := s.storage != nil
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":           "ok",
		"storage_connected": connected,
	})
}

func (s *Server) withHealthMux(mux *http.ServeMux) *http.ServeMux {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	return mux
}

// ServeStdio runs the MCP server over stdin/stdout until ctx is done.
func (s *Server) ServeStdio(ctx context.Context) error {
	log.Println("Starting MCP server on stdio...")
	return server.ServeStdio(s.mcp)
}

// ServeSSE serves the MCP server over SSE (/sse, /message) on port, plus
// /health and /ready, until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	log.Printf("Starting MCP server (SSE) on http://localhost%s\n", addr)

	mux := http.NewServeMux()
	httpSrv := &http.Server{Addr: addr, Handler: mux}

	sseHandler := server.NewSSEServer(s.mcp,
		server.WithBaseURL(fmt.Sprintf("http://127.0.0.1:%d", port)),
		server.WithHTTPServer(httpSrv),
	)
	mux.Handle("/sse", sseHandler.SSEHandler())
	mux.Handle("/message", sseHandler.MessageHandler())
	s.withHealthMux(mux)

	return s.serveHTTP(ctx, httpSrv)
}

// ServeStreamableHTTP serves the MCP server over the streamable-HTTP
// transport at path on port, plus /health and /ready, until ctx is done.
func (s *Server) ServeStreamableHTTP(ctx context.Context, port int, path string) error {
	addr := fmt.Sprintf(":%d", port)
	log.Printf("Starting MCP server (Streamable HTTP) on http://localhost%s%s\n", addr, path)

	mux := http.NewServeMux()
	httpSrv := &http.Server{Addr: addr, Handler: mux}

	streamable := server.NewStreamableHTTPServer(s.mcp,
		server.WithEndpointPath(path),
		server.WithStreamableHTTPServer(httpSrv),
	)
	mux.Handle(path, streamable)
	s.withHealthMux(mux)

	return s.serveHTTP(ctx, httpSrv)
}

// ServeHTTPMulti serves both SSE and streamable-HTTP on the same port,
// plus /health and /ready, until ctx is done.
func (s *Server) ServeHTTPMulti(ctx context.Context, port int, path string) error {
	addr := fmt.Sprintf(":%d", port)
	log.Printf("Starting MCP server (SSE + Streamable HTTP) on http://localhost%s\n", addr)

	mux := http.NewServeMux()
	httpSrv := &http.Server{Addr: addr, Handler: mux}

	sseHandler := server.NewSSEServer(s.mcp,
		server.WithBaseURL(fmt.Sprintf("http://127.0.0.1:%d", port)),
		server.WithHTTPServer(httpSrv),
	)
	streamable := server.NewStreamableHTTPServer(s.mcp,
		server.WithEndpointPath(path),
		server.WithStreamableHTTPServer(httpSrv),
	)
	mux.Handle("/sse", sseHandler.SSEHandler())
	mux.Handle("/message", sseHandler.MessageHandler())
	mux.Handle(path, streamable)
	s.withHealthMux(mux)

	return s.serveHTTP(ctx, httpSrv)
}

func (s *Server) serveHTTP(ctx context.Context, srv *http.Server) error {
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close stops any running watcher and releases the storage connection.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.watcher != nil {
		s.watcher.Stop()
		s.watchCancel()
		s.watcher = nil
		s.watchCancel = nil
	}
	st := s.storage
	s.storage = nil
	s.mu.Unlock()

	if st != nil {
		return st.Close()
	}
	return nil
}
