package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/heefoo/codeloom/internal/config"
	"github.com/mark3labs/mcp-go/mcp"
)

// TestServerDegradesWithoutStorage verifies that query tools fail with a
// clear error (rather than panicking) when the configured database is
// unreachable, instead of requiring a prior index_directory call to have
// succeeded.
func TestServerDegradesWithoutStorage(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.SurrealDB.URL = "ws://127.0.0.1:1"
	s := NewServer(ServerConfig{Config: cfg})

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]interface{}{"symbol": "Foo"}

	result, err := s.handleDependenciesOf(context.Background(), req)
	if err != nil {
		t.Fatalf("handleDependenciesOf should not return a Go error, got: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError=true when storage is unreachable")
	}
}

// TestSearchGraphRequiresSeedOrTopic verifies search_graph rejects a request
// with neither a symbol pair nor a topic before touching storage.
func TestSearchGraphRequiresSeedOrTopic(t *testing.T) {
	s := NewServer(ServerConfig{Config: config.DefaultConfig()})

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]interface{}{}

	result, err := s.handleSearchGraph(context.Background(), req)
	if err != nil {
		t.Fatalf("handleSearchGraph should not return a Go error, got: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError=true when neither symbols nor topic are given")
	}
}

// TestDependenciesOfRequiresSymbol verifies the safe two-value type
// assertion path rejects a missing/non-string symbol argument.
func TestDependenciesOfRequiresSymbol(t *testing.T) {
	s := NewServer(ServerConfig{Config: config.DefaultConfig()})

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]interface{}{}

	result, err := s.handleDependenciesOf(context.Background(), req)
	if err != nil {
		t.Fatalf("handleDependenciesOf should not return a Go error, got: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError=true when symbol is missing")
	}

	textContent, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(textContent.Text), &parsed); err != nil {
		t.Fatalf("error result should be valid JSON: %v", err)
	}
	if parsed["message"] != "symbol argument must be a string" {
		t.Errorf("message = %v, want %q", parsed["message"], "symbol argument must be a string")
	}
}

// TestIndexDirectoryRequiresDirectory verifies handleIndexDirectory rejects
// a missing/non-string directory argument before connecting to storage.
func TestIndexDirectoryRequiresDirectory(t *testing.T) {
	s := NewServer(ServerConfig{Config: config.DefaultConfig()})

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]interface{}{}

	result, err := s.handleIndexDirectory(context.Background(), req)
	if err != nil {
		t.Fatalf("handleIndexDirectory should not return a Go error, got: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError=true when directory is missing")
	}
}
