package mcpserver

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"swissdamed/internal/service"
	"swissdamed/internal/storage"
)

// Server is the MCP server over a built catalog artifact.
// It exposes lookup tools, a schema resource, and (when a build service
// is wired) rebuild and history tools.
type Server struct {
	mcp    *server.MCPServer
	path   string
	table  string
	builds *service.BuildService
}

// Deps holds what the app layer passes to the MCP server.
type Deps struct {
	ArtifactPath string                // SQLite artifact to query
	Table        string                // table inside the artifact
	Builds       *service.BuildService // optional; enables rebuild tools
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	s := &Server{
		path:   deps.ArtifactPath,
		table:  deps.Table,
		builds: deps.Builds,
	}

	s.mcp = server.NewMCPServer(
		"swissdamed-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	s.registerCatalogTools()
	s.registerResources()
	if s.builds != nil {
		s.registerBuildTools()
	}
	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Printf("mcp: serving %s on stdio", s.path)
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// openArtifact opens the artifact for one call. A rebuild renames a new
// file over the old one, so every call sees the latest complete table.
func (s *Server) openArtifact() (*storage.Artifact, error) {
	a, err := storage.OpenArtifact(s.path, s.table)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return a, nil
}

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// stringArg returns a required string argument.
func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

// intArg returns an optional numeric argument, or def.
func intArg(args map[string]any, name string, def int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// rowObjects pairs every row with the column names.
func rowObjects(rs *storage.ResultSet) []map[string]string {
	out := make([]map[string]string, len(rs.Rows))
	for i, row := range rs.Rows {
		obj := make(map[string]string, len(rs.Columns))
		for j, col := range rs.Columns {
			if j < len(row) {
				obj[col] = row[j]
			}
		}
		out[i] = obj
	}
	return out
}
