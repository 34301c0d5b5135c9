package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerCatalogTools() {
	s.mcp.AddTool(mcp.NewTool("describe_table",
		mcp.WithDescription("Describe the catalog table: columns, indexes, row count and the languages of the trade name columns"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleDescribeTable)

	s.mcp.AddTool(mcp.NewTool("lookup_udi",
		mcp.WithDescription("Return every row whose udiDiCode equals the given code"),
		mcp.WithString("code", mcp.Description("UDI-DI code"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleLookupUDI)

	s.mcp.AddTool(mcp.NewTool("search_trade_name",
		mcp.WithDescription("Substring search over every tradeName_* column"),
		mcp.WithString("term", mcp.Description("Text to search for"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum rows (default 50)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleSearchTradeName)
}

func (s *Server) handleDescribeTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := s.openArtifact()
	if err != nil {
		return nil, err
	}
	defer a.Close()

	info, err := a.Describe(ctx)
	if err != nil {
		return nil, fmt.Errorf("describe: %w", err)
	}
	return jsonResult(info)
}

func (s *Server) handleLookupUDI(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := stringArg(req.GetArguments(), "code")
	if err != nil {
		return nil, err
	}
	a, err := s.openArtifact()
	if err != nil {
		return nil, err
	}
	defer a.Close()

	rs, err := a.Lookup(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", code, err)
	}
	if len(rs.Rows) == 0 {
		return textResult(fmt.Sprintf("No rows found for udiDiCode %q.", code)), nil
	}
	return jsonResult(rowObjects(rs))
}

func (s *Server) handleSearchTradeName(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	term, err := stringArg(args, "term")
	if err != nil {
		return nil, err
	}
	a, err := s.openArtifact()
	if err != nil {
		return nil, err
	}
	defer a.Close()

	rs, err := a.SearchLocalized(ctx, term, intArg(args, "limit", 50))
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	return jsonResult(map[string]any{
		"count": len(rs.Rows),
		"rows":  rowObjects(rs),
	})
}

// ── Resources ──────────────────────────────────────────────

const schemaURI = "swissdamed://schema"

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(
		schemaURI,
		"Catalog table schema",
		mcp.WithMIMEType("application/json"),
	), s.handleSchemaResource)
}

func (s *Server) handleSchemaResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	a, err := s.openArtifact()
	if err != nil {
		return nil, err
	}
	defer a.Close()

	info, err := a.Describe(ctx)
	if err != nil {
		return nil, err
	}
	data, _ := json.MarshalIndent(info, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      schemaURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func boolPtr(b bool) *bool { return &b }
