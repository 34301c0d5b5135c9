package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"swissdamed/internal/domain"
)

func (s *Server) registerBuildTools() {
	s.mcp.AddTool(mcp.NewTool("rebuild_catalog",
		mcp.WithDescription("Fetch the catalog again and rewrite the artifacts. Fails if a build is already running."),
	), s.handleRebuild)

	s.mcp.AddTool(mcp.NewTool("list_builds",
		mcp.WithDescription("List the most recent builds, newest first"),
		mcp.WithNumber("limit", mcp.Description("Maximum entries (default 20)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListBuilds)
}

func (s *Server) handleRebuild(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.builds.RunBuild(ctx, domain.BuildTriggerManual)
	if err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}
	return jsonResult(res)
}

func (s *Server) handleListBuilds(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.builds.History(intArg(req.GetArguments(), "limit", 20))
	if err != nil {
		return nil, err
	}
	return jsonResult(runs)
}
