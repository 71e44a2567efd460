package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/traza/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   *storage.Store
	Version string
}

// NewMCPServer creates an MCP server exposing the log store as tools and resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"traza",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("traza: local store of captured build logs, looked up by project or by short hash prefix."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_logs",
			mcp.WithDescription("List the most recent build logs (metadata only, newest first)."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of logs (default 10, max 100)")),
		),
		mcpListLogs(deps),
	)

	s.AddTool(
		mcp.NewTool("get_log",
			mcp.WithDescription("Fetch one build log by hash prefix. When several logs share the prefix the most recent one is returned."),
			mcp.WithString("prefix", mcp.Description("Leading characters of the log hash"), mcp.Required()),
		),
		mcpGetLog(deps),
	)

	s.AddTool(
		mcp.NewTool("save_log",
			mcp.WithDescription("Store a build log under a project name."),
			mcp.WithString("project", mcp.Description("Project name"), mcp.Required()),
			mcp.WithString("log", mcp.Description("The captured output"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Optional tags")),
		),
		mcpSaveLog(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"traza://latest",
			"Latest Build Log",
			mcp.WithResourceDescription("The most recently captured build log as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceLatest(deps),
	)

	return s
}

type logSummary struct {
	ID        int64    `json:"id"`
	Hash      string   `json:"hash"`
	Project   string   `json:"project"`
	Timestamp string   `json:"timestamp"`
	Tags      []string `json:"tags,omitempty"`
	Bytes     int      `json:"bytes"`
}

func mcpListLogs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		recs, err := deps.Store.ListRecent(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing logs failed: %v", err)), nil
		}

		summaries := make([]logSummary, len(recs))
		for i, r := range recs {
			summaries[i] = logSummary{
				ID:        r.ID,
				Hash:      r.Hash,
				Project:   r.Project,
				Timestamp: r.Timestamp,
				Tags:      r.TagList(),
				Bytes:     len(r.Log),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal logs: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetLog(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prefix, err := req.RequireString("prefix")
		if err != nil {
			return mcpError("prefix is required"), nil
		}

		rec, err := deps.Store.Resolve(prefix)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("no log found with hash starting with %q", prefix)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		b, err := json.Marshal(rec)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal log: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSaveLog(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		project, err := req.RequireString("project")
		if err != nil || project == "" {
			return mcpError("project is required"), nil
		}
		body, err := req.RequireString("log")
		if err != nil {
			return mcpError("log is required"), nil
		}
		tags := req.GetStringSlice("tags", nil)

		rec, err := deps.Store.Insert(project, tags, body)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Stored log %s (id %d) for project %s", rec.Hash, rec.ID, rec.Project)), nil
	}
}

func mcpResourceLatest(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		rec, err := deps.Store.Latest()
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("no logs recorded yet")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get latest log: %w", err)
		}

		b, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal log: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
