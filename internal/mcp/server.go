// Package mcp exposes read-only debate inspection tools over MCP (stdio),
// for operator tooling and agent clients.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/discoursa/discoursa/internal/db"
)

// NewServer creates an MCPServer with the discoursa inspection tools
// registered.
func NewServer(store *db.DB, botHandle string) *server.MCPServer {
	srv := server.NewMCPServer(
		"discoursa",
		"0.1.0",
		server.WithToolCapabilities(true),
	)

	registerBotStatus(srv, store, botHandle)
	registerListRoots(srv, store)
	registerGetBranch(srv, store)

	return srv
}

// Serve runs the server over stdio until the client disconnects.
func Serve(srv *server.MCPServer) error {
	return server.ServeStdio(srv)
}

func registerBotStatus(srv *server.MCPServer, store *db.DB, botHandle string) {
	schema, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	})
	tool := mcp.NewToolWithRawSchema("bot_status", "Counts of debate roots and branches plus the polling cursor", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		roots, err := store.CountRoots()
		if err != nil {
			return nil, err
		}
		branches, err := store.CountBranches()
		if err != nil {
			return nil, err
		}
		cursor, err := store.GetState(db.SinceIDKey)
		if err != nil {
			return nil, err
		}
		return textResult(map[string]any{
			"handle":   botHandle,
			"roots":    roots,
			"branches": branches,
			"cursor":   cursor,
		})
	})
}

func registerListRoots(srv *server.MCPServer, store *db.DB) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]string{"type": "number", "description": "Max roots to return (default 20)"},
		},
	})
	tool := mcp.NewToolWithRawSchema("list_roots", "List recent debate roots with topic and originator", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := 20
		if v, ok := req.GetArguments()["limit"].(float64); ok && v > 0 {
			limit = int(v)
		}
		roots, err := store.ListRoots(limit)
		if err != nil {
			return nil, err
		}
		return textResult(map[string]any{"roots": roots})
	})
}

func registerGetBranch(srv *server.MCPServer, store *db.DB) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"branch_id": map[string]string{"type": "string", "description": "Branch ID"},
		},
		"required": []string{"branch_id"},
	})
	tool := mcp.NewToolWithRawSchema("get_branch", "Retrieve one branch with its full conversation history", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, _ := req.GetArguments()["branch_id"].(string)
		if id == "" {
			return nil, fmt.Errorf("branch_id is required")
		}
		branch, err := store.GetBranch(id)
		if err != nil {
			return nil, err
		}
		return textResult(branch)
	})
}

func textResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
