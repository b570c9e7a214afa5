package margin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the engine's tools on an MCP server:
// margin_list, margin_annotate, margin_remove, margin_sync.
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	e.registerListTool(srv)
	e.registerAnnotateTool(srv)
	e.registerRemoveTool(srv)
	e.registerSyncTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sc["required"] = required
	}
	return sc
}

func addTool(srv *mcp.Server, tool *mcp.Tool, handler func(ctx context.Context, args json.RawMessage) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := handler(ctx, req.Params.Arguments)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func (e *Engine) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "margin_list",
		Description: "List the annotations attached to the current document.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return map[string]any{
			"url":         e.Location(),
			"annotations": e.Annotations(),
			"pending":     e.PendingCount(),
		}, nil
	})
}

func (e *Engine) registerAnnotateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "margin_annotate",
		Description: "Attach a comment to a fragment of text in the current document. The fragment must appear verbatim in the document.",
		InputSchema: inputSchema(map[string]any{
			"text":    map[string]any{"type": "string", "description": "Verbatim document text to anchor on"},
			"comment": map[string]any{"type": "string", "description": "Comment to attach"},
		}, []string{"text", "comment"}),
	}
	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var req struct {
			Text    string `json:"text"`
			Comment string `json:"comment"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		return e.Annotate(ctx, req.Text, req.Comment)
	})
}

func (e *Engine) registerRemoveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "margin_remove",
		Description: "Remove an annotation and its rendered highlight.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Annotation id"},
		}, []string{"id"}),
	}
	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var req struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if err := e.Remove(ctx, req.ID); err != nil {
			return nil, err
		}
		return map[string]string{"removed": req.ID}, nil
	})
}

func (e *Engine) registerSyncTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "margin_sync",
		Description: "Deliver pending annotations to the remote store.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(ctx context.Context, _ json.RawMessage) (any, error) {
		delivered := e.SyncAll(ctx)
		return map[string]any{
			"delivered": delivered,
			"pending":   e.PendingCount(),
		}, nil
	})
}
