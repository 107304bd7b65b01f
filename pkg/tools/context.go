package tools

import (
	"context"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/Brickmii/team-table/pkg/mcp"
)

func (s *Service) registerContextTools(srv *mcp.Server) {
	srv.RegisterTool(mcpgo.NewTool("share_context",
		mcpgo.WithDescription("Publish a key/value entry visible to the whole team. Last writer wins."),
		mcpgo.WithString("key", mcpgo.Required(), mcpgo.Description("Up to 128 characters")),
		mcpgo.WithString("value", mcpgo.Required(), mcpgo.Description("Up to 50000 characters")),
		mcpgo.WithString("agent_name", mcpgo.Required()),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		agent := strArg(args, "agent_name")
		entry, err := s.store.ShareContext(ctx, strArg(args, "key"), strArg(args, "value"), agent)
		if err != nil {
			return s.errResult("share_context", err), nil
		}
		return s.result(ctx, agent, map[string]any{"context": entry}), nil
	})

	srv.RegisterTool(mcpgo.NewTool("get_shared_context",
		mcpgo.WithDescription("Read one shared context entry, or all entries when key is omitted."),
		mcpgo.WithString("key"),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		key := strArg(args, "key")
		if key == "" {
			entries, err := s.store.ListSharedContext(ctx)
			if err != nil {
				return s.errResult("get_shared_context", err), nil
			}
			return jsonResult(map[string]any{"context": entries}), nil
		}
		entry, err := s.store.GetSharedContext(ctx, key)
		if err != nil {
			return s.errResult("get_shared_context", err), nil
		}
		if entry == nil {
			return s.notFound("get_shared_context", "context key %q not found", key), nil
		}
		return jsonResult(map[string]any{"context": entry}), nil
	})
}
