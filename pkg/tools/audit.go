package tools

import (
	"context"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/Brickmii/team-table/pkg/mcp"
	"github.com/Brickmii/team-table/pkg/store"
)

func (s *Service) registerAuditTools(srv *mcp.Server) {
	srv.RegisterTool(mcpgo.NewTool("log_action",
		mcpgo.WithDescription("Append a custom entry to the audit trail."),
		mcpgo.WithString("agent_name", mcpgo.Required()),
		mcpgo.WithString("action", mcpgo.Required()),
		mcpgo.WithString("target_type"),
		mcpgo.WithString("target_id"),
		mcpgo.WithObject("details", mcpgo.Description("Arbitrary JSON details")),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		agent := strArg(args, "agent_name")
		err := s.store.LogAction(ctx, agent, strArg(args, "action"),
			strArg(args, "target_type"), strArg(args, "target_id"), mapArg(args, "details"))
		if err != nil {
			return s.errResult("log_action", err), nil
		}
		return s.result(ctx, agent, map[string]any{"logged": true}), nil
	})

	srv.RegisterTool(mcpgo.NewTool("get_audit_log",
		mcpgo.WithDescription("Query the audit trail, newest first. Default 50 entries, maximum 200."),
		mcpgo.WithString("agent_name", mcpgo.Description("Only entries by this agent")),
		mcpgo.WithString("action", mcpgo.Description("Only entries with this action")),
		mcpgo.WithString("since", mcpgo.Description("ISO date; only entries at or after this time")),
		mcpgo.WithNumber("limit"),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		entries, err := s.store.GetAuditLog(ctx, store.AuditFilter{
			AgentName: strArg(args, "agent_name"),
			Action:    strArg(args, "action"),
			Since:     strArg(args, "since"),
			Limit:     int(intArg(args, "limit")),
		})
		if err != nil {
			return s.errResult("get_audit_log", err), nil
		}
		return jsonResult(map[string]any{"entries": entries}), nil
	})
}
