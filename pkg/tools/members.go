package tools

import (
	"context"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/Brickmii/team-table/pkg/mcp"
)

func (s *Service) registerMemberTools(srv *mcp.Server) {
	srv.RegisterTool(mcpgo.NewTool("register_member",
		mcpgo.WithDescription("Join the team table. Re-registering an existing name reactivates it."),
		mcpgo.WithString("agent_name", mcpgo.Required(), mcpgo.Description("Unique agent name, 1-64 characters")),
		mcpgo.WithString("role", mcpgo.Description("agent, admin, lead, coder, reviewer, designer, or tester (default agent)")),
		mcpgo.WithArray("capabilities", mcpgo.Description("Up to 20 capability tags")),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		name := strArg(args, "agent_name")
		member, err := s.store.Register(ctx, name, strArg(args, "role"), strSliceArg(args, "capabilities"))
		if err != nil {
			return s.errResult("register_member", err), nil
		}
		return s.result(ctx, name, map[string]any{"member": member}), nil
	})

	srv.RegisterTool(mcpgo.NewTool("deregister_member",
		mcpgo.WithDescription("Leave the team table. The member record is kept inactive."),
		mcpgo.WithString("agent_name", mcpgo.Required()),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		name := strArg(args, "agent_name")
		ok, err := s.store.Deregister(ctx, name)
		if err != nil {
			return s.errResult("deregister_member", err), nil
		}
		if !ok {
			return s.notFound("deregister_member", "member %q not found", name), nil
		}
		return jsonResult(map[string]any{"deregistered": name}), nil
	})

	srv.RegisterTool(mcpgo.NewTool("list_members",
		mcpgo.WithDescription("List team members, active only by default."),
		mcpgo.WithBoolean("include_inactive"),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		members, err := s.store.ListMembers(ctx, boolArg(args, "include_inactive"))
		if err != nil {
			return s.errResult("list_members", err), nil
		}
		return jsonResult(map[string]any{"members": members}), nil
	})

	srv.RegisterTool(mcpgo.NewTool("heartbeat",
		mcpgo.WithDescription("Refresh the liveness timestamp for an active member."),
		mcpgo.WithString("agent_name", mcpgo.Required()),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		name := strArg(args, "agent_name")
		ok, err := s.store.Heartbeat(ctx, name)
		if err != nil {
			return s.errResult("heartbeat", err), nil
		}
		if !ok {
			return s.notFound("heartbeat", "member %q not found or inactive", name), nil
		}
		return s.result(ctx, name, map[string]any{"ok": true}), nil
	})
}
