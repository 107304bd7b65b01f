package tools

import (
	"context"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/Brickmii/team-table/pkg/mcp"
)

func (s *Service) registerMessageTools(srv *mcp.Server) {
	srv.RegisterTool(mcpgo.NewTool("send_message",
		mcpgo.WithDescription("Send a direct message to one agent."),
		mcpgo.WithString("sender", mcpgo.Required()),
		mcpgo.WithString("recipient", mcpgo.Required()),
		mcpgo.WithString("content", mcpgo.Required(), mcpgo.Description("Up to 10000 characters")),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		sender := strArg(args, "sender")
		msg, err := s.store.SendMessage(ctx, sender, strArg(args, "recipient"), strArg(args, "content"))
		if err != nil {
			return s.errResult("send_message", err), nil
		}
		return s.result(ctx, sender, map[string]any{"message": msg}), nil
	})

	srv.RegisterTool(mcpgo.NewTool("broadcast",
		mcpgo.WithDescription("Send a message to every team member."),
		mcpgo.WithString("sender", mcpgo.Required()),
		mcpgo.WithString("content", mcpgo.Required()),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		sender := strArg(args, "sender")
		msg, err := s.store.Broadcast(ctx, sender, strArg(args, "content"))
		if err != nil {
			return s.errResult("broadcast", err), nil
		}
		return s.result(ctx, sender, map[string]any{"message": msg}), nil
	})

	srv.RegisterTool(mcpgo.NewTool("get_messages",
		mcpgo.WithDescription("Fetch messages for an agent, oldest first. Returned messages are marked read."),
		mcpgo.WithString("agent_name", mcpgo.Required()),
		mcpgo.WithBoolean("include_read"),
		mcpgo.WithBoolean("include_archived"),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		messages, err := s.store.GetMessages(ctx, strArg(args, "agent_name"),
			boolArg(args, "include_read"), boolArg(args, "include_archived"))
		if err != nil {
			return s.errResult("get_messages", err), nil
		}
		return jsonResult(map[string]any{"messages": messages}), nil
	})

	srv.RegisterTool(mcpgo.NewTool("unread_status",
		mcpgo.WithDescription("Count unread messages without marking anything read."),
		mcpgo.WithString("agent_name", mcpgo.Required()),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		agent := strArg(args, "agent_name")
		count, err := s.store.UnreadCount(ctx, agent)
		if err != nil {
			return s.errResult("unread_status", err), nil
		}
		payload := map[string]any{"unread_count": count}
		if count > 0 {
			if previews, err := s.store.UnreadPreview(ctx, agent, 3); err == nil {
				payload["previews"] = previews
			}
		}
		return jsonResult(payload), nil
	})

	srv.RegisterTool(mcpgo.NewTool("delete_message",
		mcpgo.WithDescription("Soft-delete a message you sent or received."),
		mcpgo.WithNumber("message_id", mcpgo.Required()),
		mcpgo.WithString("agent_name", mcpgo.Required()),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		agent := strArg(args, "agent_name")
		id := intArg(args, "message_id")
		msg, err := s.store.DeleteMessage(ctx, id, agent)
		if err != nil {
			return s.errResult("delete_message", err), nil
		}
		if msg == nil {
			return s.notFound("delete_message", "message %d not found", id), nil
		}
		return s.result(ctx, agent, map[string]any{"message": msg}), nil
	})

	srv.RegisterTool(mcpgo.NewTool("archive_message",
		mcpgo.WithDescription("Archive a message, marking it read."),
		mcpgo.WithNumber("message_id", mcpgo.Required()),
		mcpgo.WithString("agent_name", mcpgo.Required()),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		agent := strArg(args, "agent_name")
		id := intArg(args, "message_id")
		msg, err := s.store.ArchiveMessage(ctx, id, agent)
		if err != nil {
			return s.errResult("archive_message", err), nil
		}
		if msg == nil {
			return s.notFound("archive_message", "message %d not found", id), nil
		}
		return s.result(ctx, agent, map[string]any{"message": msg}), nil
	})

	srv.RegisterTool(mcpgo.NewTool("clear_inbox",
		mcpgo.WithDescription("Archive your direct messages in bulk, optionally filtered by age or sender."),
		mcpgo.WithString("agent_name", mcpgo.Required()),
		mcpgo.WithString("before_date", mcpgo.Description("ISO date; only archive messages older than this")),
		mcpgo.WithString("sender", mcpgo.Description("Only archive messages from this sender")),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		agent := strArg(args, "agent_name")
		count, err := s.store.ClearInbox(ctx, agent, strArg(args, "before_date"), strArg(args, "sender"))
		if err != nil {
			return s.errResult("clear_inbox", err), nil
		}
		return jsonResult(map[string]any{"archived_count": count}), nil
	})

	srv.RegisterTool(mcpgo.NewTool("purge_messages",
		mcpgo.WithDescription("Permanently delete messages older than a date. Requires admin or lead role."),
		mcpgo.WithString("agent_name", mcpgo.Required()),
		mcpgo.WithString("before_date", mcpgo.Required(), mcpgo.Description("ISO date boundary")),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		count, err := s.store.PurgeMessages(ctx, strArg(args, "agent_name"), strArg(args, "before_date"))
		if err != nil {
			return s.errResult("purge_messages", err), nil
		}
		return jsonResult(map[string]any{"purged_count": count}), nil
	})
}
