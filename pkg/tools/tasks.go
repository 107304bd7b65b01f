package tools

import (
	"context"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/Brickmii/team-table/pkg/mcp"
)

func (s *Service) registerTaskTools(srv *mcp.Server) {
	srv.RegisterTool(mcpgo.NewTool("create_task",
		mcpgo.WithDescription("Add a task to the shared board."),
		mcpgo.WithString("title", mcpgo.Required(), mcpgo.Description("Up to 200 characters")),
		mcpgo.WithString("created_by", mcpgo.Required()),
		mcpgo.WithString("description"),
		mcpgo.WithString("assignee", mcpgo.Description("Pre-assign to this agent")),
		mcpgo.WithString("priority", mcpgo.Description("low, medium, or high (default medium)")),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		creator := strArg(args, "created_by")
		task, err := s.store.CreateTask(ctx, strArg(args, "title"), creator,
			strArg(args, "description"), strArg(args, "assignee"), strArg(args, "priority"))
		if err != nil {
			return s.errResult("create_task", err), nil
		}
		return s.result(ctx, creator, map[string]any{"task": task}), nil
	})

	srv.RegisterTool(mcpgo.NewTool("list_tasks",
		mcpgo.WithDescription("List tasks, optionally filtered by status and/or assignee."),
		mcpgo.WithString("status", mcpgo.Description("pending, in_progress, done, or blocked")),
		mcpgo.WithString("assignee"),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		tasks, err := s.store.ListTasks(ctx, strArg(args, "status"), strArg(args, "assignee"))
		if err != nil {
			return s.errResult("list_tasks", err), nil
		}
		return jsonResult(map[string]any{"tasks": tasks}), nil
	})

	srv.RegisterTool(mcpgo.NewTool("claim_task",
		mcpgo.WithDescription("Atomically claim a pending task. Concurrent claims: first committer wins."),
		mcpgo.WithNumber("task_id", mcpgo.Required()),
		mcpgo.WithString("agent_name", mcpgo.Required()),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		agent := strArg(args, "agent_name")
		id := intArg(args, "task_id")
		task, err := s.store.ClaimTask(ctx, id, agent)
		if err != nil {
			return s.errResult("claim_task", err), nil
		}
		if task == nil {
			return s.notFound("claim_task", "task %d not found", id), nil
		}
		return s.result(ctx, agent, map[string]any{"task": task}), nil
	})

	srv.RegisterTool(mcpgo.NewTool("update_task",
		mcpgo.WithDescription("Update a task's status and optionally record its result. Only the creator, assignee, or a privileged role may update."),
		mcpgo.WithNumber("task_id", mcpgo.Required()),
		mcpgo.WithString("status", mcpgo.Required(), mcpgo.Description("pending, in_progress, done, or blocked")),
		mcpgo.WithString("result", mcpgo.Description("Outcome notes, up to 5000 characters")),
		mcpgo.WithString("agent_name", mcpgo.Required()),
	), func(ctx context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		agent := strArg(args, "agent_name")
		id := intArg(args, "task_id")
		task, err := s.store.UpdateTask(ctx, id, strArg(args, "status"), strArg(args, "result"), agent)
		if err != nil {
			return s.errResult("update_task", err), nil
		}
		if task == nil {
			return s.notFound("update_task", "task %d not found", id), nil
		}
		return s.result(ctx, agent, map[string]any{"task": task}), nil
	})
}
