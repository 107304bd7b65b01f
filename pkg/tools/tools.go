// Package tools exposes every team-table store operation as an MCP tool.
// Results are JSON text content; failures use a uniform {"error", "code"}
// envelope instead of protocol errors so agent frontends can always parse
// the body.
package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/Brickmii/team-table/pkg/errors"
	"github.com/Brickmii/team-table/pkg/mcp"
	"github.com/Brickmii/team-table/pkg/store"
)

// Service binds the store to the MCP tool surface.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

// NewService creates the tool service.
func NewService(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

// Register registers all team-table tools on the server.
func (s *Service) Register(srv *mcp.Server) {
	s.registerMemberTools(srv)
	s.registerMessageTools(srv)
	s.registerTaskTools(srv)
	s.registerContextTools(srv)
	s.registerAuditTools(srv)
}

// result renders v as a JSON text result, attaching an unread badge for the
// acting agent when one is due.
func (s *Service) result(ctx context.Context, agent string, v any) *mcpgo.CallToolResult {
	payload := map[string]any{}
	switch value := v.(type) {
	case map[string]any:
		payload = value
	default:
		payload["result"] = v
	}
	if agent != "" {
		if badge := s.unreadBadge(ctx, agent); badge != nil {
			payload["_notification"] = badge
		}
	}
	return jsonResult(payload)
}

// unreadBadge builds the passive unread summary appended to tool responses:
// a count plus up to two truncated previews. Nil when the inbox is clear.
func (s *Service) unreadBadge(ctx context.Context, agent string) map[string]any {
	count, err := s.store.UnreadCount(ctx, agent)
	if err != nil || count == 0 {
		return nil
	}
	badge := map[string]any{"unread_count": count}
	if previews, err := s.store.UnreadPreview(ctx, agent, 2); err == nil && len(previews) > 0 {
		badge["previews"] = previews
	}
	return badge
}

func (s *Service) errResult(op string, err error) *mcpgo.CallToolResult {
	typed := errors.AsError(err)
	if typed.Code == errors.CodeInternal {
		s.logger.Error("tool failed", "tool", op, "error", err)
	} else {
		s.logger.Debug("tool rejected", "tool", op, "code", string(typed.Code), "error", err)
	}
	data, merr := json.Marshal(typed)
	if merr != nil {
		data = []byte(`{"error":"internal error","code":"INTERNAL_ERROR"}`)
	}
	return &mcpgo.CallToolResult{
		Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: string(data)}},
		IsError: true,
	}
}

func (s *Service) notFound(op, format string, args ...any) *mcpgo.CallToolResult {
	return s.errResult(op, errors.Newf(errors.CodeNotFound, format, args...))
}

func jsonResult(v any) *mcpgo.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return &mcpgo.CallToolResult{
			Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: `{"error":"internal error","code":"INTERNAL_ERROR"}`}},
			IsError: true,
		}
	}
	return &mcpgo.CallToolResult{
		Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: string(data)}},
	}
}

func strArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func boolArg(args map[string]interface{}, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// intArg tolerates the float64 that JSON decoding produces for numbers.
func intArg(args map[string]interface{}, key string) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

func strSliceArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func mapArg(args map[string]interface{}, key string) map[string]any {
	v, _ := args[key].(map[string]interface{})
	return v
}
