// Package validate holds the stateless input predicates applied before any
// store mutation. Every failure is reported as errors.CodeInvalidInput with
// a human-readable message.
package validate

import (
	"regexp"
	"strings"
	"time"

	"github.com/Brickmii/team-table/pkg/errors"
)

// Field length ceilings.
const (
	MaxAgentNameLength       = 64
	MaxMessageContentLength  = 10000
	MaxTaskTitleLength       = 200
	MaxTaskDescriptionLength = 5000
	MaxTaskResultLength      = 5000
	MaxContextKeyLength      = 128
	MaxContextValueLength    = 50000
	MaxCapabilitiesCount     = 20
	MaxCapabilityLength      = 64
)

var (
	priorities = map[string]bool{"low": true, "medium": true, "high": true}

	taskStatuses = map[string]bool{
		"pending": true, "in_progress": true, "done": true, "blocked": true,
	}

	roles = map[string]bool{
		"agent": true, "admin": true, "lead": true, "coder": true,
		"reviewer": true, "designer": true, "tester": true,
	}

	// Agent names: alphanumeric plus hyphens, underscores, spaces, and dots,
	// starting and ending with an alphanumeric.
	agentNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 _.\-]{0,62}[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)
)

func invalid(format string, args ...any) error {
	return errors.Newf(errors.CodeInvalidInput, format, args...)
}

// AgentName validates an agent name for allowed characters and length.
func AgentName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("agent name cannot be empty")
	}
	if len(name) > MaxAgentNameLength {
		return invalid("agent name too long (%d chars, max %d)", len(name), MaxAgentNameLength)
	}
	if !agentNameRe.MatchString(name) {
		return invalid("invalid agent name: %q. Must be alphanumeric with hyphens, underscores, spaces, or dots. Must start and end with alphanumeric", name)
	}
	return nil
}

// MessageContent validates message content shape and length.
func MessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return invalid("message content cannot be empty")
	}
	if len(content) > MaxMessageContentLength {
		return invalid("message too long (%d chars, max %d)", len(content), MaxMessageContentLength)
	}
	return nil
}

// TaskTitle validates a task title.
func TaskTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return invalid("task title cannot be empty")
	}
	if len(title) > MaxTaskTitleLength {
		return invalid("task title too long (%d chars, max %d)", len(title), MaxTaskTitleLength)
	}
	return nil
}

// TaskDescription validates a task description length.
func TaskDescription(description string) error {
	if len(description) > MaxTaskDescriptionLength {
		return invalid("task description too long (%d chars, max %d)", len(description), MaxTaskDescriptionLength)
	}
	return nil
}

// TaskResult validates a task result length.
func TaskResult(result string) error {
	if len(result) > MaxTaskResultLength {
		return invalid("task result too long (%d chars, max %d)", len(result), MaxTaskResultLength)
	}
	return nil
}

// Priority validates that priority is a known value.
func Priority(priority string) error {
	if !priorities[priority] {
		return invalid("invalid priority: %q. Must be one of: high, low, medium", priority)
	}
	return nil
}

// TaskStatus validates that status is a known value.
func TaskStatus(status string) error {
	if !taskStatuses[status] {
		return invalid("invalid status: %q. Must be one of: blocked, done, in_progress, pending", status)
	}
	return nil
}

// Role validates that role is a known value.
func Role(role string) error {
	if !roles[role] {
		return invalid("invalid role: %q. Must be one of: admin, agent, coder, designer, lead, reviewer, tester", role)
	}
	return nil
}

// Capabilities validates the capabilities list shape.
func Capabilities(caps []string) error {
	if len(caps) > MaxCapabilitiesCount {
		return invalid("too many capabilities (%d, max %d)", len(caps), MaxCapabilitiesCount)
	}
	for _, cap := range caps {
		if len(cap) > MaxCapabilityLength {
			return invalid("capability too long: %q (%d chars, max %d)", cap, len(cap), MaxCapabilityLength)
		}
	}
	return nil
}

// ContextKey validates a shared context key.
func ContextKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return invalid("context key cannot be empty")
	}
	if len(key) > MaxContextKeyLength {
		return invalid("context key too long (%d chars, max %d)", len(key), MaxContextKeyLength)
	}
	return nil
}

// ContextValue validates a shared context value length.
func ContextValue(value string) error {
	if len(value) > MaxContextValueLength {
		return invalid("context value too long (%d chars, max %d)", len(value), MaxContextValueLength)
	}
	return nil
}

// Accepted layouts for date filters, most specific first.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ISODate validates that value parses as an ISO-8601 date or datetime and
// returns the parsed time in UTC.
func ISODate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, invalid("invalid date format: %q. Expected ISO 8601 format (e.g. 2025-01-15T00:00:00)", value)
}
