package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/Brickmii/team-table/pkg/validate"
)

// AuditEntry is one append-only record of a state-changing call.
type AuditEntry struct {
	ID         int64  `json:"id"`
	Timestamp  string `json:"timestamp"`
	AgentName  string `json:"agent_name"`
	Action     string `json:"action"`
	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
	Details    string `json:"details"`
}

// AuditFilter limits audit log queries. A zero Limit selects the default
// of 50; values above 200 are capped.
type AuditFilter struct {
	AgentName string
	Action    string
	Since     string
	Limit     int
}

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// LogAction appends a custom audit entry. The append is the whole
// transaction; built-in operations instead write their entries inside the
// transaction that produced the effect.
func (s *Store) LogAction(ctx context.Context, agent, action, targetType, targetID string, details map[string]any) (err error) {
	defer func(start time.Time) { s.observe(ctx, "log_action", start, err) }(time.Now())

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return appendAudit(tx, agent, action, targetType, targetID, details)
	})
}

// GetAuditLog returns audit entries newest first, filtered by agent,
// action, and/or minimum timestamp.
func (s *Store) GetAuditLog(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	query := "SELECT id, timestamp, agent_name, action, COALESCE(target_type, ''), COALESCE(target_id, ''), details FROM audit_log"
	var clauses []string
	var args []any
	if filter.AgentName != "" {
		clauses = append(clauses, "agent_name = ?")
		args = append(args, filter.AgentName)
	}
	if filter.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.Since != "" {
		since, err := validate.ISODate(filter.Since)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, canonicalTime(since))
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var entry AuditEntry
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.AgentName,
			&entry.Action, &entry.TargetType, &entry.TargetID, &entry.Details); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
