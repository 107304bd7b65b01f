package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Brickmii/team-table/pkg/errors"
	"github.com/Brickmii/team-table/pkg/validate"
)

// Member is a registered agent identity. Members are never hard-deleted;
// deregistration flips status to inactive and registration reactivates.
type Member struct {
	Name          string   `json:"name"`
	Role          string   `json:"role"`
	Capabilities  []string `json:"capabilities"`
	Status        string   `json:"status"`
	RegisteredAt  string   `json:"registered_at"`
	LastHeartbeat string   `json:"last_heartbeat"`
}

// Register upserts a member, forcing status active and a fresh heartbeat.
// Re-registering an existing name reactivates it rather than duplicating.
func (s *Store) Register(ctx context.Context, name, role string, capabilities []string) (member *Member, err error) {
	defer func(start time.Time) { s.observe(ctx, "register", start, err) }(time.Now())

	if err = validate.AgentName(name); err != nil {
		return nil, err
	}
	if name == SystemPrincipal {
		return nil, errors.Newf(errors.CodeInvalidInput, "agent name %q is reserved", SystemPrincipal)
	}
	if role == "" {
		role = "agent"
	}
	if err = validate.Role(role); err != nil {
		return nil, err
	}
	if capabilities == nil {
		capabilities = []string{}
	}
	if err = validate.Capabilities(capabilities); err != nil {
		return nil, err
	}

	caps, err := json.Marshal(capabilities)
	if err != nil {
		return nil, err
	}
	ts := now()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO members (name, role, capabilities, status, registered_at, last_heartbeat)
			 VALUES (?, ?, ?, 'active', ?, ?)
			 ON CONFLICT(name) DO UPDATE SET
				 role=excluded.role,
				 capabilities=excluded.capabilities,
				 status='active',
				 last_heartbeat=excluded.last_heartbeat`,
			name, role, string(caps), ts, ts); err != nil {
			return err
		}
		found, err := getMember(tx, name)
		if err != nil {
			return err
		}
		member = found
		return appendAudit(tx, name, "register", "member", name, map[string]any{"role": role})
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// Deregister marks a member inactive. It is a no-op for unknown names and
// audits only on success.
func (s *Store) Deregister(ctx context.Context, name string) (ok bool, err error) {
	defer func(start time.Time) { s.observe(ctx, "deregister", start, err) }(time.Now())

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec("UPDATE members SET status='inactive' WHERE name = ?", name)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		ok = true
		return appendAudit(tx, name, "deregister", "member", name, nil)
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Heartbeat refreshes last_heartbeat for an existing active member. It does
// not resurrect inactive members.
func (s *Store) Heartbeat(ctx context.Context, name string) (ok bool, err error) {
	defer func(start time.Time) { s.observe(ctx, "heartbeat", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx,
		"UPDATE members SET last_heartbeat = ? WHERE name = ? AND status = 'active'",
		now(), name)
	if err != nil {
		return false, storageErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListMembers returns members ordered by name, active only by default.
func (s *Store) ListMembers(ctx context.Context, includeInactive bool) ([]Member, error) {
	query := "SELECT name, role, capabilities, status, registered_at, last_heartbeat FROM members"
	if !includeInactive {
		query += " WHERE status = 'active'"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *member)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

// GetMemberRole returns the role of an active member. Inactive and unknown
// members carry no authority, so both report not found.
func (s *Store) GetMemberRole(ctx context.Context, name string) (string, bool, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		"SELECT role FROM members WHERE name = ? AND status = 'active'", name).Scan(&role)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr(err)
	}
	return role, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*Member, error) {
	var member Member
	var caps string
	if err := row.Scan(&member.Name, &member.Role, &caps, &member.Status,
		&member.RegisteredAt, &member.LastHeartbeat); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(caps), &member.Capabilities); err != nil {
		return nil, err
	}
	if member.Capabilities == nil {
		member.Capabilities = []string{}
	}
	return &member, nil
}

func getMember(tx *sql.Tx, name string) (*Member, error) {
	row := tx.QueryRow(
		"SELECT name, role, capabilities, status, registered_at, last_heartbeat FROM members WHERE name = ?",
		name)
	return scanMember(row)
}
