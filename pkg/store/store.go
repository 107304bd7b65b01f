// Package store is the persistence and authorization layer shared by every
// team-table front-end. It owns the SQLite relations (members, messages,
// tasks, shared context, broadcast reads, audit log) and exposes each
// operation as a single committed transaction with the audit entry written
// inside it. Rate limiting and notification fan-out are injected at
// construction and sit outside the transaction.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Brickmii/team-table/pkg/errors"
	"github.com/Brickmii/team-table/pkg/notify"
	"github.com/Brickmii/team-table/pkg/ratelimit"

	_ "modernc.org/sqlite"
)

// BroadcastRecipient is the reserved recipient meaning "all active members".
const BroadcastRecipient = "*"

// SystemPrincipal is the reserved acting identity for trusted internal
// callers; it bypasses ownership checks on task updates and cannot be
// registered as a member.
const SystemPrincipal = "system"

// timeLayout is the canonical stored timestamp format. Fixed microsecond
// width keeps lexicographic TEXT comparison chronologically correct.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// OpRecorder receives one observation per store operation.
type OpRecorder interface {
	RecordOp(ctx context.Context, op string, duration time.Duration, err error)
}

// Store is the sole gateway to the persisted relations.
type Store struct {
	db       *sql.DB
	limiter  *ratelimit.Limiter
	notifier notify.Backend
	recorder OpRecorder
}

// Option configures a Store at construction.
type Option func(*Store)

// WithRateLimiter replaces the default message rate limiter.
func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(s *Store) { s.limiter = limiter }
}

// WithNotifier installs the notification backend used for fan-out.
func WithNotifier(backend notify.Backend) Option {
	return func(s *Store) { s.notifier = backend }
}

// WithRecorder installs an operation metrics recorder.
func WithRecorder(recorder OpRecorder) Option {
	return func(s *Store) { s.recorder = recorder }
}

// Open creates the database file (and parent directory) if needed, applies
// WAL journaling and the busy timeout, and ensures the schema.
func Open(path string, busyTimeout time.Duration, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	store, err := New(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing database handle and ensures the schema. Opening an
// already-initialized store is idempotent.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	s := &Store{
		db:       db,
		limiter:  ratelimit.NewDefault(),
		notifier: notify.NoopBackend{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RateLimiter returns the injected limiter, mainly so tests and operators
// can reset quotas without restarting the process.
func (s *Store) RateLimiter() *ratelimit.Limiter {
	return s.limiter
}

// Notifier returns the installed notification backend.
func (s *Store) Notifier() notify.Backend {
	return s.notifier
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS members (
			name TEXT PRIMARY KEY,
			role TEXT NOT NULL DEFAULT 'agent',
			capabilities TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'active',
			registered_at TEXT NOT NULL,
			last_heartbeat TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			read INTEGER NOT NULL DEFAULT 0,
			archived_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			priority TEXT NOT NULL DEFAULT 'medium',
			creator TEXT NOT NULL,
			assignee TEXT,
			result TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee);`,
		`CREATE TABLE IF NOT EXISTS shared_context (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			set_by TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS broadcast_reads (
			agent_name TEXT NOT NULL,
			message_id INTEGER NOT NULL,
			PRIMARY KEY (agent_name, message_id)
		);`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			action TEXT NOT NULL,
			target_type TEXT,
			target_id TEXT,
			details TEXT NOT NULL DEFAULT '{}'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_agent ON audit_log(agent_name);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return ensureArchivedColumn(db)
}

// ensureArchivedColumn upgrades databases created before the soft-delete
// column existed. Schema evolution is additive only.
func ensureArchivedColumn(db *sql.DB) error {
	_, err := db.Exec("ALTER TABLE messages ADD COLUMN archived_at TEXT")
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
		return nil
	}
	return err
}

// withTx runs fn inside one transaction, rolling back on any error. Busy
// failures surface as STORAGE_BUSY on the first attempt; the store never
// retries on its own, callers re-run the whole logical operation.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return storageErr(err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr(err)
	}
	return nil
}

// storageErr classifies engine busy-timeout failures so callers know to
// retry the whole operation. Other errors pass through untouched.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*errors.Error); ok {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "sqlite_busy") || strings.Contains(msg, "database is locked") {
		return errors.Wrap(errors.CodeStorageBusy, "storage busy, retry the operation", err)
	}
	return err
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

// canonicalTime renders a parsed filter date in the stored format so TEXT
// comparison against created_at stays correct.
func canonicalTime(ts time.Time) string {
	return ts.UTC().Format(timeLayout)
}

func privileged(role string) bool {
	return role == "admin" || role == "lead"
}

// memberRole returns the role of an active member inside a transaction, or
// "" when the member is absent or inactive.
func memberRole(tx *sql.Tx, name string) (string, error) {
	var role string
	err := tx.QueryRow("SELECT role FROM members WHERE name = ? AND status = 'active'", name).Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// appendAudit writes an audit entry inside the transaction that produced
// the effect it records.
func appendAudit(tx *sql.Tx, agent, action, targetType, targetID string, details map[string]any) error {
	payload := []byte("{}")
	if len(details) > 0 {
		encoded, err := json.Marshal(details)
		if err != nil {
			return err
		}
		payload = encoded
	}
	_, err := tx.Exec(
		`INSERT INTO audit_log (timestamp, agent_name, action, target_type, target_id, details)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		now(), agent, action, targetType, targetID, string(payload))
	return err
}

// observe reports one operation to the recorder, if any.
func (s *Store) observe(ctx context.Context, op string, start time.Time, err error) {
	if s.recorder != nil {
		s.recorder.RecordOp(ctx, op, time.Since(start), err)
	}
}
