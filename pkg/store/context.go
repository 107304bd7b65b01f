package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/Brickmii/team-table/pkg/validate"
)

// ContextEntry is one keyed value in the shared context. Upserts are
// last-writer-wins and unversioned.
type ContextEntry struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	SetBy     string `json:"set_by"`
	UpdatedAt string `json:"updated_at"`
}

// ShareContext upserts a shared context entry.
func (s *Store) ShareContext(ctx context.Context, key, value, setBy string) (entry *ContextEntry, err error) {
	defer func(start time.Time) { s.observe(ctx, "share_context", start, err) }(time.Now())

	if err = validate.ContextKey(key); err != nil {
		return nil, err
	}
	if err = validate.ContextValue(value); err != nil {
		return nil, err
	}
	if err = validate.AgentName(setBy); err != nil {
		return nil, err
	}

	ts := now()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO shared_context (key, value, set_by, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET
				 value=excluded.value,
				 set_by=excluded.set_by,
				 updated_at=excluded.updated_at`,
			key, value, setBy, ts); err != nil {
			return err
		}
		return appendAudit(tx, setBy, "share_context", "context", key, nil)
	})
	if err != nil {
		return nil, err
	}
	return &ContextEntry{Key: key, Value: value, SetBy: setBy, UpdatedAt: ts}, nil
}

// GetSharedContext returns one entry, or (nil, nil) when the key is absent.
func (s *Store) GetSharedContext(ctx context.Context, key string) (*ContextEntry, error) {
	var entry ContextEntry
	err := s.db.QueryRowContext(ctx,
		"SELECT key, value, set_by, updated_at FROM shared_context WHERE key = ?", key).
		Scan(&entry.Key, &entry.Value, &entry.SetBy, &entry.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return &entry, nil
}

// ListSharedContext returns the full shared context ordered by key.
func (s *Store) ListSharedContext(ctx context.Context) ([]ContextEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value, set_by, updated_at FROM shared_context ORDER BY key")
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	entries := []ContextEntry{}
	for rows.Next() {
		var entry ContextEntry
		if err := rows.Scan(&entry.Key, &entry.Value, &entry.SetBy, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
