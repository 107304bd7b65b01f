package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Brickmii/team-table/pkg/errors"
	"github.com/Brickmii/team-table/pkg/notify"
	"github.com/Brickmii/team-table/pkg/validate"
)

// Message is a direct or wildcard message. For direct messages read and
// archive state lives on the row; for wildcard messages read state is
// tracked per-recipient in broadcast_reads.
type Message struct {
	ID         int64   `json:"id"`
	Sender     string  `json:"sender"`
	Recipient  string  `json:"recipient"`
	Content    string  `json:"content"`
	CreatedAt  string  `json:"created_at"`
	Read       bool    `json:"read"`
	ArchivedAt *string `json:"archived_at"`
}

// MessagePreview is a truncated unread message used by notification badges.
type MessagePreview struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

const messageColumns = "id, sender, recipient, content, created_at, read, archived_at"

// SendMessage validates, enforces the sender's rate limit, and inserts a
// direct message. The recipient is notified best-effort after commit.
func (s *Store) SendMessage(ctx context.Context, sender, recipient, content string) (*Message, error) {
	msg, err := s.insertMessage(ctx, "send_message", sender, recipient, content)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(recipient, notify.NewEvent(notify.EventMessage, map[string]any{
		"id":     msg.ID,
		"sender": sender,
	}))
	return msg, nil
}

// Broadcast sends a message to all active members via the wildcard
// recipient. Subscribers other than the sender are notified after commit.
func (s *Store) Broadcast(ctx context.Context, sender, content string) (*Message, error) {
	msg, err := s.insertMessage(ctx, "broadcast", sender, BroadcastRecipient, content)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyAll(notify.NewEvent(notify.EventBroadcast, map[string]any{
		"id":     msg.ID,
		"sender": sender,
	}), sender)
	return msg, nil
}

func (s *Store) insertMessage(ctx context.Context, action, sender, recipient, content string) (msg *Message, err error) {
	defer func(start time.Time) { s.observe(ctx, action, start, err) }(time.Now())

	if err = validate.AgentName(sender); err != nil {
		return nil, err
	}
	// Only the broadcast operation may address the wildcard; a direct send
	// to "*" is rejected like any other invalid name.
	if action != "broadcast" || recipient != BroadcastRecipient {
		if err = validate.AgentName(recipient); err != nil {
			return nil, err
		}
	}
	if err = validate.MessageContent(content); err != nil {
		return nil, err
	}
	if err = s.limiter.Allow(sender); err != nil {
		return nil, err
	}

	ts := now()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			"INSERT INTO messages (sender, recipient, content, created_at) VALUES (?, ?, ?, ?)",
			sender, recipient, content, ts)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		msg = &Message{
			ID:        id,
			Sender:    sender,
			Recipient: recipient,
			Content:   content,
			CreatedAt: ts,
		}
		return appendAudit(tx, sender, action, "message", fmt.Sprint(id),
			map[string]any{"recipient": recipient})
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetMessages returns messages addressed to agent directly or via wildcard,
// oldest first. Returned direct messages are marked read and returned
// wildcard messages get an idempotent broadcast_reads row, both inside the
// same transaction as the read.
func (s *Store) GetMessages(ctx context.Context, agent string, includeRead, includeArchived bool) (messages []Message, err error) {
	defer func(start time.Time) { s.observe(ctx, "get_messages", start, err) }(time.Now())

	query := "SELECT " + messageColumns + " FROM messages WHERE (recipient = ? OR recipient = '*')"
	args := []any{agent}
	if !includeArchived {
		query += " AND archived_at IS NULL"
	}
	if !includeRead {
		query += ` AND read = 0 AND NOT EXISTS (
			SELECT 1 FROM broadcast_reads br
			WHERE br.message_id = messages.id AND br.agent_name = ?)`
		args = append(args, agent)
	}
	query += " ORDER BY created_at, id"

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		messages = []Message{}
		rows, err := tx.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			msg, err := scanMessage(rows)
			if err != nil {
				return err
			}
			messages = append(messages, *msg)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		var directIDs, broadcastIDs []int64
		for _, msg := range messages {
			if msg.Recipient == BroadcastRecipient {
				broadcastIDs = append(broadcastIDs, msg.ID)
			} else if !msg.Read {
				directIDs = append(directIDs, msg.ID)
			}
		}
		if len(directIDs) > 0 {
			placeholders := strings.Repeat("?,", len(directIDs))
			placeholders = placeholders[:len(placeholders)-1]
			args := make([]any, len(directIDs))
			for i, id := range directIDs {
				args[i] = id
			}
			if _, err := tx.Exec("UPDATE messages SET read = 1 WHERE id IN ("+placeholders+")", args...); err != nil {
				return err
			}
		}
		for _, id := range broadcastIDs {
			if _, err := tx.Exec(
				"INSERT OR IGNORE INTO broadcast_reads (agent_name, message_id) VALUES (?, ?)",
				agent, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// UnreadCount reports how many unread, unarchived messages await agent.
// It never marks anything read.
func (s *Store) UnreadCount(ctx context.Context, agent string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE (recipient = ? OR recipient = '*') AND read = 0 AND archived_at IS NULL
		 AND NOT EXISTS (
			 SELECT 1 FROM broadcast_reads br
			 WHERE br.message_id = messages.id AND br.agent_name = ?)`,
		agent, agent).Scan(&count)
	if err != nil {
		return 0, storageErr(err)
	}
	return count, nil
}

// UnreadPreview returns up to limit truncated unread messages, newest
// first, without side effects.
func (s *Store) UnreadPreview(ctx context.Context, agent string, limit int) ([]MessagePreview, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT sender, content, created_at FROM messages
		 WHERE (recipient = ? OR recipient = '*') AND read = 0 AND archived_at IS NULL
		 AND NOT EXISTS (
			 SELECT 1 FROM broadcast_reads br
			 WHERE br.message_id = messages.id AND br.agent_name = ?)
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		agent, agent, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	previews := []MessagePreview{}
	for rows.Next() {
		var p MessagePreview
		if err := rows.Scan(&p.Sender, &p.Content, &p.CreatedAt); err != nil {
			return nil, err
		}
		if len(p.Content) > 100 {
			p.Content = p.Content[:100]
		}
		previews = append(previews, p)
	}
	return previews, rows.Err()
}

// DeleteMessage soft-deletes a message. For direct messages the sender, the
// recipient, or a privileged role may act. For wildcard messages any member
// may act, but only the sender or a privileged role retires the shared row;
// everyone else retires it from their own view via broadcast_reads. A
// missing message returns (nil, nil); an unauthorized attempt returns a
// structured UNAUTHORIZED error with no mutation.
func (s *Store) DeleteMessage(ctx context.Context, messageID int64, agent string) (*Message, error) {
	return s.archiveOne(ctx, "delete_message", messageID, agent, false)
}

// ArchiveMessage soft-deletes a message and additionally marks it read.
// Authorization and the per-agent wildcard view rule match DeleteMessage.
func (s *Store) ArchiveMessage(ctx context.Context, messageID int64, agent string) (*Message, error) {
	return s.archiveOne(ctx, "archive_message", messageID, agent, true)
}

func (s *Store) archiveOne(ctx context.Context, action string, messageID int64, agent string, markRead bool) (msg *Message, err error) {
	defer func(start time.Time) { s.observe(ctx, action, start, err) }(time.Now())

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow("SELECT "+messageColumns+" FROM messages WHERE id = ?", messageID)
		found, err := scanMessage(row)
		if err == sql.ErrNoRows {
			return nil // absent: msg stays nil
		}
		if err != nil {
			return err
		}

		// Ownership of the row itself: the sender, the direct recipient,
		// or a privileged role.
		owner := agent == found.Sender || agent == found.Recipient
		if !owner {
			role, err := memberRole(tx, agent)
			if err != nil {
				return err
			}
			owner = privileged(role)
		}

		if found.Recipient == BroadcastRecipient && !owner {
			// A wildcard message is shared state: non-owners retire it
			// from their own view only, never from everyone's.
			if _, err := tx.Exec(
				"INSERT OR IGNORE INTO broadcast_reads (agent_name, message_id) VALUES (?, ?)",
				agent, messageID); err != nil {
				return err
			}
			found.Read = true
			msg = found
			return appendAudit(tx, agent, action, "message", fmt.Sprint(messageID), nil)
		}
		if !owner {
			return errors.Newf(errors.CodeUnauthorized,
				"agent %q may not %s message %d", agent, strings.ReplaceAll(action, "_", " "), messageID)
		}

		ts := now()
		if markRead {
			if _, err := tx.Exec("UPDATE messages SET archived_at = ?, read = 1 WHERE id = ?", ts, messageID); err != nil {
				return err
			}
			found.Read = true
			if found.Recipient == BroadcastRecipient {
				if _, err := tx.Exec(
					"INSERT OR IGNORE INTO broadcast_reads (agent_name, message_id) VALUES (?, ?)",
					agent, messageID); err != nil {
					return err
				}
			}
		} else {
			if _, err := tx.Exec("UPDATE messages SET archived_at = ? WHERE id = ?", ts, messageID); err != nil {
				return err
			}
		}
		found.ArchivedAt = &ts
		msg = found
		return appendAudit(tx, agent, action, "message", fmt.Sprint(messageID), nil)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ClearInbox bulk-archives the agent's active direct messages, optionally
// limited to those older than beforeDate and/or from one sender. It returns
// the number archived.
func (s *Store) ClearInbox(ctx context.Context, agent, beforeDate, sender string) (count int64, err error) {
	defer func(start time.Time) { s.observe(ctx, "clear_inbox", start, err) }(time.Now())

	if err = validate.AgentName(agent); err != nil {
		return 0, err
	}
	query := "UPDATE messages SET archived_at = ? WHERE recipient = ? AND archived_at IS NULL"
	args := []any{now(), agent}
	if beforeDate != "" {
		cutoff, err := validate.ISODate(beforeDate)
		if err != nil {
			return 0, err
		}
		query += " AND created_at < ?"
		args = append(args, canonicalTime(cutoff))
	}
	if sender != "" {
		if err = validate.AgentName(sender); err != nil {
			return 0, err
		}
		query += " AND sender = ?"
		args = append(args, sender)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(query, args...)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		if err != nil {
			return err
		}
		return appendAudit(tx, agent, "clear_inbox", "", "",
			map[string]any{"archived_count": count})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// PurgeMessages hard-deletes messages older than beforeDate, removing
// dependent broadcast_reads rows first. The acting agent must currently
// hold an admin or lead role; otherwise an UNAUTHORIZED error is returned
// with no mutation.
func (s *Store) PurgeMessages(ctx context.Context, agent, beforeDate string) (count int64, err error) {
	defer func(start time.Time) { s.observe(ctx, "purge_messages", start, err) }(time.Now())

	if err = validate.AgentName(agent); err != nil {
		return 0, err
	}
	cutoff, err := validate.ISODate(beforeDate)
	if err != nil {
		return 0, err
	}
	boundary := canonicalTime(cutoff)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		role, err := memberRole(tx, agent)
		if err != nil {
			return err
		}
		if !privileged(role) {
			return errors.Newf(errors.CodeUnauthorized,
				"purge_messages requires admin or lead role, agent %q has %q", agent, role)
		}
		if _, err := tx.Exec(
			"DELETE FROM broadcast_reads WHERE message_id IN (SELECT id FROM messages WHERE created_at < ?)",
			boundary); err != nil {
			return err
		}
		res, err := tx.Exec("DELETE FROM messages WHERE created_at < ?", boundary)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		if err != nil {
			return err
		}
		return appendAudit(tx, agent, "purge_messages", "", "",
			map[string]any{"purged_count": count, "before_date": boundary})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var read int
	var archived sql.NullString
	if err := row.Scan(&msg.ID, &msg.Sender, &msg.Recipient, &msg.Content,
		&msg.CreatedAt, &read, &archived); err != nil {
		return nil, err
	}
	msg.Read = read != 0
	if archived.Valid {
		msg.ArchivedAt = &archived.String
	}
	return &msg, nil
}
