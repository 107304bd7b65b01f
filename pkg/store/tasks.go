package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Brickmii/team-table/pkg/errors"
	"github.com/Brickmii/team-table/pkg/notify"
	"github.com/Brickmii/team-table/pkg/validate"
)

// Task is a unit of work on the shared board. The only guarded transition
// is pending -> in_progress, which happens through Claim and sets the
// assignee atomically.
type Task struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	Creator     string  `json:"creator"`
	Assignee    *string `json:"assignee"`
	Result      *string `json:"result"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

const taskColumns = "id, title, description, status, priority, creator, assignee, result, created_at, updated_at"

// CreateTask posts a pending task. An empty assignee leaves the task open
// for any claimer; a named assignee restricts claiming to that agent or a
// privileged role.
func (s *Store) CreateTask(ctx context.Context, title, creator, description, assignee, priority string) (task *Task, err error) {
	defer func(start time.Time) { s.observe(ctx, "create_task", start, err) }(time.Now())

	if err = validate.TaskTitle(title); err != nil {
		return nil, err
	}
	if err = validate.AgentName(creator); err != nil {
		return nil, err
	}
	if err = validate.TaskDescription(description); err != nil {
		return nil, err
	}
	if assignee != "" {
		if err = validate.AgentName(assignee); err != nil {
			return nil, err
		}
	}
	if priority == "" {
		priority = "medium"
	}
	if err = validate.Priority(priority); err != nil {
		return nil, err
	}

	ts := now()
	var assigneeArg any
	if assignee != "" {
		assigneeArg = assignee
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT INTO tasks (title, description, status, priority, creator, assignee, created_at, updated_at)
			 VALUES (?, ?, 'pending', ?, ?, ?, ?, ?)`,
			title, description, priority, creator, assigneeArg, ts, ts)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		task = &Task{
			ID:          id,
			Title:       title,
			Description: description,
			Status:      "pending",
			Priority:    priority,
			Creator:     creator,
			CreatedAt:   ts,
			UpdatedAt:   ts,
		}
		if assignee != "" {
			task.Assignee = &assignee
		}
		return appendAudit(tx, creator, "create_task", "task", fmt.Sprint(id),
			map[string]any{"title": title, "assignee": assignee})
	})
	if err != nil {
		return nil, err
	}

	event := notify.NewEvent(notify.EventTaskAssigned, map[string]any{
		"id":       task.ID,
		"title":    title,
		"creator":  creator,
		"assignee": assignee,
		"priority": priority,
	})
	if assignee != "" {
		s.notifier.Notify(assignee, event)
	} else {
		s.notifier.NotifyAll(event, creator)
	}
	return task, nil
}

// ListTasks returns tasks oldest first, optionally filtered by status
// and/or assignee.
func (s *Store) ListTasks(ctx context.Context, status, assignee string) ([]Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE 1=1"
	var args []any
	if status != "" {
		if err := validate.TaskStatus(status); err != nil {
			return nil, err
		}
		query += " AND status = ?"
		args = append(args, status)
	}
	if assignee != "" {
		query += " AND assignee = ?"
		args = append(args, assignee)
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// ClaimTask atomically moves a pending task to in_progress with agent as
// assignee. Outcomes are distinct: a missing task returns (nil, nil); a
// task already past pending returns a CONFLICT error regardless of who
// holds it; a still-pending task pre-assigned to someone else returns
// UNAUTHORIZED unless agent holds a privileged role. The conditional
// update makes concurrent claims first-committer-wins with no
// application-level locking.
func (s *Store) ClaimTask(ctx context.Context, taskID int64, agent string) (task *Task, err error) {
	defer func(start time.Time) { s.observe(ctx, "claim_task", start, err) }(time.Now())

	if err = validate.AgentName(agent); err != nil {
		return nil, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = ?", taskID)
		current, err := scanTask(row)
		if err == sql.ErrNoRows {
			return nil // absent: task stays nil
		}
		if err != nil {
			return err
		}

		if current.Status != "pending" {
			return errors.Newf(errors.CodeConflict,
				"task %d is not pending (status %q)", taskID, current.Status)
		}
		// The creator-set-assignee restriction only applies pre-claim.
		if current.Assignee != nil && *current.Assignee != agent {
			role, err := memberRole(tx, agent)
			if err != nil {
				return err
			}
			if !privileged(role) {
				return errors.Newf(errors.CodeUnauthorized,
					"task %d is assigned to %q", taskID, *current.Assignee)
			}
		}

		res, err := tx.Exec(
			"UPDATE tasks SET assignee = ?, status = 'in_progress', updated_at = ? WHERE id = ? AND status = 'pending'",
			agent, now(), taskID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			// Lost the race to a concurrent claimer.
			return errors.Newf(errors.CodeConflict,
				"task %d not found or not in pending status", taskID)
		}

		claimed, err := getTask(tx, taskID)
		if err != nil {
			return err
		}
		task = claimed
		return appendAudit(tx, agent, "claim_task", "task", fmt.Sprint(taskID), nil)
	})
	if err != nil {
		return nil, err
	}
	if task != nil {
		s.notifier.NotifyAll(notify.NewEvent(notify.EventTaskUpdated, map[string]any{
			"id":       taskID,
			"status":   "in_progress",
			"assignee": agent,
		}), agent)
	}
	return task, nil
}

// UpdateTask sets a task's status and optionally its result. The acting
// agent is required and must be the creator, the current assignee, or hold
// a privileged role; the reserved SystemPrincipal bypasses the ownership
// check for trusted internal callers. A missing task returns (nil, nil).
func (s *Store) UpdateTask(ctx context.Context, taskID int64, status, result, agent string) (task *Task, err error) {
	defer func(start time.Time) { s.observe(ctx, "update_task", start, err) }(time.Now())

	if agent == "" {
		return nil, errors.New(errors.CodeInvalidInput, "acting agent is required for update_task")
	}
	if agent != SystemPrincipal {
		if err = validate.AgentName(agent); err != nil {
			return nil, err
		}
	}
	if err = validate.TaskStatus(status); err != nil {
		return nil, err
	}
	if result != "" {
		if err = validate.TaskResult(result); err != nil {
			return nil, err
		}
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = ?", taskID)
		current, err := scanTask(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}

		authorized := agent == SystemPrincipal ||
			agent == current.Creator ||
			(current.Assignee != nil && agent == *current.Assignee)
		if !authorized {
			role, err := memberRole(tx, agent)
			if err != nil {
				return err
			}
			authorized = privileged(role)
		}
		if !authorized {
			return errors.Newf(errors.CodeUnauthorized,
				"agent %q may not update task %d", agent, taskID)
		}

		if result != "" {
			_, err = tx.Exec("UPDATE tasks SET status = ?, result = ?, updated_at = ? WHERE id = ?",
				status, result, now(), taskID)
		} else {
			_, err = tx.Exec("UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?",
				status, now(), taskID)
		}
		if err != nil {
			return err
		}

		updated, err := getTask(tx, taskID)
		if err != nil {
			return err
		}
		task = updated
		return appendAudit(tx, agent, "update_task", "task", fmt.Sprint(taskID),
			map[string]any{"status": status})
	})
	if err != nil {
		return nil, err
	}
	if task != nil {
		s.notifier.NotifyAll(notify.NewEvent(notify.EventTaskUpdated, map[string]any{
			"id":     taskID,
			"status": status,
		}), agent)
	}
	return task, nil
}

func scanTask(row rowScanner) (*Task, error) {
	var task Task
	var assignee, result sql.NullString
	if err := row.Scan(&task.ID, &task.Title, &task.Description, &task.Status,
		&task.Priority, &task.Creator, &assignee, &result,
		&task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, err
	}
	if assignee.Valid {
		task.Assignee = &assignee.String
	}
	if result.Valid {
		task.Result = &result.String
	}
	return &task, nil
}

func getTask(tx *sql.Tx, taskID int64) (*Task, error) {
	row := tx.QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = ?", taskID)
	return scanTask(row)
}
