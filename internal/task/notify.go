package task

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Notification is a one-shot event addressed to an agent (or broadcast when
// AgentID is empty), produced by the cascade and delete paths.
type Notification struct {
	ID        int64
	AgentID   string
	TaskID    string
	Type      string
	Message   string
	CreatedAt time.Time
	Read      bool
}

func insertNotification(ctx context.Context, tx *sql.Tx, taskID, typ, message, agentID string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications(agent_id, task_id, type, message, created_at, read)
		VALUES(?, ?, ?, ?, ?, 0)`,
		nullableString(agentID), taskID, typ, message, now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert notification: %w", classify(err))
	}
	return nil
}

// UnreadNotifications returns the newest unread notifications addressed to
// agentID or broadcast, marking them read in the same transaction.
func (s *Store) UnreadNotifications(ctx context.Context, agentID string, limit int) ([]Notification, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin watch: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id, COALESCE(agent_id, ''), task_id, type, message, created_at
		FROM notifications
		WHERE (agent_id = ? OR agent_id IS NULL) AND read = 0
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", classify(err))
	}
	var out []Notification
	for rows.Next() {
		var n Notification
		var createdAt string
		if err := rows.Scan(&n.ID, &n.AgentID, &n.TaskID, &n.Type, &n.Message, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan notification: %w", classify(err))
		}
		if n.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse notification time: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate notifications: %w", classify(err))
	}
	rows.Close()

	for i := range out {
		if _, err := tx.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, out[i].ID); err != nil {
			return nil, fmt.Errorf("mark notification read: %w", classify(err))
		}
		out[i].Read = true
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit watch: %w", classify(err))
	}
	return out, nil
}
