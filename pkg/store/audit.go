package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEntry records one notification attempt.
type AuditEntry struct {
	ID        string    `db:"id" json:"id"`
	TaskID    string    `db:"task_id" json:"task_id"`
	Recipient string    `db:"recipient" json:"recipient"`
	SentAt    time.Time `db:"sent_at" json:"sent_at"`
	Success   bool      `db:"success" json:"success"`
	Error     string    `db:"error" json:"error,omitempty"`
}

// WriteNotificationAudit stores e. SentAt defaults to the store clock.
func (s *Store) WriteNotificationAudit(ctx context.Context, e AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.SentAt.IsZero() {
		e.SentAt = s.now()
	}
	const q = `INSERT INTO notification_audit (id, task_id, recipient, sent_at, success, error)
		VALUES (:id, :task_id, :recipient, :sent_at, :success, :error)`
	if _, err := s.db.NamedExecContext(ctx, q, e); err != nil {
		return fmt.Errorf("insert notification audit: %w", err)
	}
	return nil
}

func (s *Store) ListNotificationAudit(ctx context.Context, taskID string) ([]AuditEntry, error) {
	var out []AuditEntry
	q := s.db.Rebind(`SELECT id, task_id, recipient, sent_at, success, error FROM notification_audit WHERE task_id = ? ORDER BY sent_at`)
	if err := s.db.SelectContext(ctx, &out, q, taskID); err != nil {
		return nil, fmt.Errorf("list notification audit of %s: %w", taskID, err)
	}
	return out, nil
}
