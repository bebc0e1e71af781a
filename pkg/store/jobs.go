package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// MemberJob is a queued request to add a user to a project's member set.
type MemberJob struct {
	ID            string    `db:"id"`
	ProjectID     string    `db:"project_id"`
	UserID        string    `db:"user_id"`
	Attempts      int       `db:"attempts"`
	NextAttemptAt time.Time `db:"next_attempt_at"`
	LastError     string    `db:"last_error"`
	Failed        bool      `db:"failed"`
	CreatedAt     time.Time `db:"created_at"`
}

const memberJobColumns = `id, project_id, user_id, attempts, next_attempt_at, last_error, failed, created_at`

// EnqueueMemberJob queues a membership addition unless one is already pending
// for the same project and user. It reports whether a job was added.
func (s *Store) EnqueueMemberJob(ctx context.Context, projectID, userID string) (bool, error) {
	added := false
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var n int
		q := tx.Rebind(`SELECT COUNT(*) FROM member_jobs WHERE project_id = ? AND user_id = ? AND failed = ?`)
		if err := tx.GetContext(ctx, &n, q, projectID, userID, false); err != nil {
			return fmt.Errorf("check member job: %w", err)
		}
		if n > 0 {
			return nil
		}
		now := s.now()
		q = tx.Rebind(`INSERT INTO member_jobs (` + memberJobColumns + `) VALUES (?, ?, ?, 0, ?, '', ?, ?)`)
		if _, err := tx.ExecContext(ctx, q, uuid.NewString(), projectID, userID, now, false, now); err != nil {
			return fmt.Errorf("insert member job: %w", err)
		}
		added = true
		return nil
	})
	return added, err
}

// DueMemberJobs returns up to limit pending jobs whose next attempt is at or before now.
func (s *Store) DueMemberJobs(ctx context.Context, now time.Time, limit int) ([]MemberJob, error) {
	var out []MemberJob
	q := s.db.Rebind(`SELECT ` + memberJobColumns + ` FROM member_jobs
		WHERE failed = ? AND next_attempt_at <= ? ORDER BY next_attempt_at LIMIT ?`)
	if err := s.db.SelectContext(ctx, &out, q, false, now.UTC(), limit); err != nil {
		return nil, fmt.Errorf("list due member jobs: %w", err)
	}
	return out, nil
}

// CompleteMemberJob removes a finished job.
func (s *Store) CompleteMemberJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM member_jobs WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("complete member job %s: %w", id, err)
	}
	return expectAffected(res, "member job", id)
}

// RetryMemberJob records a failed attempt. A nil next marks the job as
// permanently failed; it stays in the table as the failure log.
func (s *Store) RetryMemberJob(ctx context.Context, id string, next *time.Time, lastErr string) error {
	var (
		q    string
		args []any
	)
	if next != nil {
		q = `UPDATE member_jobs SET attempts = attempts + 1, next_attempt_at = ?, last_error = ? WHERE id = ?`
		args = []any{next.UTC(), lastErr, id}
	} else {
		q = `UPDATE member_jobs SET attempts = attempts + 1, failed = ?, last_error = ? WHERE id = ?`
		args = []any{true, lastErr, id}
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return fmt.Errorf("retry member job %s: %w", id, err)
	}
	return expectAffected(res, "member job", id)
}

// FailedMemberJobs lists jobs that exhausted their attempts.
func (s *Store) FailedMemberJobs(ctx context.Context) ([]MemberJob, error) {
	var out []MemberJob
	q := s.db.Rebind(`SELECT ` + memberJobColumns + ` FROM member_jobs WHERE failed = ? ORDER BY created_at`)
	if err := s.db.SelectContext(ctx, &out, q, true); err != nil {
		return nil, fmt.Errorf("list failed member jobs: %w", err)
	}
	return out, nil
}
