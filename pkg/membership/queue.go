// Package membership drains the queue of pending project membership
// additions. Jobs are queued when a task is assigned to someone outside the
// project, and are retried with exponential backoff.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/store"
)

const (
	DefaultMaxAttempts = 5
	baseDelay          = time.Minute
	maxDelay           = time.Hour
	sweepLimit         = 100
)

type Store interface {
	DueMemberJobs(ctx context.Context, now time.Time, limit int) ([]store.MemberJob, error)
	AddProjectMember(ctx context.Context, projectID, userID string) error
	CompleteMemberJob(ctx context.Context, id string) error
	RetryMemberJob(ctx context.Context, id string, next *time.Time, lastErr string) error
}

type Worker struct {
	log         *slog.Logger
	store       Store
	maxAttempts int
	now         func() time.Time
}

func NewWorker(log *slog.Logger, st Store, maxAttempts int) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Worker{log: log, store: st, maxAttempts: maxAttempts, now: time.Now}
}

// Stats counts the outcomes of one sweep.
type Stats struct {
	Done    int
	Retried int
	Failed  int
}

// Sweep runs every job that is due now, once. A job for a project that no
// longer exists fails without further attempts.
func (w *Worker) Sweep(ctx context.Context) (Stats, error) {
	var stats Stats

	jobs, err := w.store.DueMemberJobs(ctx, w.now(), sweepLimit)
	if err != nil {
		return stats, err
	}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		addErr := w.store.AddProjectMember(ctx, job.ProjectID, job.UserID)
		if addErr == nil {
			if err := w.store.CompleteMemberJob(ctx, job.ID); err != nil {
				return stats, err
			}
			w.log.Info("added project member", "project_id", job.ProjectID, "user_id", job.UserID)
			stats.Done++
			continue
		}

		attempts := job.Attempts + 1
		var next *time.Time
		if attempts < w.maxAttempts && !errors.Is(addErr, model.ErrNotFound) {
			at := w.now().Add(Backoff(attempts))
			next = &at
		}
		if err := w.store.RetryMemberJob(ctx, job.ID, next, addErr.Error()); err != nil {
			return stats, fmt.Errorf("record member job failure: %w", err)
		}

		if next == nil {
			w.log.Error("giving up on project member", "project_id", job.ProjectID, "user_id", job.UserID, "attempts", attempts, "error", addErr)
			stats.Failed++
		} else {
			w.log.Warn("project member add failed, will retry", "project_id", job.ProjectID, "user_id", job.UserID, "next_attempt", *next, "error", addErr)
			stats.Retried++
		}
	}
	return stats, nil
}

// Backoff returns the delay before retry number attempt, doubling from one
// minute up to an hour.
func Backoff(attempt int) time.Duration {
	d := baseDelay
	for i := 1; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	return min(d, maxDelay)
}
