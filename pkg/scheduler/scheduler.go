// Package scheduler drives the periodic pull of every sync-enabled project
// using each owner's stored refresh credential.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harrisonrobin/tasklink/pkg/auth"
	"github.com/harrisonrobin/tasklink/pkg/membership"
	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/tasksync"
)

const (
	DefaultInterval    = 5 * time.Minute
	DefaultConcurrency = 4
)

type Projects interface {
	ListSyncEnabledProjects(ctx context.Context) ([]model.Project, error)
	UpdateProjectSyncStatus(ctx context.Context, projectID string, status model.SyncStatus, lastSyncAt *time.Time, syncErr string) error
}

type Credentials interface {
	ResolveScheduled(ctx context.Context, userID string) (auth.Credential, error)
}

type Puller interface {
	Pull(ctx context.Context, projectID string, api tasksync.TaskAPI) (model.SyncResult, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (membership.Stats, error)
}

// Tally counts the outcome of one tick.
type Tally struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

type Scheduler struct {
	log         *slog.Logger
	projects    Projects
	creds       Credentials
	dialer      tasksync.Dialer
	puller      Puller
	members     Sweeper
	concurrency int
}

// New returns a scheduler. members may be nil.
func New(log *slog.Logger, projects Projects, creds Credentials, dialer tasksync.Dialer, puller Puller, members Sweeper, concurrency int) *Scheduler {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Scheduler{
		log:         log,
		projects:    projects,
		creds:       creds,
		dialer:      dialer,
		puller:      puller,
		members:     members,
		concurrency: concurrency,
	}
}

// Tick gives every sync-enabled project exactly one pull attempt. A failing
// project is counted and never stops the others.
func (s *Scheduler) Tick(ctx context.Context) (Tally, error) {
	projects, err := s.projects.ListSyncEnabledProjects(ctx)
	if err != nil {
		return Tally{}, fmt.Errorf("list sync enabled projects: %w", err)
	}

	var synced, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, p := range projects {
		g.Go(func() error {
			if err := s.syncProject(ctx, p); err != nil {
				failed.Add(1)
				s.log.Warn("scheduled sync failed", "project_id", p.ID, "user_id", p.OwnerID, "error", err)
				return nil
			}
			synced.Add(1)
			return nil
		})
	}
	g.Wait()

	tally := Tally{Synced: int(synced.Load()), Failed: int(failed.Load())}
	s.log.Info("scheduler tick finished", "projects", len(projects), "synced", tally.Synced, "failed", tally.Failed)

	if s.members != nil {
		stats, err := s.members.Sweep(ctx)
		if err != nil {
			s.log.Error("membership sweep failed", "error", err)
		} else if stats != (membership.Stats{}) {
			s.log.Info("membership sweep finished", "done", stats.Done, "retried", stats.Retried, "failed", stats.Failed)
		}
	}
	return tally, nil
}

func (s *Scheduler) syncProject(ctx context.Context, p model.Project) error {
	cred, err := s.creds.ResolveScheduled(ctx, p.OwnerID)
	if err != nil {
		s.recordFailure(ctx, p.ID, err)
		return err
	}
	api, err := s.dialer.Dial(ctx, cred)
	if err != nil {
		s.recordFailure(ctx, p.ID, err)
		return err
	}
	_, err = s.puller.Pull(ctx, p.ID, api)
	return err
}

// recordFailure marks failures that happen before the pull starts, which the
// pull itself never gets to record.
func (s *Scheduler) recordFailure(ctx context.Context, projectID string, cause error) {
	if err := s.projects.UpdateProjectSyncStatus(ctx, projectID, model.SyncStatusError, nil, cause.Error()); err != nil {
		s.log.Error("could not record sync status", "project_id", projectID, "error", err)
	}
}

// Run ticks immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil {
			s.log.Error("scheduler tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
