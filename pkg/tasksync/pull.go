package tasksync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/store"
	"github.com/harrisonrobin/tasklink/pkg/transcode"
)

const (
	DefaultBatchSize = 100
	// DefaultLeaseTTL bounds how long a crashed pull keeps its project locked.
	DefaultLeaseTTL = 10 * time.Minute
)

type Orchestrator struct {
	log       *slog.Logger
	store     Store
	batchSize int
	leaseTTL  time.Duration
	now       func() time.Time

	flight singleflight.Group
}

func NewOrchestrator(log *slog.Logger, st Store, batchSize int) *Orchestrator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Orchestrator{
		log:       log,
		store:     st,
		batchSize: batchSize,
		leaseTTL:  DefaultLeaseTTL,
		now:       time.Now,
	}
}

// SetLeaseTTL sets how long a pull holds its project's lease. It must exceed
// the longest expected pull.
func (o *Orchestrator) SetLeaseTTL(ttl time.Duration) {
	if ttl > 0 {
		o.leaseTTL = ttl
	}
}

// Pull reconciles the project's external list into its local tasks. Callers
// in this process that trigger the same project while a pull is running join
// that pull and share its result. A pull running elsewhere against the same
// database makes Pull fail with model.ErrSyncInProgress.
func (o *Orchestrator) Pull(ctx context.Context, projectID string, api TaskAPI) (model.SyncResult, error) {
	v, err, shared := o.flight.Do(projectID, func() (any, error) {
		return o.pull(ctx, projectID, api)
	})
	if shared {
		o.log.Debug("joined in-flight pull", "project_id", projectID)
	}
	res, _ := v.(model.SyncResult)
	return res, err
}

func (o *Orchestrator) pull(ctx context.Context, projectID string, api TaskAPI) (model.SyncResult, error) {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return failed(err), err
	}
	if !project.Bound() {
		err := fmt.Errorf("project %s: %w", projectID, model.ErrNotLinked)
		return failed(err), err
	}

	lease := uuid.NewString()
	acquired, err := o.store.AcquireSyncLease(ctx, project.ID, lease, o.leaseTTL)
	if err != nil {
		return failed(err), err
	}
	if !acquired {
		err := fmt.Errorf("project %s: %w", projectID, model.ErrSyncInProgress)
		o.log.Info("pull skipped, project is locked", "project_id", project.ID)
		return failed(err), err
	}
	defer o.releaseLease(ctx, project.ID, lease)

	o.setStatus(ctx, project.ID, model.SyncStatusPending, nil, "")

	res, err := o.reconcile(ctx, project, api)
	if err != nil {
		o.log.Error("pull failed", "project_id", project.ID, "added", res.Added, "updated", res.Updated, "error", err)
		o.setStatus(ctx, project.ID, model.SyncStatusError, nil, err.Error())
		res.Success = false
		res.Error = err.Error()
		return res, err
	}

	now := o.now().UTC()
	o.setStatus(ctx, project.ID, model.SyncStatusSynced, &now, "")
	res.Success = true
	o.log.Info("pull finished", "project_id", project.ID, "added", res.Added, "updated", res.Updated)
	return res, nil
}

// reconcile applies one create or update decision per external task. Decisions
// are committed in chunks; a failed chunk leaves earlier chunks in place and
// the returned counts cover only committed work.
func (o *Orchestrator) reconcile(ctx context.Context, project model.Project, api TaskAPI) (model.SyncResult, error) {
	var res model.SyncResult

	remote, err := api.ListTasks(ctx, project.ExternalListID)
	if err != nil {
		return res, fmt.Errorf("list external tasks: %w", err)
	}
	local, err := o.store.GetTasksByProject(ctx, project.ID)
	if err != nil {
		return res, fmt.Errorf("load local tasks: %w", err)
	}

	linked := make(map[string]model.Task, len(local))
	for _, t := range local {
		if t.Linked() {
			linked[t.External.TaskID] = t
		}
	}

	var (
		ops            []store.Op
		added, updated int
		seen           = make(map[string]bool, len(remote))
	)
	flush := func() error {
		if len(ops) == 0 {
			return nil
		}
		if err := o.store.AtomicBatch(ctx, ops); err != nil {
			return fmt.Errorf("apply pulled tasks: %w", err)
		}
		res.Added += added
		res.Updated += updated
		ops, added, updated = ops[:0], 0, 0
		return nil
	}

	for _, ext := range remote {
		if ext == nil || ext.Id == "" {
			o.log.Debug("skipping external task without id", "project_id", project.ID)
			continue
		}
		if seen[ext.Id] {
			continue
		}
		seen[ext.Id] = true

		current, ok := linked[ext.Id]
		switch {
		case !ok:
			task := model.NewTask(project.ID, transcode.ExternalToLocal(ext, project.ExternalListID))
			ops = append(ops, store.CreateOp(task))
			added++
		case transcode.LastModified(ext).After(current.UpdatedAt) && transcode.NeedsUpdate(current, ext):
			ops = append(ops, store.UpdateOp(current.ID, transcode.ExternalChanges(ext)))
			updated++
		default:
			continue
		}

		if len(ops) >= o.batchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}

	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}

func (o *Orchestrator) setStatus(ctx context.Context, projectID string, status model.SyncStatus, at *time.Time, syncErr string) {
	ctx, cancel := bookkeepingContext(ctx)
	defer cancel()
	if err := o.store.UpdateProjectSyncStatus(ctx, projectID, status, at, syncErr); err != nil {
		o.log.Error("could not record sync status", "project_id", projectID, "status", status, "error", err)
	}
}

func (o *Orchestrator) releaseLease(ctx context.Context, projectID, lease string) {
	ctx, cancel := bookkeepingContext(ctx)
	defer cancel()
	if err := o.store.ReleaseSyncLease(ctx, projectID, lease); err != nil {
		o.log.Error("could not release sync lease", "project_id", projectID, "error", err)
	}
}

func failed(err error) model.SyncResult {
	return model.SyncResult{Error: err.Error()}
}
