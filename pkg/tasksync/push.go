package tasksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harrisonrobin/tasklink/pkg/google"
	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/transcode"
)

// Pusher mirrors local task mutations to the project's external list. api may
// be nil for projects without a binding.
type Pusher struct {
	log   *slog.Logger
	store Store
}

func NewPusher(log *slog.Logger, st Store) *Pusher {
	return &Pusher{log: log, store: st}
}

// Create stores a new task and mirrors it. When mirroring fails the local task
// is removed again and the error is returned.
func (p *Pusher) Create(ctx context.Context, project model.Project, patch model.TaskPatch, api TaskAPI) (model.Task, error) {
	// Linkage is only ever written by sync.
	patch.External = model.Field[model.Linkage]{}
	if err := patch.Validate(); err != nil {
		return model.Task{}, err
	}
	task := model.NewTask(project.ID, patch)
	if strings.TrimSpace(task.Title) == "" {
		return model.Task{}, fmt.Errorf("%w: task title is required", model.ErrInvalidArgument)
	}

	created, err := p.store.CreateTask(ctx, task)
	if err != nil {
		return model.Task{}, err
	}

	if project.Bound() {
		created, err = p.mirrorCreate(ctx, project, created, api)
		if err != nil {
			return model.Task{}, err
		}
	}

	p.ensureMember(ctx, created)
	return created, nil
}

func (p *Pusher) mirrorCreate(ctx context.Context, project model.Project, created model.Task, api TaskAPI) (model.Task, error) {
	if api == nil {
		p.rollbackCreate(ctx, created.ID)
		return model.Task{}, fmt.Errorf("%w: project %s is bound but no provider client was supplied", model.ErrInvalidArgument, project.ID)
	}

	ext, err := api.CreateTask(ctx, project.ExternalListID, transcode.LocalToExternal(createPayload(created)))
	if err != nil {
		p.rollbackCreate(ctx, created.ID)
		return model.Task{}, fmt.Errorf("mirror task %s: %w", created.ID, err)
	}

	link := model.Linkage{TaskID: ext.Id, ListID: project.ExternalListID}
	if err := p.store.UpdateTask(ctx, created.ID, model.TaskPatch{External: model.Set(link)}); err != nil {
		// Keep both sides consistent: neither record survives.
		dctx, cancel := bookkeepingContext(ctx)
		defer cancel()
		if derr := api.DeleteTask(dctx, project.ExternalListID, ext.Id); derr != nil {
			p.log.Error("could not remove external task after failed link", "task_id", created.ID, "external_task_id", ext.Id, "error", derr)
		}
		p.rollbackCreate(ctx, created.ID)
		return model.Task{}, fmt.Errorf("link task %s: %w", created.ID, err)
	}

	linked, err := p.store.GetTask(ctx, created.ID)
	if err != nil {
		return model.Task{}, err
	}
	return linked, nil
}

func (p *Pusher) rollbackCreate(ctx context.Context, taskID string) {
	ctx, cancel := bookkeepingContext(ctx)
	defer cancel()
	if err := p.store.DeleteTask(ctx, taskID); err != nil {
		p.log.Error("could not roll back local task create", "task_id", taskID, "error", err)
		return
	}
	p.log.Info("rolled back local task create", "task_id", taskID)
}

// Update applies patch locally, then mirrors the provider-owned fields. A
// failed mirror is logged and the local update stands; the next pull
// reconciles by timestamp.
func (p *Pusher) Update(ctx context.Context, project model.Project, taskID string, patch model.TaskPatch, api TaskAPI) (model.Task, error) {
	patch.External = model.Field[model.Linkage]{}
	if patch.IsEmpty() {
		return model.Task{}, fmt.Errorf("%w: nothing to update", model.ErrInvalidArgument)
	}
	if err := patch.Validate(); err != nil {
		return model.Task{}, err
	}
	if title, ok := patch.Title.Value(); patch.Title.IsNull() || (ok && strings.TrimSpace(title) == "") {
		return model.Task{}, fmt.Errorf("%w: task title cannot be cleared", model.ErrInvalidArgument)
	}

	if _, err := p.projectTask(ctx, project, taskID); err != nil {
		return model.Task{}, err
	}
	if err := p.store.UpdateTask(ctx, taskID, patch); err != nil {
		return model.Task{}, err
	}
	after, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}

	if after.Linked() && api != nil && touchesProvider(patch) {
		_, err := api.UpdateTask(ctx, after.External.ListID, after.External.TaskID, transcode.LocalToExternal(patch))
		if err != nil {
			p.log.Warn("external update failed, local update kept", "task_id", taskID, "external_task_id", after.External.TaskID, "error", err)
		}
	}

	if patch.AssigneeID.Present() {
		p.ensureMember(ctx, after)
	}
	return after, nil
}

// Delete removes a task. A linked task is deleted on the provider first and
// the local record is kept if that fails. A task the provider no longer has
// counts as deleted there.
func (p *Pusher) Delete(ctx context.Context, project model.Project, taskID string, api TaskAPI) error {
	task, err := p.projectTask(ctx, project, taskID)
	if err != nil {
		return err
	}

	if task.Linked() {
		if api == nil {
			return fmt.Errorf("%w: task %s is linked but no provider client was supplied", model.ErrInvalidArgument, taskID)
		}
		err := api.DeleteTask(ctx, task.External.ListID, task.External.TaskID)
		switch {
		case err == nil:
		case externalGone(err):
			p.log.Info("external task already gone", "task_id", taskID, "external_task_id", task.External.TaskID)
		default:
			return fmt.Errorf("delete external task %s: %w", task.External.TaskID, err)
		}
	}

	return p.store.DeleteTask(ctx, taskID)
}

func (p *Pusher) projectTask(ctx context.Context, project model.Project, taskID string) (model.Task, error) {
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if task.ProjectID != project.ID {
		return model.Task{}, fmt.Errorf("task %s in project %s: %w", taskID, project.ID, model.ErrNotFound)
	}
	return task, nil
}

// ensureMember queues a membership addition for an assignee outside the
// project. It never fails the task write.
func (p *Pusher) ensureMember(ctx context.Context, task model.Task) {
	if task.AssigneeID == "" {
		return
	}
	ok, err := p.store.IsProjectMember(ctx, task.ProjectID, task.AssigneeID)
	if err != nil {
		p.log.Warn("could not check project membership", "project_id", task.ProjectID, "user_id", task.AssigneeID, "error", err)
		return
	}
	if ok {
		return
	}
	if _, err := p.store.EnqueueMemberJob(ctx, task.ProjectID, task.AssigneeID); err != nil {
		p.log.Warn("could not queue membership", "project_id", task.ProjectID, "user_id", task.AssigneeID, "error", err)
	}
}

// createPayload is the full task minus cleared fields, which a new record
// does not need.
func createPayload(t model.Task) model.TaskPatch {
	patch := model.PatchFromTask(t)
	patch.External = model.Field[model.Linkage]{}
	if patch.DueAt.IsNull() {
		patch.DueAt = model.Field[time.Time]{}
	}
	if patch.CompletedAt.IsNull() {
		patch.CompletedAt = model.Field[time.Time]{}
	}
	return patch
}

func touchesProvider(p model.TaskPatch) bool {
	return p.Title.Present() || p.Description.Present() || p.Status.Present() ||
		p.DueAt.Present() || p.CompletedAt.Present()
}

func externalGone(err error) bool {
	var apiErr *google.APIError
	return errors.As(err, &apiErr) && apiErr.IsNotFound()
}
