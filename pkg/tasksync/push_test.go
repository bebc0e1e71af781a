package tasksync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/tasklink/pkg/google"
	"github.com/harrisonrobin/tasklink/pkg/model"
)

func TestPushCreateStoresLinkage(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	p := newProject(t, s, "L1")
	api := newFakeAPI()

	due := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	task, err := NewPusher(discardLogger(), s).Create(ctx, p, model.TaskPatch{
		Title: model.Set("Draft launch post"),
		DueAt: model.Set(due),
	}, api)
	require.NoError(t, err)

	require.True(t, task.Linked())
	assert.Equal(t, "L1", task.External.ListID)
	assert.False(t, task.External.ExternalOrigin)

	remote, err := api.ListTasks(ctx, "L1")
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, task.External.TaskID, remote[0].Id)
	assert.Equal(t, "Draft launch post", remote[0].Title)
	assert.Equal(t, "2024-06-01T00:00:00Z", remote[0].Due)
	assert.Equal(t, "needsAction", remote[0].Status)
}

func TestPushCreateRollsBackOnExternalFailure(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	p := newProject(t, s, "L1")

	api := newFakeAPI()
	api.createErr = &google.APIError{Op: "create task", StatusCode: http.StatusInternalServerError, Message: "backend error"}

	_, err := NewPusher(discardLogger(), s).Create(ctx, p, model.TaskPatch{Title: model.Set("Will vanish")}, api)
	require.Error(t, err)

	local, err := s.GetTasksByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, local, "a task that was never mirrored must not exist locally")
}

func TestPushCreateWithoutBinding(t *testing.T) {
	s, _ := newStore(t)
	p := newProject(t, s, "")

	task, err := NewPusher(discardLogger(), s).Create(context.Background(), p, model.TaskPatch{
		Title:    model.Set("Local"),
		External: model.Set(model.Linkage{TaskID: "forged"}),
	}, nil)
	require.NoError(t, err)
	assert.False(t, task.Linked())

	_, err = NewPusher(discardLogger(), s).Create(context.Background(), p, model.TaskPatch{Title: model.Set("  ")}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestPushUpdateFailureIsNotRolledBack(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	p := newProject(t, s, "L1")
	api := newFakeAPI()
	pusher := NewPusher(discardLogger(), s)

	task, err := pusher.Create(ctx, p, model.TaskPatch{Title: model.Set("Before")}, api)
	require.NoError(t, err)

	api.updateErr = errors.New("connection reset")
	updated, err := pusher.Update(ctx, p, task.ID, model.TaskPatch{Title: model.Set("After"), DueAt: model.Null[time.Time]()}, api)
	require.NoError(t, err)
	assert.Equal(t, "After", updated.Title)

	require.Len(t, api.updates, 1)
	assert.Equal(t, "After", api.updates[0].Title)
	assert.Contains(t, api.updates[0].NullFields, "Due")

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", got.Title)
}

func TestPushUpdateSkipsLocalOnlyFields(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	p := newProject(t, s, "L1")
	api := newFakeAPI()
	pusher := NewPusher(discardLogger(), s)

	task, err := pusher.Create(ctx, p, model.TaskPatch{Title: model.Set("Task")}, api)
	require.NoError(t, err)

	_, err = pusher.Update(ctx, p, task.ID, model.TaskPatch{Priority: model.Set(model.PriorityHigh)}, api)
	require.NoError(t, err)
	assert.Empty(t, api.updates)

	_, err = pusher.Update(ctx, p, task.ID, model.TaskPatch{Title: model.Null[string]()}, api)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestPushDeleteRemovesExternalFirst(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	p := newProject(t, s, "L1")
	api := newFakeAPI()
	pusher := NewPusher(discardLogger(), s)

	task, err := pusher.Create(ctx, p, model.TaskPatch{Title: model.Set("Keep me")}, api)
	require.NoError(t, err)

	api.deleteErr = &google.APIError{Op: "delete task", StatusCode: http.StatusServiceUnavailable, Message: "try later"}
	err = pusher.Delete(ctx, p, task.ID, api)
	require.Error(t, err)
	_, err = s.GetTask(ctx, task.ID)
	require.NoError(t, err, "local task must survive a failed external delete")

	api.deleteErr = &google.APIError{Op: "delete task", StatusCode: http.StatusNotFound, Message: "gone"}
	require.NoError(t, pusher.Delete(ctx, p, task.ID, api))
	_, err = s.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPushDeleteChecksProject(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	p := newProject(t, s, "")
	other := newProject(t, s, "")
	pusher := NewPusher(discardLogger(), s)

	task, err := pusher.Create(ctx, p, model.TaskPatch{Title: model.Set("Mine")}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, pusher.Delete(ctx, other, task.ID, nil), model.ErrNotFound)
	require.NoError(t, pusher.Delete(ctx, p, task.ID, nil))
}

func TestPushQueuesMembershipForOutsideAssignee(t *testing.T) {
	s, c := newStore(t)
	ctx := context.Background()
	p := newProject(t, s, "")
	pusher := NewPusher(discardLogger(), s)

	_, err := pusher.Create(ctx, p, model.TaskPatch{Title: model.Set("Mine"), AssigneeID: model.Set("member")}, nil)
	require.NoError(t, err)
	jobs, err := s.DueMemberJobs(ctx, c.now(), 10)
	require.NoError(t, err)
	assert.Empty(t, jobs, "members need no job")

	task, err := pusher.Create(ctx, p, model.TaskPatch{Title: model.Set("Theirs")}, nil)
	require.NoError(t, err)
	_, err = pusher.Update(ctx, p, task.ID, model.TaskPatch{AssigneeID: model.Set("outsider")}, nil)
	require.NoError(t, err)

	jobs, err = s.DueMemberJobs(ctx, c.now(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "outsider", jobs[0].UserID)
	assert.Equal(t, p.ID, jobs[0].ProjectID)
}
