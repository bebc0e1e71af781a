package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(log, DriverSQLite, filepath.Join(t.TempDir(), "tasklink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))

	clock := &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	s.SetClock(clock.now)
	return s, clock
}

func mustProject(t *testing.T, s *Store, listID string) model.Project {
	t.Helper()

	p, err := s.CreateProject(context.Background(), model.Project{
		Name:           "Groceries",
		OwnerID:        "owner-1",
		Members:        []string{"member-1"},
		ExternalListID: listID,
		SyncEnabled:    listID != "",
	})
	require.NoError(t, err)
	return p
}

func TestTaskLifecycle(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	p := mustProject(t, s, "list-1")

	due := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	created, err := s.CreateTask(ctx, model.Task{
		ProjectID: p.ID,
		Title:     "Buy milk",
		Status:    model.StatusOpen,
		Priority:  model.PriorityHigh,
		DueAt:     &due,
		Tags:      []string{"food"},
		External:  &model.Linkage{TaskID: "ext-1", ListID: "list-1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.CreatedAt.Equal(clock.t))

	clock.advance(time.Minute)
	require.NoError(t, s.UpdateTask(ctx, created.ID, model.TaskPatch{
		Title: model.Set("Buy oat milk"),
		DueAt: model.Null[time.Time](),
	}))

	got, err := s.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Buy oat milk", got.Title)
	assert.Nil(t, got.DueAt)
	assert.Equal(t, model.PriorityHigh, got.Priority)
	assert.Equal(t, []string{"food"}, got.Tags)
	require.NotNil(t, got.External)
	assert.Equal(t, "ext-1", got.External.TaskID)
	assert.True(t, got.UpdatedAt.Equal(clock.t), "update must refresh the modification time")
	assert.True(t, got.CreatedAt.Before(got.UpdatedAt))

	tasks, err := s.GetTasksByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	require.NoError(t, s.DeleteTask(ctx, created.ID))
	_, err = s.GetTask(ctx, created.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestUpdateMissingTask(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.UpdateTask(context.Background(), "missing", model.TaskPatch{Title: model.Set("x")})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAtomicBatchIsAllOrNothing(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	p := mustProject(t, s, "list-1")

	err := s.AtomicBatch(ctx, []Op{
		CreateOp(model.Task{ProjectID: p.ID, Title: "first", Status: model.StatusOpen, Priority: model.PriorityMedium}),
		UpdateOp("missing", model.TaskPatch{Title: model.Set("nope")}),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)

	tasks, err := s.GetTasksByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks, "a failed batch must not leave its earlier ops applied")

	require.NoError(t, s.AtomicBatch(ctx, []Op{
		CreateOp(model.Task{ProjectID: p.ID, Title: "a", Status: model.StatusOpen, Priority: model.PriorityMedium}),
		CreateOp(model.Task{ProjectID: p.ID, Title: "b", Status: model.StatusOpen, Priority: model.PriorityMedium}),
	}))
	tasks, err = s.GetTasksByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestExternalLinkageIsUniquePerProject(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	p := mustProject(t, s, "list-1")

	link := &model.Linkage{TaskID: "ext-1", ListID: "list-1"}
	_, err := s.CreateTask(ctx, model.Task{ProjectID: p.ID, Title: "a", Status: model.StatusOpen, Priority: model.PriorityMedium, External: link})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, model.Task{ProjectID: p.ID, Title: "b", Status: model.StatusOpen, Priority: model.PriorityMedium, External: link})
	assert.Error(t, err)

	// Unlinked tasks do not collide with each other.
	for i := 0; i < 2; i++ {
		_, err = s.CreateTask(ctx, model.Task{ProjectID: p.ID, Title: "local", Status: model.StatusOpen, Priority: model.PriorityMedium})
		require.NoError(t, err)
	}
}

func TestWriteHooksSeeBeforeAndAfter(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	p := mustProject(t, s, "")

	var changes []TaskChange
	s.OnTaskWrite(func(_ context.Context, c TaskChange) { changes = append(changes, c) })
	s.OnTaskWrite(func(context.Context, TaskChange) { panic("boom") })

	created, err := s.CreateTask(ctx, model.Task{ProjectID: p.ID, Title: "t", Status: model.StatusOpen, Priority: model.PriorityMedium})
	require.NoError(t, err, "a panicking hook must not fail the write")
	require.NoError(t, s.UpdateTask(ctx, created.ID, model.TaskPatch{AssigneeID: model.Set("u-1")}))
	require.NoError(t, s.DeleteTask(ctx, created.ID))

	require.Len(t, changes, 3)
	assert.Nil(t, changes[0].Before)
	assert.NotNil(t, changes[0].After)
	assert.Equal(t, "", changes[1].Before.AssigneeID)
	assert.Equal(t, "u-1", changes[1].After.AssigneeID)
	assert.Nil(t, changes[2].After)
}

func TestProjectSyncStatusAndBinding(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	p := mustProject(t, s, "list-1")

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.CanAccess("owner-1"))
	assert.True(t, got.CanAccess("member-1"))
	assert.False(t, got.CanAccess("stranger"))

	for user, want := range map[string]bool{"owner-1": true, "member-1": true, "stranger": false} {
		ok, err := s.IsProjectMember(ctx, p.ID, user)
		require.NoError(t, err)
		assert.Equal(t, want, ok, user)
	}
	require.NoError(t, s.AddProjectMember(ctx, p.ID, "stranger"))
	ok, err := s.IsProjectMember(ctx, p.ID, "stranger")
	require.NoError(t, err)
	assert.True(t, ok)

	now := clock.t
	require.NoError(t, s.UpdateProjectSyncStatus(ctx, p.ID, model.SyncStatusSynced, &now, ""))
	got, err = s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusSynced, got.SyncStatus)
	require.NotNil(t, got.LastSyncAt)
	assert.True(t, got.LastSyncAt.Equal(now))

	enabled, err := s.ListSyncEnabledProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, enabled, 1)

	require.NoError(t, s.BindProjectList(ctx, p.ID, "", true))
	enabled, err = s.ListSyncEnabledProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled, "unbinding must disable sync")

	_, err = s.CreateProject(ctx, model.Project{Name: "x", OwnerID: "o", SyncEnabled: true})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestUsersAndRefreshTokens(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, model.User{Email: "Ada@Example.com", Name: "Ada"})
	require.NoError(t, err)

	byEmail, err := s.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	token, err := s.GetRefreshToken(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, s.SetRefreshToken(ctx, u.ID, "refresh-1"))
	token, err = s.GetRefreshToken(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", token)

	_, err = s.GetRefreshToken(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemberJobs(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	added, err := s.EnqueueMemberJob(ctx, "p-1", "u-1")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.EnqueueMemberJob(ctx, "p-1", "u-1")
	require.NoError(t, err)
	assert.False(t, added, "duplicate pending jobs are collapsed")

	due, err := s.DueMemberJobs(ctx, clock.t, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	next := clock.t.Add(time.Hour)
	require.NoError(t, s.RetryMemberJob(ctx, due[0].ID, &next, "boom"))
	due, err = s.DueMemberJobs(ctx, clock.t, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.DueMemberJobs(ctx, next, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)

	require.NoError(t, s.RetryMemberJob(ctx, due[0].ID, nil, "gave up"))
	failed, err := s.FailedMemberJobs(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "gave up", failed[0].LastError)
}

func TestNotificationAudit(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteNotificationAudit(ctx, AuditEntry{TaskID: "t-1", Recipient: "a@example.com", Success: false, Error: "smtp down"}))
	entries, err := s.ListNotificationAudit(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "smtp down", entries[0].Error)
}

func TestSyncLease(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	p := mustProject(t, s, "list-1")

	ok, err := s.AcquireSyncLease(ctx, p.ID, "serve", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireSyncLease(ctx, p.ID, "cron", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a held lease excludes other owners")

	require.NoError(t, s.ReleaseSyncLease(ctx, p.ID, "cron"), "releasing a lease you do not hold is a no-op")
	ok, err = s.AcquireSyncLease(ctx, p.ID, "cron", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseSyncLease(ctx, p.ID, "serve"))
	ok, err = s.AcquireSyncLease(ctx, p.ID, "cron", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.advance(2 * time.Minute)
	ok, err = s.AcquireSyncLease(ctx, p.ID, "serve", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "an expired lease can be taken over")

	_, err = s.AcquireSyncLease(ctx, "missing", "serve", time.Minute)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
