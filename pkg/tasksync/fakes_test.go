package tasksync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/tasklink/pkg/auth"
	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/store"
)

var storeEpoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newStore(t *testing.T) (*store.Store, *clock) {
	t.Helper()
	s, err := store.Open(discardLogger(), store.DriverSQLite, filepath.Join(t.TempDir(), "tasklink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	c := &clock{t: storeEpoch}
	s.SetClock(c.now)
	return s, c
}

func newProject(t *testing.T, s *store.Store, listID string) model.Project {
	t.Helper()
	p, err := s.CreateProject(context.Background(), model.Project{
		Name:           "Launch",
		OwnerID:        "owner",
		Members:        []string{"member"},
		ExternalListID: listID,
		SyncEnabled:    listID != "",
	})
	require.NoError(t, err)
	return p
}

// fakeAPI is an in-memory task provider.
type fakeAPI struct {
	mu     sync.Mutex
	lists  map[string][]*tasks.Task
	titles map[string]string
	nextID int

	listCalls int
	updates   []*tasks.Task

	listErr   error
	createErr error
	updateErr error
	deleteErr error

	// listHook runs inside ListTasks before the snapshot is returned.
	listHook func(ctx context.Context) error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{lists: map[string][]*tasks.Task{}, titles: map[string]string{}}
}

func (f *fakeAPI) put(listID string, ts ...*tasks.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[listID] = append(f.lists[listID], ts...)
}

func (f *fakeAPI) replace(listID string, t *tasks.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, cur := range f.lists[listID] {
		if cur.Id == t.Id {
			f.lists[listID][i] = t
			return
		}
	}
	f.lists[listID] = append(f.lists[listID], t)
}

func (f *fakeAPI) ListTasks(ctx context.Context, listID string) ([]*tasks.Task, error) {
	f.mu.Lock()
	f.listCalls++
	hook := f.listHook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*tasks.Task, 0, len(f.lists[listID]))
	for _, t := range f.lists[listID] {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeAPI) CreateTask(_ context.Context, listID string, task *tasks.Task) (*tasks.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	cp := *task
	cp.Id = fmt.Sprintf("ext-%d", f.nextID)
	f.lists[listID] = append(f.lists[listID], &cp)
	return &cp, nil
}

func (f *fakeAPI) UpdateTask(_ context.Context, listID, taskID string, task *tasks.Task) (*tasks.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, task)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return task, nil
}

func (f *fakeAPI) DeleteTask(_ context.Context, listID, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	kept := f.lists[listID][:0]
	for _, t := range f.lists[listID] {
		if t.Id != taskID {
			kept = append(kept, t)
		}
	}
	f.lists[listID] = kept
	return nil
}

func (f *fakeAPI) ListTaskLists(context.Context) ([]*tasks.TaskList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*tasks.TaskList
	for id, title := range f.titles {
		out = append(out, &tasks.TaskList{Id: id, Title: title})
	}
	return out, nil
}

func (f *fakeAPI) CreateTaskList(_ context.Context, title string) (*tasks.TaskList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("list-%d", f.nextID)
	f.titles[id] = title
	return &tasks.TaskList{Id: id, Title: title}, nil
}

func (f *fakeAPI) DeleteTaskList(_ context.Context, listID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.titles, listID)
	delete(f.lists, listID)
	return nil
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func staticDialer(api TaskAPI) Dialer {
	return DialFunc(func(context.Context, auth.Credential) (TaskAPI, error) {
		return api, nil
	})
}

func rfc3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
