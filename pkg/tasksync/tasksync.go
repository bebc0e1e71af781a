// Package tasksync reconciles local projects with their Google Tasks lists.
// Pull runs external to local with last-writer-wins; push mirrors local task
// mutations outwards as they happen.
package tasksync

import (
	"context"
	"time"

	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/tasklink/pkg/auth"
	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/store"
)

// TaskAPI is the external task provider, already bound to one credential.
type TaskAPI interface {
	ListTasks(ctx context.Context, listID string) ([]*tasks.Task, error)
	CreateTask(ctx context.Context, listID string, task *tasks.Task) (*tasks.Task, error)
	UpdateTask(ctx context.Context, listID, taskID string, task *tasks.Task) (*tasks.Task, error)
	DeleteTask(ctx context.Context, listID, taskID string) error
	ListTaskLists(ctx context.Context) ([]*tasks.TaskList, error)
	CreateTaskList(ctx context.Context, title string) (*tasks.TaskList, error)
	DeleteTaskList(ctx context.Context, listID string) error
}

// Dialer builds a TaskAPI for a resolved credential.
type Dialer interface {
	Dial(ctx context.Context, cred auth.Credential) (TaskAPI, error)
}

type DialFunc func(ctx context.Context, cred auth.Credential) (TaskAPI, error)

func (f DialFunc) Dial(ctx context.Context, cred auth.Credential) (TaskAPI, error) {
	return f(ctx, cred)
}

// Store is the subset of the local store used for syncing.
type Store interface {
	GetProject(ctx context.Context, id string) (model.Project, error)
	UpdateProjectSyncStatus(ctx context.Context, projectID string, status model.SyncStatus, lastSyncAt *time.Time, syncErr string) error
	BindProjectList(ctx context.Context, projectID, listID string, syncEnabled bool) error
	IsProjectMember(ctx context.Context, projectID, userID string) (bool, error)
	EnqueueMemberJob(ctx context.Context, projectID, userID string) (bool, error)
	AcquireSyncLease(ctx context.Context, projectID, owner string, ttl time.Duration) (bool, error)
	ReleaseSyncLease(ctx context.Context, projectID, owner string) error

	GetTasksByProject(ctx context.Context, projectID string) ([]model.Task, error)
	GetTask(ctx context.Context, id string) (model.Task, error)
	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) error
	DeleteTask(ctx context.Context, id string) error
	AtomicBatch(ctx context.Context, ops []store.Op) error
}

// bookkeepingTimeout bounds status writes that must happen even after the
// caller's context has expired.
const bookkeepingTimeout = 10 * time.Second

func bookkeepingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}
