// Package google wraps the Google APIs this service talks to: Tasks for
// mirroring, Gmail for notifications and OAuth2 tokeninfo for callers.
package google

import (
	"context"

	"google.golang.org/api/tasks/v1"
)

const pageSize = 100

// TasksClient is a thin gateway over the Google Tasks API. Every method maps
// to one API operation and never retries.
type TasksClient struct {
	srv *tasks.Service
}

func NewTasksClient(srv *tasks.Service) *TasksClient {
	return &TasksClient{srv: srv}
}

// ListTasks returns every task of a list, including completed and hidden
// ones, which the API omits by default.
func (c *TasksClient) ListTasks(ctx context.Context, listID string) ([]*tasks.Task, error) {
	var out []*tasks.Task
	err := c.srv.Tasks.List(listID).
		ShowCompleted(true).
		ShowHidden(true).
		ShowDeleted(false).
		MaxResults(pageSize).
		Pages(ctx, func(page *tasks.Tasks) error {
			out = append(out, page.Items...)
			return nil
		})
	if err != nil {
		return nil, wrapError("list tasks", err)
	}
	return out, nil
}

// CreateTask inserts task into a list. The provider assigns the id.
func (c *TasksClient) CreateTask(ctx context.Context, listID string, task *tasks.Task) (*tasks.Task, error) {
	created, err := c.srv.Tasks.Insert(listID, task).Context(ctx).Do()
	if err != nil {
		return nil, wrapError("create task", err)
	}
	return created, nil
}

// UpdateTask applies a partial update. The provider requires the id in the
// body as well as the path.
func (c *TasksClient) UpdateTask(ctx context.Context, listID, taskID string, task *tasks.Task) (*tasks.Task, error) {
	task.Id = taskID
	updated, err := c.srv.Tasks.Patch(listID, taskID, task).Context(ctx).Do()
	if err != nil {
		return nil, wrapError("update task", err)
	}
	return updated, nil
}

func (c *TasksClient) DeleteTask(ctx context.Context, listID, taskID string) error {
	return wrapError("delete task", c.srv.Tasks.Delete(listID, taskID).Context(ctx).Do())
}

// ListTaskLists returns the task lists of the credential's owner.
func (c *TasksClient) ListTaskLists(ctx context.Context) ([]*tasks.TaskList, error) {
	var out []*tasks.TaskList
	err := c.srv.Tasklists.List().
		MaxResults(pageSize).
		Pages(ctx, func(page *tasks.TaskLists) error {
			out = append(out, page.Items...)
			return nil
		})
	if err != nil {
		return nil, wrapError("list task lists", err)
	}
	return out, nil
}

func (c *TasksClient) CreateTaskList(ctx context.Context, title string) (*tasks.TaskList, error) {
	created, err := c.srv.Tasklists.Insert(&tasks.TaskList{Title: title}).Context(ctx).Do()
	if err != nil {
		return nil, wrapError("create task list", err)
	}
	return created, nil
}

func (c *TasksClient) DeleteTaskList(ctx context.Context, listID string) error {
	return wrapError("delete task list", c.srv.Tasklists.Delete(listID).Context(ctx).Do())
}
