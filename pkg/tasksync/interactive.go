package tasksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/tasklink/pkg/auth"
	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/store"
)

const DefaultInteractiveTimeout = 60 * time.Second

// InteractiveCredentials turns a caller-supplied access token into a credential.
type InteractiveCredentials interface {
	ResolveInteractive(accessToken string) (auth.Credential, error)
}

// Service is the interactive entry point. Every method authorizes callerID
// against the project before touching either side.
type Service struct {
	log     *slog.Logger
	store   Store
	orch    *Orchestrator
	pusher  *Pusher
	creds   InteractiveCredentials
	dialer  Dialer
	timeout time.Duration
}

func NewService(log *slog.Logger, st Store, orch *Orchestrator, pusher *Pusher, creds InteractiveCredentials, dialer Dialer, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultInteractiveTimeout
	}
	return &Service{
		log:     log,
		store:   st,
		orch:    orch,
		pusher:  pusher,
		creds:   creds,
		dialer:  dialer,
		timeout: timeout,
	}
}

// Sync runs one pull of projectID under the interactive deadline. An expired
// deadline is reported like any other failure and leaves the project in error.
func (s *Service) Sync(ctx context.Context, callerID, projectID, accessToken string) (model.SyncResult, error) {
	project, err := s.authorize(ctx, callerID, projectID)
	if err != nil {
		return model.SyncResult{}, err
	}
	if !project.Bound() {
		return model.SyncResult{}, fmt.Errorf("project %s: %w", project.ID, model.ErrNotLinked)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	api, err := s.dial(ctx, accessToken)
	if err != nil {
		return model.SyncResult{}, err
	}

	s.log.Info("interactive sync", "project_id", project.ID, "user_id", callerID)
	return s.orch.Pull(ctx, project.ID, api)
}

// ListTaskLists returns the caller's external task lists.
func (s *Service) ListTaskLists(ctx context.Context, callerID, accessToken string) ([]*tasks.TaskList, error) {
	if callerID == "" {
		return nil, fmt.Errorf("%w: caller is not signed in", model.ErrUnauthenticated)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	api, err := s.dial(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return api.ListTaskLists(ctx)
}

// LinkProject binds the project to listID, or to a new list named after the
// project when listID is empty, and enables periodic sync. Only the owner
// may change the binding.
func (s *Service) LinkProject(ctx context.Context, callerID, projectID, accessToken, listID string) (model.Project, error) {
	project, err := s.authorizeOwner(ctx, callerID, projectID)
	if err != nil {
		return model.Project{}, err
	}
	if project.Bound() {
		return model.Project{}, fmt.Errorf("%w: project %s is already linked to %s", model.ErrInvalidArgument, project.ID, project.ExternalListID)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	api, err := s.dial(ctx, accessToken)
	if err != nil {
		return model.Project{}, err
	}

	if listID == "" {
		list, err := api.CreateTaskList(ctx, project.Name)
		if err != nil {
			return model.Project{}, fmt.Errorf("create task list: %w", err)
		}
		listID = list.Id
	}

	if err := s.store.BindProjectList(ctx, project.ID, listID, true); err != nil {
		return model.Project{}, err
	}
	s.log.Info("project linked", "project_id", project.ID, "list_id", listID)
	return s.store.GetProject(ctx, project.ID)
}

// UnlinkProject clears the binding, disables sync and drops every task
// linkage. With deleteList the external list is removed first; the project
// stays linked if that fails.
func (s *Service) UnlinkProject(ctx context.Context, callerID, projectID, accessToken string, deleteList bool) error {
	project, err := s.authorizeOwner(ctx, callerID, projectID)
	if err != nil {
		return err
	}
	if !project.Bound() {
		return fmt.Errorf("project %s: %w", project.ID, model.ErrNotLinked)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if deleteList {
		api, err := s.dial(ctx, accessToken)
		if err != nil {
			return err
		}
		if err := api.DeleteTaskList(ctx, project.ExternalListID); err != nil && !externalGone(err) {
			return fmt.Errorf("delete task list: %w", err)
		}
	}

	local, err := s.store.GetTasksByProject(ctx, project.ID)
	if err != nil {
		return err
	}
	var ops []store.Op
	for _, t := range local {
		if t.External != nil {
			ops = append(ops, store.UpdateOp(t.ID, model.TaskPatch{External: model.Null[model.Linkage]()}))
		}
	}
	if err := s.store.AtomicBatch(ctx, ops); err != nil {
		return fmt.Errorf("clear task linkage: %w", err)
	}

	if err := s.store.BindProjectList(ctx, project.ID, "", false); err != nil {
		return err
	}
	s.log.Info("project unlinked", "project_id", project.ID, "deleted_list", deleteList)
	return nil
}

// CreateTask creates a task in the project and mirrors it when the project is
// linked.
func (s *Service) CreateTask(ctx context.Context, callerID, projectID, accessToken string, patch model.TaskPatch) (model.Task, error) {
	project, err := s.authorize(ctx, callerID, projectID)
	if err != nil {
		return model.Task{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	api, err := s.dialFor(ctx, project, accessToken)
	if err != nil {
		return model.Task{}, err
	}
	return s.pusher.Create(ctx, project, patch, api)
}

func (s *Service) UpdateTask(ctx context.Context, callerID, taskID, accessToken string, patch model.TaskPatch) (model.Task, error) {
	project, err := s.authorizeTask(ctx, callerID, taskID)
	if err != nil {
		return model.Task{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	api, err := s.dialFor(ctx, project, accessToken)
	if err != nil {
		return model.Task{}, err
	}
	return s.pusher.Update(ctx, project, taskID, patch, api)
}

func (s *Service) DeleteTask(ctx context.Context, callerID, taskID, accessToken string) error {
	project, err := s.authorizeTask(ctx, callerID, taskID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	api, err := s.dialFor(ctx, project, accessToken)
	if err != nil {
		return err
	}
	return s.pusher.Delete(ctx, project, taskID, api)
}

func (s *Service) authorize(ctx context.Context, callerID, projectID string) (model.Project, error) {
	if callerID == "" {
		return model.Project{}, fmt.Errorf("%w: caller is not signed in", model.ErrUnauthenticated)
	}
	if projectID == "" {
		return model.Project{}, fmt.Errorf("%w: project id is required", model.ErrInvalidArgument)
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return model.Project{}, err
	}
	if !project.CanAccess(callerID) {
		return model.Project{}, fmt.Errorf("%w: %s is not a member of project %s", model.ErrPermissionDenied, callerID, projectID)
	}
	return project, nil
}

func (s *Service) authorizeOwner(ctx context.Context, callerID, projectID string) (model.Project, error) {
	project, err := s.authorize(ctx, callerID, projectID)
	if err != nil {
		return model.Project{}, err
	}
	if project.OwnerID != callerID {
		return model.Project{}, fmt.Errorf("%w: only the owner can change the link of project %s", model.ErrPermissionDenied, projectID)
	}
	return project, nil
}

func (s *Service) authorizeTask(ctx context.Context, callerID, taskID string) (model.Project, error) {
	if callerID == "" {
		return model.Project{}, fmt.Errorf("%w: caller is not signed in", model.ErrUnauthenticated)
	}
	if taskID == "" {
		return model.Project{}, fmt.Errorf("%w: task id is required", model.ErrInvalidArgument)
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return model.Project{}, err
	}
	project, err := s.authorize(ctx, callerID, task.ProjectID)
	if errors.Is(err, model.ErrPermissionDenied) {
		// Do not reveal tasks of foreign projects.
		return model.Project{}, fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}
	return project, err
}

func (s *Service) dial(ctx context.Context, accessToken string) (TaskAPI, error) {
	cred, err := s.creds.ResolveInteractive(accessToken)
	if err != nil {
		return nil, err
	}
	return s.dialer.Dial(ctx, cred)
}

// dialFor returns nil for projects without a binding, which need no client.
func (s *Service) dialFor(ctx context.Context, project model.Project, accessToken string) (TaskAPI, error) {
	if !project.Bound() {
		return nil, nil
	}
	return s.dial(ctx, accessToken)
}
