package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

const taskColumns = `id, project_id, title, description, status, priority, sort_order,
	due_at, completed_at, assignee_id, assignee_name, tags,
	external_task_id, external_list_id, external_origin, created_at, updated_at`

type taskRow struct {
	ID             string         `db:"id"`
	ProjectID      string         `db:"project_id"`
	Title          string         `db:"title"`
	Description    string         `db:"description"`
	Status         string         `db:"status"`
	Priority       string         `db:"priority"`
	SortOrder      int            `db:"sort_order"`
	DueAt          sql.NullTime   `db:"due_at"`
	CompletedAt    sql.NullTime   `db:"completed_at"`
	AssigneeID     string         `db:"assignee_id"`
	AssigneeName   string         `db:"assignee_name"`
	Tags           string         `db:"tags"`
	ExternalTaskID sql.NullString `db:"external_task_id"`
	ExternalListID sql.NullString `db:"external_list_id"`
	ExternalOrigin bool           `db:"external_origin"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r taskRow) task() (model.Task, error) {
	t := model.Task{
		ID:           r.ID,
		ProjectID:    r.ProjectID,
		Title:        r.Title,
		Description:  r.Description,
		Status:       model.Status(r.Status),
		Priority:     model.Priority(r.Priority),
		Order:        r.SortOrder,
		AssigneeID:   r.AssigneeID,
		AssigneeName: r.AssigneeName,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.DueAt.Valid {
		d := r.DueAt.Time.UTC()
		t.DueAt = &d
	}
	if r.CompletedAt.Valid {
		c := r.CompletedAt.Time.UTC()
		t.CompletedAt = &c
	}
	if r.ExternalTaskID.Valid && r.ExternalTaskID.String != "" {
		t.External = &model.Linkage{
			TaskID:         r.ExternalTaskID.String,
			ListID:         r.ExternalListID.String,
			ExternalOrigin: r.ExternalOrigin,
		}
	}
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &t.Tags); err != nil {
			return model.Task{}, fmt.Errorf("decode tags of task %s: %w", r.ID, err)
		}
	}
	return t, nil
}

func rowFromTask(t model.Task) (taskRow, error) {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return taskRow{}, fmt.Errorf("encode tags: %w", err)
	}

	r := taskRow{
		ID:           t.ID,
		ProjectID:    t.ProjectID,
		Title:        t.Title,
		Description:  t.Description,
		Status:       string(t.Status),
		Priority:     string(t.Priority),
		SortOrder:    t.Order,
		AssigneeID:   t.AssigneeID,
		AssigneeName: t.AssigneeName,
		Tags:         string(b),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	if t.DueAt != nil {
		r.DueAt = sql.NullTime{Time: t.DueAt.UTC(), Valid: true}
	}
	if t.CompletedAt != nil {
		r.CompletedAt = sql.NullTime{Time: t.CompletedAt.UTC(), Valid: true}
	}
	if t.Linked() {
		r.ExternalTaskID = sql.NullString{String: t.External.TaskID, Valid: true}
		r.ExternalListID = sql.NullString{String: t.External.ListID, Valid: true}
		r.ExternalOrigin = t.External.ExternalOrigin
	}
	return r, nil
}

// GetTasksByProject returns every task of a project ordered by display order.
func (s *Store) GetTasksByProject(ctx context.Context, projectID string) ([]model.Task, error) {
	q := s.db.Rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE project_id = ? ORDER BY sort_order, created_at`)

	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, q, projectID); err != nil {
		return nil, fmt.Errorf("list tasks of project %s: %w", projectID, err)
	}

	out := make([]model.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.task()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// GetTask returns model.ErrNotFound when id does not exist.
func (s *Store) GetTask(ctx context.Context, id string) (model.Task, error) {
	return getTask(ctx, s.db, id)
}

func getTask(ctx context.Context, q queryer, id string) (model.Task, error) {
	var r taskRow
	query := q.Rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`)
	if err := sqlx.GetContext(ctx, q, &r, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
		}
		return model.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	return r.task()
}

// CreateTask stores t, assigning an id when empty and stamping creation and
// modification times.
func (s *Store) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	var created model.Task
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		created, err = s.createTask(ctx, tx, t)
		return err
	})
	if err != nil {
		return model.Task{}, err
	}
	s.notify(ctx, []TaskChange{{TaskID: created.ID, After: ptr(created)}})
	return created, nil
}

// UpdateTask applies patch to task id and refreshes its modification time.
func (s *Store) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) error {
	var change TaskChange
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		change, err = s.updateTask(ctx, tx, id, patch)
		return err
	})
	if err != nil {
		return err
	}
	s.notify(ctx, []TaskChange{change})
	return nil
}

// DeleteTask removes task id. Deleting a missing task reports model.ErrNotFound.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	var change TaskChange
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		change, err = s.deleteTask(ctx, tx, id)
		return err
	})
	if err != nil {
		return err
	}
	s.notify(ctx, []TaskChange{change})
	return nil
}

func (s *Store) createTask(ctx context.Context, tx *sqlx.Tx, t model.Task) (model.Task, error) {
	t = t.Clone()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now

	r, err := rowFromTask(t)
	if err != nil {
		return model.Task{}, err
	}

	const q = `INSERT INTO tasks (` + taskColumns + `) VALUES (
		:id, :project_id, :title, :description, :status, :priority, :sort_order,
		:due_at, :completed_at, :assignee_id, :assignee_name, :tags,
		:external_task_id, :external_list_id, :external_origin, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, q, r); err != nil {
		return model.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

func (s *Store) updateTask(ctx context.Context, tx *sqlx.Tx, id string, patch model.TaskPatch) (TaskChange, error) {
	before, err := getTask(ctx, tx, id)
	if err != nil {
		return TaskChange{}, err
	}

	after := before.Clone()
	patch.Apply(&after)
	after.ID = before.ID
	after.ProjectID = before.ProjectID
	after.CreatedAt = before.CreatedAt
	after.UpdatedAt = s.now()

	r, err := rowFromTask(after)
	if err != nil {
		return TaskChange{}, err
	}

	const q = `UPDATE tasks SET
		title = :title, description = :description, status = :status, priority = :priority,
		sort_order = :sort_order, due_at = :due_at, completed_at = :completed_at,
		assignee_id = :assignee_id, assignee_name = :assignee_name, tags = :tags,
		external_task_id = :external_task_id, external_list_id = :external_list_id,
		external_origin = :external_origin, updated_at = :updated_at
		WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, q, r); err != nil {
		return TaskChange{}, fmt.Errorf("update task %s: %w", id, err)
	}
	return TaskChange{TaskID: id, Before: ptr(before), After: ptr(after)}, nil
}

func (s *Store) deleteTask(ctx context.Context, tx *sqlx.Tx, id string) (TaskChange, error) {
	before, err := getTask(ctx, tx, id)
	if err != nil {
		return TaskChange{}, err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM tasks WHERE id = ?`), id); err != nil {
		return TaskChange{}, fmt.Errorf("delete task %s: %w", id, err)
	}
	return TaskChange{TaskID: id, Before: ptr(before)}, nil
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func ptr[T any](v T) *T {
	return &v
}
