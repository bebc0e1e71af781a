package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

const projectColumns = `id, name, owner_id, external_list_id, sync_enabled, sync_status,
	last_sync_at, last_sync_error, created_at`

type projectRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	OwnerID        string         `db:"owner_id"`
	ExternalListID sql.NullString `db:"external_list_id"`
	SyncEnabled    bool           `db:"sync_enabled"`
	SyncStatus     string         `db:"sync_status"`
	LastSyncAt     sql.NullTime   `db:"last_sync_at"`
	LastSyncError  string         `db:"last_sync_error"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r projectRow) project() model.Project {
	p := model.Project{
		ID:             r.ID,
		Name:           r.Name,
		OwnerID:        r.OwnerID,
		ExternalListID: r.ExternalListID.String,
		SyncEnabled:    r.SyncEnabled,
		SyncStatus:     model.SyncStatus(r.SyncStatus),
		LastSyncError:  r.LastSyncError,
		CreatedAt:      r.CreatedAt.UTC(),
	}
	if r.LastSyncAt.Valid {
		t := r.LastSyncAt.Time.UTC()
		p.LastSyncAt = &t
	}
	return p
}

// CreateProject stores p together with its member set.
func (s *Store) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if p.Name == "" || p.OwnerID == "" {
		return model.Project{}, fmt.Errorf("%w: project needs a name and an owner", model.ErrInvalidArgument)
	}
	if p.SyncEnabled && p.ExternalListID == "" {
		return model.Project{}, fmt.Errorf("%w: sync requires an external list binding", model.ErrInvalidArgument)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = s.now()

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`INSERT INTO projects (id, name, owner_id, external_list_id, sync_enabled, sync_status, last_sync_error, created_at)
			VALUES (?, ?, ?, ?, ?, ?, '', ?)`)
		if _, err := tx.ExecContext(ctx, q, p.ID, p.Name, p.OwnerID, nullString(p.ExternalListID), p.SyncEnabled, string(p.SyncStatus), p.CreatedAt); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		for _, m := range p.Members {
			if err := addMember(ctx, tx, p.ID, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Project{}, err
	}
	return p, nil
}

// GetProject returns the project with its members, or model.ErrNotFound.
func (s *Store) GetProject(ctx context.Context, id string) (model.Project, error) {
	var r projectRow
	q := s.db.Rebind(`SELECT ` + projectColumns + ` FROM projects WHERE id = ?`)
	if err := s.db.GetContext(ctx, &r, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Project{}, fmt.Errorf("project %s: %w", id, model.ErrNotFound)
		}
		return model.Project{}, fmt.Errorf("get project %s: %w", id, err)
	}

	p := r.project()
	members, err := s.projectMembers(ctx, id)
	if err != nil {
		return model.Project{}, err
	}
	p.Members = members
	return p, nil
}

// ListSyncEnabledProjects returns every project flagged for periodic sync.
// Members are not loaded.
func (s *Store) ListSyncEnabledProjects(ctx context.Context) ([]model.Project, error) {
	q := s.db.Rebind(`SELECT ` + projectColumns + ` FROM projects WHERE sync_enabled = ? ORDER BY created_at`)

	var rows []projectRow
	if err := s.db.SelectContext(ctx, &rows, q, true); err != nil {
		return nil, fmt.Errorf("list sync enabled projects: %w", err)
	}

	out := make([]model.Project, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.project())
	}
	return out, nil
}

// UpdateProjectSyncStatus records the outcome of a pull. lastSyncAt may be nil
// to leave the previous timestamp in place.
func (s *Store) UpdateProjectSyncStatus(ctx context.Context, projectID string, status model.SyncStatus, lastSyncAt *time.Time, syncErr string) error {
	var (
		q    string
		args []any
	)
	if lastSyncAt != nil {
		q = `UPDATE projects SET sync_status = ?, last_sync_at = ?, last_sync_error = ? WHERE id = ?`
		args = []any{string(status), lastSyncAt.UTC(), syncErr, projectID}
	} else {
		q = `UPDATE projects SET sync_status = ?, last_sync_error = ? WHERE id = ?`
		args = []any{string(status), syncErr, projectID}
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return fmt.Errorf("update sync status of project %s: %w", projectID, err)
	}
	return expectAffected(res, "project", projectID)
}

// BindProjectList sets the external list binding. An empty listID unbinds the
// project and always disables sync.
func (s *Store) BindProjectList(ctx context.Context, projectID, listID string, syncEnabled bool) error {
	if listID == "" {
		syncEnabled = false
	}
	q := s.db.Rebind(`UPDATE projects SET external_list_id = ?, sync_enabled = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, nullString(listID), syncEnabled, projectID)
	if err != nil {
		return fmt.Errorf("bind project %s: %w", projectID, err)
	}
	return expectAffected(res, "project", projectID)
}

// AddProjectMember is idempotent.
func (s *Store) AddProjectMember(ctx context.Context, projectID, userID string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		q := tx.Rebind(`SELECT COUNT(*) FROM projects WHERE id = ?`)
		if err := tx.GetContext(ctx, &exists, q, projectID); err != nil {
			return fmt.Errorf("check project %s: %w", projectID, err)
		}
		if exists == 0 {
			return fmt.Errorf("project %s: %w", projectID, model.ErrNotFound)
		}
		return addMember(ctx, tx, projectID, userID)
	})
}

// IsProjectMember reports whether userID owns or belongs to the project.
func (s *Store) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	var n int
	q := s.db.Rebind(`SELECT
		(SELECT COUNT(*) FROM projects WHERE id = ? AND owner_id = ?) +
		(SELECT COUNT(*) FROM project_members WHERE project_id = ? AND user_id = ?)`)
	if err := s.db.GetContext(ctx, &n, q, projectID, userID, projectID, userID); err != nil {
		return false, fmt.Errorf("check membership of %s in project %s: %w", userID, projectID, err)
	}
	return n > 0, nil
}

func addMember(ctx context.Context, tx *sqlx.Tx, projectID, userID string) error {
	var n int
	q := tx.Rebind(`SELECT COUNT(*) FROM project_members WHERE project_id = ? AND user_id = ?`)
	if err := tx.GetContext(ctx, &n, q, projectID, userID); err != nil {
		return fmt.Errorf("check member: %w", err)
	}
	if n > 0 {
		return nil
	}
	q = tx.Rebind(`INSERT INTO project_members (project_id, user_id) VALUES (?, ?)`)
	if _, err := tx.ExecContext(ctx, q, projectID, userID); err != nil {
		return fmt.Errorf("add member %s to project %s: %w", userID, projectID, err)
	}
	return nil
}

func (s *Store) projectMembers(ctx context.Context, projectID string) ([]string, error) {
	var members []string
	q := s.db.Rebind(`SELECT user_id FROM project_members WHERE project_id = ? ORDER BY user_id`)
	if err := s.db.SelectContext(ctx, &members, q, projectID); err != nil {
		return nil, fmt.Errorf("list members of project %s: %w", projectID, err)
	}
	return members, nil
}

func expectAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s rows affected: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, model.ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
