package store

import (
	"context"
	"fmt"
	"time"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

// AcquireSyncLease claims the project's sync lease for owner until now+ttl.
// It reports false while a different owner holds an unexpired lease. The
// lease lives in the database so separate processes sharing it exclude each
// other.
func (s *Store) AcquireSyncLease(ctx context.Context, projectID, owner string, ttl time.Duration) (bool, error) {
	now := s.now().UTC()
	q := s.db.Rebind(`UPDATE projects SET sync_lease_owner = ?, sync_lease_until = ?
		WHERE id = ? AND (sync_lease_until IS NULL OR sync_lease_until < ?)`)
	res, err := s.db.ExecContext(ctx, q, owner, now.Add(ttl), projectID, now)
	if err != nil {
		return false, fmt.Errorf("acquire sync lease of project %s: %w", projectID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire sync lease of project %s: %w", projectID, err)
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	if err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT COUNT(*) FROM projects WHERE id = ?`), projectID); err != nil {
		return false, fmt.Errorf("check project %s: %w", projectID, err)
	}
	if exists == 0 {
		return false, fmt.Errorf("project %s: %w", projectID, model.ErrNotFound)
	}
	return false, nil
}

// ReleaseSyncLease drops the lease if owner still holds it.
func (s *Store) ReleaseSyncLease(ctx context.Context, projectID, owner string) error {
	q := s.db.Rebind(`UPDATE projects SET sync_lease_owner = '', sync_lease_until = NULL
		WHERE id = ? AND sync_lease_owner = ?`)
	if _, err := s.db.ExecContext(ctx, q, projectID, owner); err != nil {
		return fmt.Errorf("release sync lease of project %s: %w", projectID, err)
	}
	return nil
}
