package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

type userRow struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

func (r userRow) user() model.User {
	return model.User{ID: r.ID, Email: r.Email, Name: r.Name, CreatedAt: r.CreatedAt.UTC()}
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = s.now()

	q := s.db.Rebind(`INSERT INTO users (id, email, name, refresh_token, created_at) VALUES (?, ?, ?, '', ?)`)
	if _, err := s.db.ExecContext(ctx, q, u.ID, u.Email, u.Name, u.CreatedAt); err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	var r userRow
	q := s.db.Rebind(`SELECT id, email, name, created_at FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &r, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, fmt.Errorf("user %s: %w", id, model.ErrNotFound)
		}
		return model.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return r.user(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var r userRow
	q := s.db.Rebind(`SELECT id, email, name, created_at FROM users WHERE email = ? ORDER BY created_at LIMIT 1`)
	if err := s.db.GetContext(ctx, &r, q, strings.ToLower(strings.TrimSpace(email))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, fmt.Errorf("user with email %s: %w", email, model.ErrNotFound)
		}
		return model.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return r.user(), nil
}

// GetRefreshToken returns the stored refresh credential of a user. A user
// without one yields an empty string and no error.
func (s *Store) GetRefreshToken(ctx context.Context, userID string) (string, error) {
	var token string
	q := s.db.Rebind(`SELECT refresh_token FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &token, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("user %s: %w", userID, model.ErrNotFound)
		}
		return "", fmt.Errorf("get refresh token of %s: %w", userID, err)
	}
	return token, nil
}

// SetRefreshToken stores or, with an empty token, revokes a refresh credential.
func (s *Store) SetRefreshToken(ctx context.Context, userID, token string) error {
	q := s.db.Rebind(`UPDATE users SET refresh_token = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, token, userID)
	if err != nil {
		return fmt.Errorf("set refresh token of %s: %w", userID, err)
	}
	return expectAffected(res, "user", userID)
}
