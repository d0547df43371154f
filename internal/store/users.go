package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/devtrack/internal/model"
)

// ErrUserNotFound is returned by writes that target a missing or
// soft-deleted user.
var ErrUserNotFound = errors.New("user not found")

const userColumns = `id, username, password_hash, role, created_at, deleted_at`

// UserFilter narrows a user listing. Zero values are ignored.
type UserFilter struct {
	Role  string
	Query string // case-insensitive username substring
}

// CreateUser creates a new user.
func CreateUser(ctx context.Context, q Querier, username, passwordHash, role string) (*model.User, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role, created_at) VALUES (?, ?, ?, ?)`,
		username, passwordHash, role, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, q, id)
}

// GetUser returns a user by ID, or nil if it does not exist. Soft-deleted
// users are returned so callers can tell them apart.
func GetUser(ctx context.Context, q Querier, id int64) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the active user with the given username, or
// nil. Usernames are only unique among active users.
func GetUserByUsername(ctx context.Context, q Querier, username string) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`, username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns active users matching the filter, ordered by username.
func ListUsers(ctx context.Context, q Querier, f UserFilter) ([]model.User, error) {
	conditions := []string{"deleted_at IS NULL"}
	var args []any
	if f.Role != "" {
		conditions = append(conditions, "role = ?")
		args = append(args, f.Role)
	}
	if f.Query != "" {
		conditions = append(conditions, "username LIKE ?")
		args = append(args, "%"+f.Query+"%")
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+strings.Join(conditions, " AND ")+
			` ORDER BY username COLLATE NOCASE, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUser changes a user's role.
func UpdateUser(ctx context.Context, q Querier, id int64, role string) error {
	return execUser(ctx, q, "updating user",
		`UPDATE users SET role = ? WHERE id = ? AND deleted_at IS NULL`, role, id)
}

// UpdateUserPassword replaces a user's password hash.
func UpdateUserPassword(ctx context.Context, q Querier, id int64, passwordHash string) error {
	return execUser(ctx, q, "updating user password",
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`, passwordHash, id)
}

// DeleteUser soft-deletes a user. Their assignment history keeps pointing
// at the row.
func DeleteUser(ctx context.Context, q Querier, id int64) error {
	return execUser(ctx, q, "deleting user",
		`UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now().UTC(), id)
}

// CountHeldDevices returns how many devices the user currently has
// assigned.
func CountHeldDevices(ctx context.Context, q Querier, userID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments WHERE user_id = ? AND status = 'assigned'`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting held devices: %w", err)
	}
	return n, nil
}

func execUser(ctx context.Context, q Querier, op, query string, args ...any) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(s scanner) (*model.User, error) {
	u := &model.User{}
	var deletedAt sql.NullTime
	if err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		u.DeletedAt = &deletedAt.Time
	}
	return u, nil
}
