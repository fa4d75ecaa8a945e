// Package repo defines the remote endpoint's storage interfaces and their
// Postgres and SQLite implementations. The remote store is multi-tenant:
// every row is scoped to its owning user.
package repo

import (
	"context"
	"errors"

	"planner/internal/task"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken is returned by CreateUser on a duplicate email.
	ErrEmailTaken = errors.New("email already registered")
)

// User is a remote account row.
type User struct {
	ID           string
	Email        string
	PasswordHash string
}

// TaskRepo stores the authoritative per-user task rows.
type TaskRepo interface {
	// ListUpdatedAfter returns the user's tasks with updated strictly
	// greater than after; after = 0 returns everything.
	ListUpdatedAfter(ctx context.Context, userID string, after int64) ([]task.Task, error)

	// Exists reports whether the user owns a task with this id.
	Exists(ctx context.Context, userID, id string) (bool, error)

	// Insert adds a task row for the user.
	Insert(ctx context.Context, userID string, t task.Task) error

	// Update applies a partial field set to the user's task.
	Update(ctx context.Context, userID, id string, f task.Fields) error

	// Delete removes the user's task if present; no-op otherwise.
	Delete(ctx context.Context, userID, id string) error
}

// UserRepo stores accounts.
type UserRepo interface {
	CreateUser(ctx context.Context, u User) error
	UserByEmail(ctx context.Context, email string) (User, error)
}

// Repo combines both stores; each backend implements it over one
// connection.
type Repo interface {
	TaskRepo
	UserRepo
}
