package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"planner/internal/task"
)

// Postgres is the production backend, one row per task scoped to its
// owning user.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool to databaseURL and runs the migration.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	r := &Postgres{pool: pool}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the pool.
func (r *Postgres) Close() {
	r.pool.Close()
}

func (r *Postgres) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS "user" (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		complete BOOLEAN NOT NULL DEFAULT FALSE,
		sort_order INTEGER NOT NULL DEFAULT 0,
		period TEXT NOT NULL,
		date TEXT NOT NULL,
		updated BIGINT NOT NULL,
		user_id TEXT NOT NULL REFERENCES "user"(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_user ON task(user_id);
	CREATE INDEX IF NOT EXISTS idx_task_user_updated ON task(user_id, updated);
	`
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (r *Postgres) ListUpdatedAfter(ctx context.Context, userID string, after int64) ([]task.Task, error) {
	query := `SELECT id, name, complete, sort_order, period, date, updated
		FROM task WHERE user_id = $1`
	args := []any{userID}
	if after > 0 {
		query += " AND updated > $2"
		args = append(args, after)
	}
	query += " ORDER BY updated ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		var (
			t      task.Task
			period string
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Complete, &t.SortOrder, &period, &t.Date, &t.Updated); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Period = task.Period(period)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *Postgres) Exists(ctx context.Context, userID, id string) (bool, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM task WHERE id = $1 AND user_id = $2`, id, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check task %s: %w", id, err)
	}
	return n > 0, nil
}

func (r *Postgres) Insert(ctx context.Context, userID string, t task.Task) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO task (id, name, complete, sort_order, period, date, updated, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Name, t.Complete, t.SortOrder, string(t.Period), t.Date, t.Updated, userID)
	if err != nil {
		return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
	}
	return nil
}

func (r *Postgres) Update(ctx context.Context, userID, id string, f task.Fields) error {
	sets, args := updateClauses(f, func(pos int) string { return "$" + strconv.Itoa(pos) })
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id, userID)
	query := fmt.Sprintf("UPDATE task SET %s WHERE id = $%d AND user_id = $%d",
		strings.Join(sets, ", "), len(args)-1, len(args))

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	return nil
}

func (r *Postgres) Delete(ctx context.Context, userID, id string) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM task WHERE id = $1 AND user_id = $2`, id, userID); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

func (r *Postgres) CreateUser(ctx context.Context, u User) error {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM "user" WHERE email = $1`, u.Email).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if n > 0 {
		return ErrEmailTaken
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO "user" (id, email, password_hash) VALUES ($1, $2, $3)`,
		u.ID, u.Email, u.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *Postgres) UserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash FROM "user" WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to read user: %w", err)
	}
	return u, nil
}
