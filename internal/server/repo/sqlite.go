package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"planner/internal/task"
)

// SQLite is a single-file backend, used for self-hosted deployments and
// handler tests. ":memory:" works for the latter.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (and migrates) a SQLite-backed repo at path.
func OpenSQLite(path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	r := &SQLite{conn: conn}
	if err := r.migrate(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying connection.
func (r *SQLite) Close() error {
	return r.conn.Close()
}

func (r *SQLite) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS user (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		complete INTEGER NOT NULL DEFAULT 0,
		sort_order INTEGER NOT NULL DEFAULT 0,
		period TEXT NOT NULL,
		date TEXT NOT NULL,
		updated INTEGER NOT NULL,
		user_id TEXT NOT NULL REFERENCES user(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_user ON task(user_id);
	CREATE INDEX IF NOT EXISTS idx_task_user_updated ON task(user_id, updated);
	`
	if _, err := r.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (r *SQLite) ListUpdatedAfter(ctx context.Context, userID string, after int64) ([]task.Task, error) {
	query := `SELECT id, name, complete, sort_order, period, date, updated
		FROM task WHERE user_id = ?`
	args := []any{userID}
	if after > 0 {
		query += " AND updated > ?"
		args = append(args, after)
	}
	query += " ORDER BY updated ASC"

	rows, err := r.conn.QueryContext(ctx, query, args...)
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

func (r *SQLite) Exists(ctx context.Context, userID, id string) (bool, error) {
	var n int
	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task WHERE id = ? AND user_id = ?`, id, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check task %s: %w", id, err)
	}
	return n > 0, nil
}

func (r *SQLite) Insert(ctx context.Context, userID string, t task.Task) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO task (id, name, complete, sort_order, period, date, updated, user_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Complete, t.SortOrder, string(t.Period), t.Date, t.Updated, userID)
	if err != nil {
		return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
	}
	return nil
}

func (r *SQLite) Update(ctx context.Context, userID, id string, f task.Fields) error {
	sets, args := updateClauses(f, func(int) string { return "?" })
	if len(sets) == 0 {
		return nil
	}
	query := "UPDATE task SET " + strings.Join(sets, ", ") + " WHERE id = ? AND user_id = ?"
	args = append(args, id, userID)

	if _, err := r.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	return nil
}

func (r *SQLite) Delete(ctx context.Context, userID, id string) error {
	if _, err := r.conn.ExecContext(ctx,
		`DELETE FROM task WHERE id = ? AND user_id = ?`, id, userID); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

func (r *SQLite) CreateUser(ctx context.Context, u User) error {
	var n int
	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user WHERE email = ?`, u.Email).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if n > 0 {
		return ErrEmailTaken
	}

	_, err = r.conn.ExecContext(ctx,
		`INSERT INTO user (id, email, password_hash) VALUES (?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *SQLite) UserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash FROM user WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to read user: %w", err)
	}
	return u, nil
}

// updateClauses builds SET clauses for a partial field set. The
// placeholder func maps the 1-based argument position to backend syntax
// ("?" for sqlite, "$n" for postgres).
func updateClauses(f task.Fields, placeholder func(pos int) string) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = "+placeholder(len(args)))
	}
	if f.Name != nil {
		add("name", *f.Name)
	}
	if f.Complete != nil {
		add("complete", *f.Complete)
	}
	if f.SortOrder != nil {
		add("sort_order", *f.SortOrder)
	}
	if f.Period != nil {
		add("period", string(*f.Period))
	}
	if f.Date != nil {
		add("date", *f.Date)
	}
	if f.Updated != 0 {
		add("updated", f.Updated)
	}
	return sets, args
}
