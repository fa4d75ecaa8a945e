// Package store implements the local replica: an embedded SQLite table of
// tasks keyed by id, with per-bucket ordering maintained on every mutating
// call and a full database snapshot written after each mutation.
//
// The store is the synchronous local truth. Every local create, update and
// delete also appends a record to the mutation queue; writes that originate
// from a remote pull merge go through the *FromRemote methods instead,
// which skip the queue so remote state is never echoed back to the remote.
//
// Multi-step operations (delete compaction, ClearPeriod, CopyIncompletes,
// UpdateOrder) hold the store mutex for their whole span, so concurrent
// callers never observe a partially compacted bucket. Each constituent
// step still persists independently: a crash mid-operation can leave the
// bucket sequence transiently inconsistent on disk.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"planner/internal/queue"
	"planner/internal/task"
)

var (
	// ErrNotFound is returned when an operation references an id absent
	// from the table.
	ErrNotFound = errors.New("task not found")

	// ErrOrderMembership is returned by UpdateOrder when an id is not a
	// member of the target bucket. No mutation is applied.
	ErrOrderMembership = errors.New("task is not a member of the target bucket")
)

const (
	dbFile       = "planner.db"
	snapshotFile = "planner.snapshot"
)

// Options configures a Store.
type Options struct {
	// Queue receives one record per local mutation. Nil disables queueing
	// (useful in tests that only exercise the table).
	Queue *queue.Queue

	// WeekStart is the weekday that begins a week bucket.
	// Defaults to Sunday.
	WeekStart time.Weekday
}

// Store is an embedded, exclusively owned task table. It is constructed
// explicitly and passed to whichever component needs it; its lifecycle is
// tied to the session, not to package load.
type Store struct {
	mu sync.Mutex

	conn     *sql.DB
	dbPath   string
	snapPath string

	q         *queue.Queue
	weekStart time.Weekday
	now       func() int64
}

// Open creates or reopens the store under dir. If the database file is
// missing but a snapshot exists, the snapshot is restored first.
//
// The caller must Close the store when the session ends.
func Open(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	snapPath := filepath.Join(dir, snapshotFile)

	if err := restoreSnapshot(dbPath, snapPath); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Single local writer; no need for a large pool.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	s := &Store{
		conn:      conn,
		dbPath:    dbPath,
		snapPath:  snapPath,
		q:         opts.Queue,
		weekStart: opts.WeekStart,
		now:       func() int64 { return time.Now().UnixMilli() },
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// restoreSnapshot copies the snapshot blob over a missing database file,
// recovering local state after the database file was lost.
func restoreSnapshot(dbPath, snapPath string) error {
	if _, err := os.Stat(dbPath); err == nil || !os.IsNotExist(err) {
		return err
	}
	data, err := os.ReadFile(snapPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if err := os.WriteFile(dbPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS task (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		complete INTEGER NOT NULL DEFAULT 0,
		sort_order INTEGER NOT NULL DEFAULT 0,
		period TEXT NOT NULL,
		date TEXT NOT NULL,
		updated INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_task_bucket ON task(date, period);
	CREATE INDEX IF NOT EXISTS idx_task_updated ON task(updated);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// snapshotLocked serializes the whole database into the snapshot blob.
// Called after every mutating operation; O(database size), acceptable for
// a single user's task list.
func (s *Store) snapshotLocked() error {
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	data, err := os.ReadFile(s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to read database file: %w", err)
	}

	tmp := s.snapPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.snapPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}
	return nil
}

// List returns tasks ordered by sort_order. A non-zero day filters to the
// bucket covering that day (normalized by period, or by day alone when no
// period is given); a period without a day filters by period tag alone.
func (s *Store) List(ctx context.Context, day time.Time, p task.Period) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(ctx, day, p)
}

func (s *Store) listLocked(ctx context.Context, day time.Time, p task.Period) ([]task.Task, error) {
	query := `SELECT id, name, complete, sort_order, period, date, updated FROM task`
	var (
		conds []string
		args  []any
	)
	if !day.IsZero() {
		norm := p
		if norm == "" {
			norm = task.Days
		}
		conds = append(conds, "date = ?")
		args = append(args, task.ISODate(task.PeriodStart(day, norm, s.weekStart)))
	}
	if p != "" {
		conds = append(conds, "period = ?")
		args = append(args, string(p))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY sort_order ASC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// Read returns the task with the given id, or ErrNotFound.
func (s *Store) Read(ctx context.Context, id string) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(ctx, id)
}

func (s *Store) readLocked(ctx context.Context, id string) (task.Task, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, name, complete, sort_order, period, date, updated FROM task WHERE id = ?`, id)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return task.Task{}, fmt.Errorf("failed to read task %s: %w", id, err)
	}
	return t, nil
}

// LatestUpdated returns the greatest updated clock in the table, or 0 when
// the table is empty. This is the pull watermark.
func (s *Store) LatestUpdated(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT updated FROM task ORDER BY updated DESC LIMIT 1`).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read watermark: %w", err)
	}
	return updated, nil
}

// CreateParams are the inputs to Create. Zero-valued optional fields get
// store-computed defaults.
type CreateParams struct {
	// ID is assigned from the fixed alphabet when empty.
	ID   string
	Name string

	Complete bool

	// SortOrder defaults to the current bucket length + 1 when nil.
	SortOrder *int

	Period task.Period

	// Date may be any day inside the target period; it is normalized to
	// the period start before storage.
	Date time.Time

	// Updated is used verbatim when non-zero; this is how remote-origin
	// merges avoid re-timestamping. Zero means "stamp with now".
	Updated int64
}

// Create inserts a new task, normalizes its date to the period start,
// snapshots, and enqueues an upsert record.
func (s *Store) Create(ctx context.Context, p CreateParams) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(ctx, p, true)
}

// CreateFromRemote inserts a task received from the remote authority.
// The remote's id, date, period and updated clock are used verbatim and
// nothing is enqueued.
func (s *Store) CreateFromRemote(ctx context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	date, err := time.Parse(task.DateLayout, t.Date)
	if err != nil {
		return fmt.Errorf("invalid remote date %q: %w", t.Date, err)
	}
	sortOrder := t.SortOrder
	_, err = s.createLocked(ctx, CreateParams{
		ID:        t.ID,
		Name:      t.Name,
		Complete:  t.Complete,
		SortOrder: &sortOrder,
		Period:    t.Period,
		Date:      date,
		Updated:   t.Updated,
	}, false)
	return err
}

func (s *Store) createLocked(ctx context.Context, p CreateParams, enq bool) (task.Task, error) {
	id := p.ID
	if id == "" {
		id = task.NewID()
	}

	start := task.PeriodStart(p.Date, p.Period, s.weekStart)
	date := task.ISODate(start)

	sortOrder := 0
	if p.SortOrder != nil {
		sortOrder = *p.SortOrder
	} else {
		bucket, err := s.listLocked(ctx, start, p.Period)
		if err != nil {
			return task.Task{}, err
		}
		sortOrder = len(bucket) + 1
	}

	updated := p.Updated
	if updated == 0 {
		updated = s.now()
	}

	t := task.Task{
		ID:        id,
		Name:      p.Name,
		Complete:  p.Complete,
		SortOrder: sortOrder,
		Period:    p.Period,
		Date:      date,
		Updated:   updated,
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO task (id, name, complete, sort_order, period, date, updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Complete, t.SortOrder, string(t.Period), t.Date, t.Updated)
	if err != nil {
		return task.Task{}, fmt.Errorf("failed to insert task %s: %w", t.ID, err)
	}

	if err := s.snapshotLocked(); err != nil {
		return task.Task{}, err
	}
	if enq {
		if err := s.enqueueUpsert(t); err != nil {
			return task.Task{}, err
		}
	}
	return t, nil
}

// Update applies a partial field set to an existing task. The updated
// clock is bumped only when a mutable field actually changes value and no
// explicit clock was supplied; a supplied clock is trusted as-is.
func (s *Store) Update(ctx context.Context, id string, f task.Fields) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, id, f, true)
}

// UpdateFromRemote overwrites a local task with the remote's fields and
// clock, without enqueueing.
func (s *Store) UpdateFromRemote(ctx context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.updateLocked(ctx, t.ID, task.FieldsOf(t), false)
	return err
}

func (s *Store) updateLocked(ctx context.Context, id string, f task.Fields, enq bool) (task.Task, error) {
	cur, err := s.readLocked(ctx, id)
	if err != nil {
		return task.Task{}, err
	}

	updated := f.Updated
	if updated == 0 {
		changed := (f.Name != nil && *f.Name != cur.Name) ||
			(f.Complete != nil && *f.Complete != cur.Complete) ||
			(f.SortOrder != nil && *f.SortOrder != cur.SortOrder)
		if changed {
			updated = s.now()
		}
	}

	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if f.Name != nil {
		set("name", *f.Name)
	}
	if f.Complete != nil {
		set("complete", *f.Complete)
	}
	if f.SortOrder != nil {
		set("sort_order", *f.SortOrder)
	}
	if f.Period != nil {
		set("period", string(*f.Period))
	}
	if f.Date != nil {
		set("date", *f.Date)
	}
	if updated != 0 {
		set("updated", updated)
	}

	if len(sets) > 0 {
		query := "UPDATE task SET " + strings.Join(sets, ", ") + " WHERE id = ?"
		args = append(args, id)

		if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
			return task.Task{}, fmt.Errorf("failed to update task %s: %w", id, err)
		}
	}

	result, err := s.readLocked(ctx, id)
	if err != nil {
		return task.Task{}, err
	}

	if err := s.snapshotLocked(); err != nil {
		return task.Task{}, err
	}
	if enq {
		if err := s.enqueueUpsert(result); err != nil {
			return task.Task{}, err
		}
	}
	return result, nil
}

// Delete removes a task and compacts the remaining bucket by re-assigning
// 0..n-1 to the surviving rows in their existing relative order. Each
// compaction step is its own durability write.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(ctx, id, true)
}

// DeleteFromRemote removes a task during a pull merge without enqueueing.
func (s *Store) DeleteFromRemote(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(ctx, id, false)
}

func (s *Store) deleteLocked(ctx context.Context, id string, enq bool) error {
	cur, err := s.readLocked(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.conn.ExecContext(ctx, `DELETE FROM task WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if err := s.snapshotLocked(); err != nil {
		return err
	}
	if enq {
		if err := s.enqueue(queue.Record{ID: id, Type: queue.Delete}); err != nil {
			return err
		}
	}

	// Compact the surviving bucket.
	day, err := time.Parse(task.DateLayout, cur.Date)
	if err != nil {
		return fmt.Errorf("invalid stored date %q: %w", cur.Date, err)
	}
	remaining, err := s.listLocked(ctx, day, cur.Period)
	if err != nil {
		return err
	}
	for i, t := range remaining {
		idx := i
		if _, err := s.updateLocked(ctx, t.ID, task.Fields{SortOrder: &idx}, enq); err != nil {
			return err
		}
	}
	return nil
}

// CopyIncompletes duplicates the incomplete tasks of the immediately
// preceding bucket into the bucket covering day. The copies get fresh ids
// and clocks; the source tasks are untouched.
func (s *Store) CopyIncompletes(ctx context.Context, day time.Time, p task.Period) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := task.PreviousPeriodStart(day, p, s.weekStart)
	previous, err := s.listLocked(ctx, prev, p)
	if err != nil {
		return nil, err
	}

	var copies []task.Task
	for _, t := range previous {
		if t.Complete {
			continue
		}
		copied, err := s.createLocked(ctx, CreateParams{
			Name:   t.Name,
			Period: p,
			Date:   day,
		}, true)
		if err != nil {
			return copies, err
		}
		copies = append(copies, copied)
	}
	return copies, nil
}

// ClearPeriod deletes every task in the bucket covering day, one delete
// per row.
func (s *Store) ClearPeriod(ctx context.Context, day time.Time, p task.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.listLocked(ctx, day, p)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := s.deleteLocked(ctx, t.ID, true); err != nil {
			return err
		}
	}
	return nil
}

// UpdateOrder reorders the bucket covering day to match orderedIDs,
// assigning sort_order = index. Any id outside the bucket fails with
// ErrOrderMembership before anything is mutated.
func (s *Store) UpdateOrder(ctx context.Context, day time.Time, p task.Period, orderedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.listLocked(ctx, day, p)
	if err != nil {
		return err
	}
	members := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		members[t.ID] = true
	}
	for _, id := range orderedIDs {
		if !members[id] {
			return fmt.Errorf("task %s: %w", id, ErrOrderMembership)
		}
	}

	for i, id := range orderedIDs {
		idx := i
		if _, err := s.updateLocked(ctx, id, task.Fields{SortOrder: &idx}, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) enqueueUpsert(t task.Task) error {
	f := task.FieldsOf(t)
	return s.enqueue(queue.Record{ID: t.ID, Type: queue.Update, Data: &f})
}

func (s *Store) enqueue(rec queue.Record) error {
	if s.q == nil {
		return nil
	}
	if err := s.q.Enqueue(rec); err != nil {
		return fmt.Errorf("failed to enqueue mutation for %s: %w", rec.ID, err)
	}
	return nil
}

// scanTask reads one row from a QueryRow result.
func scanTask(row *sql.Row) (task.Task, error) {
	var (
		t      task.Task
		period string
	)
	err := row.Scan(&t.ID, &t.Name, &t.Complete, &t.SortOrder, &period, &t.Date, &t.Updated)
	if err != nil {
		return task.Task{}, err
	}
	t.Period = task.Period(period)
	return t, nil
}

// scanTasks reads all rows from a query result.
func scanTasks(rows *sql.Rows) ([]task.Task, error) {
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}
