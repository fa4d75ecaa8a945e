// Package queue provides the durable, append-only log of pending outbound
// mutations. It is stored independently from the task snapshot so queued
// records survive even when a snapshot write is skipped.
//
// The queue makes no attempt to dedup or coalesce: three edits to the same
// task produce three records, in order.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"planner/internal/task"
)

// RecordType distinguishes upserts from deletes on the wire.
type RecordType string

const (
	// Update carries the resulting field set of a create or update.
	Update RecordType = "update"
	// Delete carries no data, only the task id.
	Delete RecordType = "delete"
)

// Record is one pending mutation awaiting push to the remote.
type Record struct {
	ID   string       `json:"id"`
	Type RecordType   `json:"type"`
	Data *task.Fields `json:"data,omitempty"`
}

// Queue is a JSONL-backed mutation log. All operations are safe for
// concurrent use.
type Queue struct {
	mu   sync.Mutex
	path string
}

// Open prepares a queue backed by the given file. The file is created
// lazily on first enqueue.
func Open(path string) (*Queue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}
	return &Queue{path: path}, nil
}

// Enqueue appends one record to the log.
func (q *Queue) Enqueue(rec Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.append([]Record{rec})
}

// Requeue appends records back onto the log, preserving their order.
// Used by the push path to retry records whose delivery failed.
func (q *Queue) Requeue(recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.append(recs)
}

func (q *Queue) append(recs []Record) error {
	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open queue file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to append queue record: %w", err)
		}
	}
	return f.Sync()
}

// Drain atomically reads and clears the entire log, returning the pending
// records in enqueue order. Records enqueued after Drain returns belong to
// the next drain.
func (q *Queue) Drain() ([]Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	recs, err := q.readAll()
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	if err := os.Remove(q.path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to clear queue file: %w", err)
	}
	return recs, nil
}

// Len returns the number of pending records.
func (q *Queue) Len() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	recs, err := q.readAll()
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (q *Queue) readAll() ([]Record, error) {
	f, err := os.Open(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open queue file: %w", err)
	}
	defer f.Close()

	var recs []Record
	dec := json.NewDecoder(f)
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid queue record at index %d: %w", len(recs), err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
