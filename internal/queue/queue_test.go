package queue

import (
	"path/filepath"
	"testing"

	"planner/internal/task"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "queue.jsonl"))
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}
	return q
}

func upsertRecord(id, name string) Record {
	f := task.FieldsOf(task.Task{ID: id, Name: name, Period: task.Days, Date: "2026-03-11"})
	return Record{ID: id, Type: Update, Data: &f}
}

func TestEnqueueDrainOrder(t *testing.T) {
	q := openTestQueue(t)

	want := []Record{
		upsertRecord("aaa", "first"),
		{ID: "bbb", Type: Delete},
		upsertRecord("aaa", "first again"),
	}
	for _, rec := range want {
		if err := q.Enqueue(rec); err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}
	}

	got, err := q.Drain()
	if err != nil {
		t.Fatalf("failed to drain: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("drained %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Type != want[i].Type {
			t.Errorf("record %d = {%s %s}, want {%s %s}",
				i, got[i].ID, got[i].Type, want[i].ID, want[i].Type)
		}
	}
	if got[0].Data == nil || *got[0].Data.Name != "first" {
		t.Errorf("record 0 lost its data: %+v", got[0].Data)
	}
	if got[1].Data != nil {
		t.Errorf("delete record carried data: %+v", got[1].Data)
	}
}

func TestDrainClears(t *testing.T) {
	q := openTestQueue(t)

	if err := q.Enqueue(upsertRecord("aaa", "one")); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}
	if _, err := q.Drain(); err != nil {
		t.Fatalf("failed to drain: %v", err)
	}

	n, err := q.Len()
	if err != nil {
		t.Fatalf("failed to read length: %v", err)
	}
	if n != 0 {
		t.Errorf("queue has %d records after drain, want 0", n)
	}

	recs, err := q.Drain()
	if err != nil {
		t.Fatalf("second drain failed: %v", err)
	}
	if recs != nil {
		t.Errorf("second drain returned %d records, want none", len(recs))
	}
}

func TestDrainEmptyQueue(t *testing.T) {
	q := openTestQueue(t)

	recs, err := q.Drain()
	if err != nil {
		t.Fatalf("drain of empty queue failed: %v", err)
	}
	if recs != nil {
		t.Errorf("drain of empty queue returned %v", recs)
	}
}

func TestRequeueAppendsInOrder(t *testing.T) {
	q := openTestQueue(t)

	if err := q.Enqueue(upsertRecord("aaa", "newer edit")); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}
	failed := []Record{upsertRecord("bbb", "retry me"), {ID: "ccc", Type: Delete}}
	if err := q.Requeue(failed); err != nil {
		t.Fatalf("failed to requeue: %v", err)
	}

	got, err := q.Drain()
	if err != nil {
		t.Fatalf("failed to drain: %v", err)
	}
	wantIDs := []string{"aaa", "bbb", "ccc"}
	if len(got) != len(wantIDs) {
		t.Fatalf("drained %d records, want %d", len(got), len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("record %d id = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.jsonl")

	q, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}
	if err := q.Enqueue(upsertRecord("aaa", "persisted")); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("failed to reopen queue: %v", err)
	}
	recs, err := reopened.Drain()
	if err != nil {
		t.Fatalf("failed to drain reopened queue: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "aaa" {
		t.Fatalf("reopened queue drained %+v, want the one persisted record", recs)
	}
}
