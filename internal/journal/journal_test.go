package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func entry(id string, completedAt time.Time) Entry {
	return Entry{
		RequestID:      id,
		SessionID:      "s1",
		Operation:      "search",
		Action:         "bulk",
		Priority:       "normal",
		Status:         "completed",
		WorkerExecuted: true,
		QueuedAt:       completedAt.Add(-20 * time.Millisecond),
		CompletedAt:    completedAt,
		DurationMs:     20,
	}
}

func TestRecordAndRecent(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t)
	ctx := context.Background()

	now := time.Now()
	if err := j.Record(ctx, entry("r1", now.Add(-2*time.Second))); err != nil {
		t.Fatalf("Record r1: %v", err)
	}
	failed := entry("r2", now)
	failed.Status = "failed"
	failed.Error = "boom"
	failed.WorkerExecuted = false
	if err := j.Record(ctx, failed); err != nil {
		t.Fatalf("Record r2: %v", err)
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].RequestID != "r2" {
		t.Fatalf("most recent first, got %s", entries[0].RequestID)
	}
	if entries[0].Error != "boom" || entries[0].WorkerExecuted {
		t.Fatalf("failure fields lost: %+v", entries[0])
	}
	if !entries[1].WorkerExecuted {
		t.Fatal("worker_executed flag lost")
	}
	if entries[1].CompletedAt.IsZero() {
		t.Fatal("completed_at not round-tripped")
	}
}

func TestRecentHonorsLimit(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		if err := j.Record(ctx, entry(
			string(rune('a'+i)), base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := j.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].RequestID != "e" {
		t.Fatalf("expected newest entry first, got %s", entries[0].RequestID)
	}
}

func TestRecordRejectsDuplicatesAndInvalid(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t)
	ctx := context.Background()

	e := entry("r1", time.Now())
	if err := j.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j.Record(ctx, e); err == nil {
		t.Fatal("a request resolves once; duplicate ids must be rejected")
	}

	if err := j.Record(ctx, Entry{Status: "completed"}); err == nil {
		t.Fatal("empty request id must be rejected")
	}
	if err := j.Record(ctx, Entry{RequestID: "r2"}); err == nil {
		t.Fatal("empty status must be rejected")
	}
}

func TestPruneDeletesOldEntries(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t)
	ctx := context.Background()

	now := time.Now()
	if err := j.Record(ctx, entry("old", now.Add(-48*time.Hour))); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j.Record(ctx, entry("new", now)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	n, err := j.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", n)
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].RequestID != "new" {
		t.Fatalf("wrong survivor: %+v", entries)
	}

	// Zero retention disables pruning entirely.
	if n, err := j.Prune(ctx, 0); err != nil || n != 0 {
		t.Fatalf("Prune(0) = (%d, %v)", n, err)
	}
}
