package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/VoxDroid/tagship/internal/db"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	d, err := db.InitDB(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return NewRepository(d)
}

func TestRecordAndGet(t *testing.T) {
	r := newRepo(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := Run{
		StartedAt:   start,
		FinishedAt:  start.Add(90 * time.Second),
		EventKind:   "push",
		EventRef:    "main",
		Version:     "1.2.3",
		Tag:         "1.2.3",
		TagCreated:  true,
		Commit:      "abc123",
		Outcome:     "published",
		ToolVersion: "dev",
		Artifacts:   []string{"pkg-1.2.3.tar.gz", "pkg-1.2.3-py3-none-any.whl"},
	}
	id, err := r.Record(run)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	run.ID = id
	if diff := cmp.Diff(run, got); diff != "" {
		t.Fatalf("run mismatch (-want +got):\n%s", diff)
	}
	if got.Duration() != 90*time.Second {
		t.Fatalf("Duration = %v", got.Duration())
	}
}

func TestGetUnknown(t *testing.T) {
	r := newRepo(t)
	if _, err := r.Get(NewID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordRejectsBadID(t *testing.T) {
	r := newRepo(t)
	if _, err := r.Record(Run{ID: "not-a-uuid", EventKind: "push", Outcome: "skipped"}); err == nil {
		t.Fatalf("expected invalid id error")
	}
}

func TestListNewestFirst(t *testing.T) {
	r := newRepo(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	outcomes := []string{"skipped", "failed", "published"}
	for i, o := range outcomes {
		at := base.Add(time.Duration(i) * time.Hour)
		if _, err := r.Record(Run{StartedAt: at, FinishedAt: at, EventKind: "manual", Outcome: o}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	runs, err := r.List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var got []string
	for _, run := range runs {
		got = append(got, run.Outcome)
	}
	if diff := cmp.Diff([]string{"published", "failed"}, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	all, err := r.List(0)
	if err != nil || len(all) != 3 {
		t.Fatalf("List(0) = %d runs, %v", len(all), err)
	}
}
