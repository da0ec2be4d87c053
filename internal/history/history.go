package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Repository reads and writes the run ledger.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository using db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// NewID returns a fresh run id.
func NewID() string { return uuid.NewString() }

// Record stores run and its artifacts. An empty ID is filled in. The
// stored ID is returned.
func (r *Repository) Record(run Run) (string, error) {
	if run.ID == "" {
		run.ID = NewID()
	} else if _, err := uuid.Parse(run.ID); err != nil {
		return "", fmt.Errorf("invalid run id %q: %w", run.ID, err)
	}
	trx, err := r.db.Begin()
	if err != nil {
		return "", err
	}
	defer func() { _ = trx.Rollback() }()

	_, err = trx.Exec(`INSERT INTO runs (id, started_at, finished_at, event_kind, event_ref, version, tag,
			tag_created, commit_sha, outcome, failed_step, reason, dry_run, tagship_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.EventKind, run.EventRef,
		run.Version, run.Tag, boolInt(run.TagCreated), run.Commit, run.Outcome, run.FailedStep,
		run.Reason, boolInt(run.DryRun), run.ToolVersion)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	for i, a := range run.Artifacts {
		if _, err := trx.Exec("INSERT INTO run_artifacts (run_id, position, name) VALUES (?, ?, ?)", run.ID, i+1, a); err != nil {
			return "", fmt.Errorf("insert artifact: %w", err)
		}
	}
	if err := trx.Commit(); err != nil {
		return "", err
	}
	return run.ID, nil
}

// List returns the most recent runs, newest first. limit <= 0 means all.
func (r *Repository) List(limit int) ([]Run, error) {
	q := `SELECT id, started_at, finished_at, event_kind, event_ref, version, tag, tag_created,
			commit_sha, outcome, failed_step, reason, dry_run, tagship_version
		FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Artifacts, err = r.artifacts(out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Get returns the run with id.
func (r *Repository) Get(id string) (Run, error) {
	row := r.db.QueryRow(`SELECT id, started_at, finished_at, event_kind, event_ref, version, tag, tag_created,
			commit_sha, outcome, failed_step, reason, dry_run, tagship_version
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}
	if run.Artifacts, err = r.artifacts(id); err != nil {
		return Run{}, err
	}
	return run, nil
}

func (r *Repository) artifacts(id string) ([]string, error) {
	rows, err := r.db.Query("SELECT name FROM run_artifacts WHERE run_id = ? ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run                         Run
		started, finished           string
		ref, version, tag, commit   sql.NullString
		failedStep, reason, toolVer sql.NullString
		tagCreated, dryRun          int
	)
	err := s.Scan(&run.ID, &started, &finished, &run.EventKind, &ref, &version, &tag, &tagCreated,
		&commit, &run.Outcome, &failedStep, &reason, &dryRun, &toolVer)
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	run.EventRef = ref.String
	run.Version = version.String
	run.Tag = tag.String
	run.TagCreated = tagCreated != 0
	run.Commit = commit.String
	run.FailedStep = failedStep.String
	run.Reason = reason.String
	run.DryRun = dryRun != 0
	run.ToolVersion = toolVer.String
	return run, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
