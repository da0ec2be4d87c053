// Package history keeps a local ledger of release runs.
package history

import "time"

// Run is one recorded release run.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	EventKind   string
	EventRef    string
	Version     string
	Tag         string
	TagCreated  bool
	Commit      string
	Outcome     string
	FailedStep  string
	Reason      string
	DryRun      bool
	ToolVersion string
	Artifacts   []string
}

// Duration is how long the run took.
func (r Run) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }
