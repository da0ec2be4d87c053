// Package release runs the release procedure: decide whether the event is
// eligible, tag the declared version once, check the tag out, build it and
// publish it with a freshly minted credential.
package release

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VoxDroid/tagship/internal/history"
	"github.com/VoxDroid/tagship/internal/trigger"
	"github.com/VoxDroid/tagship/internal/vcs"
)

// Step names, in execution order.
const (
	StepTrigger     = "trigger"
	StepCheckout    = "checkout"
	StepSetup       = "setup"
	StepVersion     = "version"
	StepTagCheck    = "tag-check"
	StepTag         = "tag"
	StepCheckoutTag = "checkout-tag"
	StepBuild       = "build"
	StepMint        = "mint"
	StepPublish     = "publish"
)

// Outcome is how a run ended.
type Outcome string

const (
	// OutcomePublished means the artifacts were uploaded.
	OutcomePublished Outcome = "published"
	// OutcomeSkipped means the run ended early without error.
	OutcomeSkipped Outcome = "skipped"
	// OutcomePlanned is the outcome of a successful dry run.
	OutcomePlanned Outcome = "planned"
	// OutcomeFailed means a step failed.
	OutcomeFailed Outcome = "failed"
)

// StepStatus is the state a step finished in.
type StepStatus string

const (
	StatusDone    StepStatus = "done"
	StatusSkipped StepStatus = "skipped"
	StatusFailed  StepStatus = "failed"
)

var (
	// ErrTagMismatch is returned when a tag event names a tag that is not
	// the declared version.
	ErrTagMismatch = errors.New("pushed tag does not match the declared version")
	// ErrNotMonotonic is returned by the monotonic guard.
	ErrNotMonotonic = errors.New("version is not greater than the latest release tag")
	// ErrNoCredentials is returned when no credential source is wired.
	ErrNoCredentials = errors.New("no publish credential source")
)

// Step records one executed step.
type Step struct {
	Name     string
	Status   StepStatus
	Reason   string
	Duration time.Duration
}

// Result summarizes a run.
type Result struct {
	RunID      string
	Event      trigger.Event
	Version    string
	Tag        string
	TagCreated bool
	Commit     string
	Artifacts  []string
	Outcome    Outcome
	Reason     string
	FailedStep string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      []Step
}

// Step returns the recorded step called name.
func (r *Result) Step(name string) (Step, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// Run converts the result into a ledger entry.
func (r *Result) Run(toolVersion string) history.Run {
	ref := r.Event.Branch
	if r.Event.Kind == trigger.KindTag {
		ref = r.Event.Tag
	}
	return history.Run{
		ID:          r.RunID,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		EventKind:   string(r.Event.Kind),
		EventRef:    ref,
		Version:     r.Version,
		Tag:         r.Tag,
		TagCreated:  r.TagCreated,
		Commit:      r.Commit,
		Outcome:     string(r.Outcome),
		FailedStep:  r.FailedStep,
		Reason:      r.Reason,
		DryRun:      r.DryRun,
		ToolVersion: toolVersion,
		Artifacts:   r.Artifacts,
	}
}

// StepError is the error of the step that aborted a run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// Repo is the version-control working copy a run operates on.
type Repo interface {
	IsShallow() (bool, error)
	Head() (string, error)
	TagExists(name string) (bool, error)
	Tags() ([]string, error)
	CreateTag(name string, opts *vcs.TagOptions) (string, error)
	PushTag(ctx context.Context, remote, name string) error
	FetchTags(ctx context.Context, remote string) error
	CheckoutTag(name string) (string, error)
	ChangedFiles(from, to string) ([]string, error)
}

// Builder is the project's build manager.
type Builder interface {
	Setup(ctx context.Context) error
	Version(ctx context.Context) (string, error)
	Build(ctx context.Context, version string) ([]string, error)
	Configure(credential string) error
	Publish(ctx context.Context, version string) error
}

// Ledger receives every finished run.
type Ledger interface {
	Record(run history.Run) (string, error)
}
