package release

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"

	"github.com/VoxDroid/tagship/internal/config"
	"github.com/VoxDroid/tagship/internal/history"
	"github.com/VoxDroid/tagship/internal/log"
	"github.com/VoxDroid/tagship/internal/manifest"
	"github.com/VoxDroid/tagship/internal/params"
	"github.com/VoxDroid/tagship/internal/trigger"
	"github.com/VoxDroid/tagship/internal/vcs"
)

// Options are the per-repository release settings.
type Options struct {
	Remote        string
	MainBranch    string
	ManifestPath  string
	VersionSource string
	Filter        *trigger.Filter
	// Tagger is used for annotated tags. Nil creates lightweight tags.
	Tagger     *vcs.TagOptions
	TagMessage string
	Monotonic  bool
	DryRun     bool
	// Confirm, when set, is asked before pushing a tag and before
	// publishing. A false answer ends the run as skipped.
	Confirm func(prompt string) bool
}

// Orchestrator runs releases. Open, Builder and Credentials are required;
// Ledger, Log and Redact are optional.
type Orchestrator struct {
	Options
	Open        func() (Repo, error)
	Builder     Builder
	Credentials oauth2.TokenSource
	Ledger      Ledger
	Log         log.Logger
	// Redact scrubs secrets from failure reasons before the result is
	// returned or recorded.
	Redact      func(string) string
	ToolVersion string
	Now         func() time.Time
}

// skipStep marks a step as skipped while the run continues.
type skipStep struct{ reason string }

func (s skipStep) Error() string { return s.reason }

// halt ends the run early with outcome skipped.
type halt struct{ reason string }

func (h halt) Error() string { return h.reason }

// run is the state of a single Run call.
type run struct {
	*Orchestrator
	ev        trigger.Event
	res       *Result
	repo      Repo
	tagExists bool
	// credential is held between the mint and publish steps only.
	credential string
}

// Run executes the release procedure for ev. Ineligible events, versions
// that are not strict releases and declined confirmations end the run with
// outcome skipped and a nil error. The first failing step ends the run with
// outcome failed and a *StepError.
func (o *Orchestrator) Run(ctx context.Context, ev trigger.Event) (res Result, err error) {
	if o.Log == nil {
		o.Log = log.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	res = Result{
		RunID:     history.NewID(),
		Event:     ev,
		DryRun:    o.DryRun,
		StartedAt: o.Now(),
	}
	defer func() {
		res.FinishedAt = o.Now()
		o.redact(&res)
		o.record(&res)
	}()

	r := &run{Orchestrator: o, ev: ev, res: &res}
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StepTrigger, r.trigger},
		{StepCheckout, r.checkout},
		{StepSetup, r.setup},
		{StepVersion, r.version},
		{StepTagCheck, r.tagCheck},
		{StepTag, r.tag},
		{StepCheckoutTag, r.checkoutTag},
		{StepBuild, r.build},
		{StepMint, r.mint},
		{StepPublish, r.publish},
	}
	o.Log.Infof("release run %s for %s", res.RunID, ev)
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return res, r.fail(s.name, err, 0)
		}
		stop, err := r.step(ctx, s.name, s.fn)
		if err != nil {
			return res, err
		}
		if stop {
			return res, nil
		}
	}
	if o.DryRun {
		res.Outcome = OutcomePlanned
		o.Log.Infof("dry run complete: %s would be tagged and published", res.Version)
	} else {
		res.Outcome = OutcomePublished
		o.Log.Infof("published %s (%d artifacts)", res.Version, len(res.Artifacts))
	}
	return res, nil
}

func (r *run) step(ctx context.Context, name string, fn func(context.Context) error) (stop bool, err error) {
	r.Log.Infof("==> %s", name)
	start := r.Now()
	e := fn(ctx)
	d := r.Now().Sub(start)

	var sk skipStep
	var h halt
	switch {
	case e == nil:
		r.res.Steps = append(r.res.Steps, Step{Name: name, Status: StatusDone, Duration: d})
	case errors.As(e, &sk):
		r.Log.Infof("skipped: %s", sk.reason)
		r.res.Steps = append(r.res.Steps, Step{Name: name, Status: StatusSkipped, Reason: sk.reason, Duration: d})
	case errors.As(e, &h):
		r.Log.Infof("nothing to release: %s", h.reason)
		r.res.Steps = append(r.res.Steps, Step{Name: name, Status: StatusSkipped, Reason: h.reason, Duration: d})
		r.res.Outcome = OutcomeSkipped
		r.res.Reason = h.reason
		return true, nil
	default:
		return true, r.fail(name, e, d)
	}
	return false, nil
}

func (r *run) fail(name string, e error, d time.Duration) error {
	r.Log.Errorf("%s failed: %v", name, e)
	r.res.Steps = append(r.res.Steps, Step{Name: name, Status: StatusFailed, Reason: e.Error(), Duration: d})
	r.res.Outcome = OutcomeFailed
	r.res.FailedStep = name
	r.res.Reason = e.Error()
	return &StepError{Step: name, Err: e}
}

func (o *Orchestrator) redact(res *Result) {
	if o.Redact == nil {
		return
	}
	res.Reason = o.Redact(res.Reason)
	for i := range res.Steps {
		res.Steps[i].Reason = o.Redact(res.Steps[i].Reason)
	}
}

func (o *Orchestrator) record(res *Result) {
	if o.Ledger == nil {
		return
	}
	if _, err := o.Ledger.Record(res.Run(o.ToolVersion)); err != nil {
		o.Log.Warnf("could not record run %s in ledger: %v", res.RunID, err)
	}
}

// openRepo opens the working copy once per run.
func (r *run) openRepo() (Repo, error) {
	if r.repo != nil {
		return r.repo, nil
	}
	if r.Open == nil {
		return nil, errors.New("no repository configured")
	}
	repo, err := r.Open()
	if err != nil {
		return nil, err
	}
	r.repo = repo
	return repo, nil
}

func (r *run) trigger(_ context.Context) error {
	if r.Filter == nil {
		return nil
	}
	var changed []string
	if r.ev.Kind == trigger.KindPush && r.ev.HasRange() && r.Filter.WatchesPaths() {
		repo, err := r.openRepo()
		if err != nil {
			return err
		}
		files, err := repo.ChangedFiles(r.ev.Before, r.ev.After)
		if err != nil {
			r.Log.Warnf("cannot compute changed files %s..%s, treating the change set as unknown: %v", short(r.ev.Before), short(r.ev.After), err)
		} else {
			changed = files
			if changed == nil {
				changed = []string{}
			}
		}
	}
	ok, reason := r.Filter.Accepts(r.ev, changed)
	if !ok {
		return halt{reason}
	}
	r.Log.Debugf("event accepted: %s", reason)
	return nil
}

func (r *run) checkout(_ context.Context) error {
	repo, err := r.openRepo()
	if err != nil {
		return err
	}
	shallow, err := repo.IsShallow()
	if err != nil {
		return err
	}
	if shallow {
		return vcs.ErrShallow
	}
	head, err := repo.Head()
	if err != nil {
		return err
	}
	r.res.Commit = head
	r.Log.Infof("HEAD at %s", short(head))
	return nil
}

func (r *run) setup(ctx context.Context) error {
	return r.Builder.Setup(ctx)
}

func (r *run) version(ctx context.Context) error {
	var v string
	if r.VersionSource == config.VersionFromTool {
		tv, err := r.Builder.Version(ctx)
		if err != nil {
			return err
		}
		v = tv
	} else {
		m, err := manifest.Read(r.ManifestPath)
		if err != nil {
			return err
		}
		v = m.Version
		if m.Name != "" {
			r.Log.Infof("%s declares version %s", m.Name, v)
		}
	}
	r.res.Version = v
	if !manifest.ValidRelease(v) {
		return halt{fmt.Sprintf("version %q is not a release version (N.N.N)", v)}
	}
	if r.ev.Kind == trigger.KindTag && r.ev.Tag != v {
		return fmt.Errorf("%w: tag %q, version %q", ErrTagMismatch, r.ev.Tag, v)
	}
	r.res.Tag = v
	return nil
}

func (r *run) tagCheck(_ context.Context) error {
	exists, err := r.repo.TagExists(r.res.Tag)
	if err != nil {
		return err
	}
	r.tagExists = exists
	if exists {
		r.Log.Infof("tag %s already exists", r.res.Tag)
	} else {
		r.Log.Infof("tag %s does not exist yet", r.res.Tag)
	}
	return nil
}

func (r *run) tag(ctx context.Context) error {
	name := r.res.Tag
	if !trigger.ShouldCreateTag(r.ev, r.MainBranch, r.tagExists) {
		return skipStep{r.noTagReason()}
	}
	if err := r.checkMonotonic(name); err != nil {
		return err
	}
	if r.DryRun {
		r.Log.Infof("dry run: would create tag %s at %s and push it to %s", name, short(r.res.Commit), r.Remote)
		return skipStep{"dry run"}
	}
	if r.Confirm != nil && !r.Confirm(fmt.Sprintf("Create tag %s at %s and push it to %s?", name, short(r.res.Commit), r.Remote)) {
		return halt{"tag creation declined"}
	}
	var opts *vcs.TagOptions
	if r.Tagger != nil {
		msg, err := params.ApplyParams(r.TagMessage, map[string]string{"version": name, "tag": name})
		if err != nil {
			return err
		}
		opts = &vcs.TagOptions{TaggerName: r.Tagger.TaggerName, TaggerEmail: r.Tagger.TaggerEmail, Message: msg}
	}
	at, err := r.repo.CreateTag(name, opts)
	if err != nil {
		return err
	}
	r.res.TagCreated = true
	r.Log.Infof("created tag %s at %s", name, short(at))
	if err := r.repo.PushTag(ctx, r.Remote, name); err != nil {
		return err
	}
	r.Log.Infof("pushed tag %s to %s", name, r.Remote)
	return nil
}

func (r *run) noTagReason() string {
	switch {
	case r.tagExists:
		return fmt.Sprintf("tag %s already exists", r.res.Tag)
	case r.ev.Kind != trigger.KindPush:
		return fmt.Sprintf("%s events never create tags", r.ev.Kind)
	default:
		return fmt.Sprintf("branch %q is not %q", r.ev.Branch, r.MainBranch)
	}
}

func (r *run) checkMonotonic(name string) error {
	tags, err := r.repo.Tags()
	if err != nil {
		return err
	}
	latest, ok := manifest.Latest(tags)
	if !ok {
		return nil
	}
	c, err := manifest.Compare(name, latest)
	if err != nil {
		return err
	}
	if c > 0 {
		return nil
	}
	if r.Monotonic {
		return fmt.Errorf("%w: %s <= %s", ErrNotMonotonic, name, latest)
	}
	r.Log.Warnf("version %s is not greater than latest release tag %s", name, latest)
	return nil
}

func (r *run) checkoutTag(ctx context.Context) error {
	if r.DryRun {
		r.Log.Infof("dry run: would fetch tags from %s and check out %s", r.Remote, r.res.Tag)
		return skipStep{"dry run"}
	}
	if err := r.repo.FetchTags(ctx, r.Remote); err != nil {
		return err
	}
	commit, err := r.repo.CheckoutTag(r.res.Tag)
	if err != nil {
		return err
	}
	r.res.Commit = commit
	r.Log.Infof("checked out %s at %s", r.res.Tag, short(commit))
	return nil
}

func (r *run) build(ctx context.Context) error {
	if r.DryRun {
		r.Log.Infof("dry run: would build %s", r.res.Version)
		return skipStep{"dry run"}
	}
	paths, err := r.Builder.Build(ctx, r.res.Version)
	if err != nil {
		return err
	}
	for _, p := range paths {
		r.res.Artifacts = append(r.res.Artifacts, filepath.Base(p))
		r.Log.Infof("built %s", filepath.Base(p))
	}
	return nil
}

func (r *run) mint(_ context.Context) error {
	if r.DryRun {
		r.Log.Infof("dry run: would mint a publish credential")
		return skipStep{"dry run"}
	}
	if r.Credentials == nil {
		return ErrNoCredentials
	}
	tok, err := r.Credentials.Token()
	if err != nil {
		return err
	}
	if !tok.Valid() {
		return errors.New("minted credential is empty or expired")
	}
	r.credential = tok.AccessToken
	r.Log.Infof("minted a short-lived publish credential")
	return nil
}

func (r *run) publish(ctx context.Context) error {
	if r.DryRun {
		r.Log.Infof("dry run: would publish %d artifacts", len(r.res.Artifacts))
		return skipStep{"dry run"}
	}
	if r.Confirm != nil && !r.Confirm(fmt.Sprintf("Publish %s?", r.res.Version)) {
		return halt{"publish declined"}
	}
	if err := r.Builder.Configure(r.credential); err != nil {
		return err
	}
	r.credential = ""
	return r.Builder.Publish(ctx, r.res.Version)
}

func short(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
