// Package trigger models the events that start a release run and decides
// which of them are eligible and which may create a tag.
package trigger

import (
	"fmt"
	"os"
	"strings"

	"github.com/gobwas/glob"
	"github.com/tidwall/gjson"
)

// Kind is the type of event that started a run.
type Kind string

const (
	// KindPush is a push to a branch.
	KindPush Kind = "push"
	// KindTag is a push of a tag.
	KindTag Kind = "tag"
	// KindManual is a manual dispatch.
	KindManual Kind = "manual"
)

const zeroSHA = "0000000000000000000000000000000000000000"

// Event describes what started the run. Before and After are the commit
// range of a push when known.
type Event struct {
	Kind   Kind
	Branch string
	Tag    string
	Before string
	After  string
}

func (e Event) String() string {
	switch e.Kind {
	case KindPush:
		return "push to " + e.Branch
	case KindTag:
		return "tag " + e.Tag
	default:
		if e.Branch != "" {
			return "manual dispatch on " + e.Branch
		}
		return "manual dispatch"
	}
}

// Parse builds an Event from a kind name and a ref. ref may be a full ref
// (refs/heads/main, refs/tags/1.2.3) or a bare branch or tag name.
func Parse(kind, ref string) (Event, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(kind)))
	switch k {
	case "workflow_dispatch", "dispatch":
		k = KindManual
	}
	name := ref
	isTagRef := false
	switch {
	case strings.HasPrefix(ref, "refs/heads/"):
		name = strings.TrimPrefix(ref, "refs/heads/")
	case strings.HasPrefix(ref, "refs/tags/"):
		name = strings.TrimPrefix(ref, "refs/tags/")
		isTagRef = true
	}
	if k == KindPush && isTagRef {
		k = KindTag
	}
	switch k {
	case KindPush:
		if name == "" {
			return Event{}, fmt.Errorf("push event needs a branch ref")
		}
		return Event{Kind: KindPush, Branch: name}, nil
	case KindTag:
		if name == "" {
			return Event{}, fmt.Errorf("tag event needs a tag ref")
		}
		return Event{Kind: KindTag, Tag: name}, nil
	case KindManual:
		return Event{Kind: KindManual, Branch: name}, nil
	}
	return Event{}, fmt.Errorf("unknown event kind %q (want push, tag or manual)", kind)
}

// FromEnv reads the event from the GitHub Actions environment. getenv is
// usually os.Getenv.
func FromEnv(getenv func(string) string) (Event, error) {
	name := getenv("GITHUB_EVENT_NAME")
	if name == "" {
		return Event{}, fmt.Errorf("GITHUB_EVENT_NAME is not set; pass --event and --ref")
	}
	ref := getenv("GITHUB_REF")
	if ref == "" {
		ref = getenv("GITHUB_REF_NAME")
		if getenv("GITHUB_REF_TYPE") == "tag" {
			ref = "refs/tags/" + ref
		} else if ref != "" {
			ref = "refs/heads/" + ref
		}
	}
	kind := name
	if name != "push" && name != "workflow_dispatch" {
		return Event{}, fmt.Errorf("unsupported event %q", name)
	}
	ev, err := Parse(kind, ref)
	if err != nil {
		return Event{}, err
	}
	if ev.Kind == KindPush {
		if path := getenv("GITHUB_EVENT_PATH"); path != "" {
			b, err := os.ReadFile(path)
			if err != nil {
				return Event{}, fmt.Errorf("read event payload: %w", err)
			}
			if !gjson.ValidBytes(b) {
				return Event{}, fmt.Errorf("event payload %s is not valid JSON", path)
			}
			ev.Before = gjson.GetBytes(b, "before").String()
			ev.After = gjson.GetBytes(b, "after").String()
		}
	}
	return ev, nil
}

// HasRange reports whether the push carries a usable commit range.
func (e Event) HasRange() bool {
	return e.Before != "" && e.After != "" && e.Before != zeroSHA
}

// Filter holds the trigger conditions.
type Filter struct {
	MainBranch string
	tagPattern glob.Glob
	paths      []glob.Glob
}

// NewFilter compiles the tag pattern and watched path patterns.
func NewFilter(mainBranch, tagPattern string, paths []string) (*Filter, error) {
	tp, err := glob.Compile(tagPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid tag pattern %q: %w", tagPattern, err)
	}
	f := &Filter{MainBranch: mainBranch, tagPattern: tp}
	for _, p := range paths {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", p, err)
		}
		f.paths = append(f.paths, g)
	}
	return f, nil
}

// WatchesPaths reports whether pushes are filtered by changed paths.
func (f *Filter) WatchesPaths() bool { return len(f.paths) > 0 }

// Accepts reports whether ev should start a release. changed is the list of
// paths touched by a push, or nil when unknown; an unknown change set is
// accepted. reason explains a rejection.
func (f *Filter) Accepts(ev Event, changed []string) (ok bool, reason string) {
	switch ev.Kind {
	case KindManual:
		return true, ""
	case KindTag:
		if !f.tagPattern.Match(ev.Tag) {
			return false, fmt.Sprintf("tag %q does not match the release tag pattern", ev.Tag)
		}
		return true, ""
	case KindPush:
		if ev.Branch != f.MainBranch {
			return false, fmt.Sprintf("push to %q, releases are cut from %q", ev.Branch, f.MainBranch)
		}
		if changed == nil || len(f.paths) == 0 {
			return true, ""
		}
		for _, c := range changed {
			for _, g := range f.paths {
				if g.Match(c) {
					return true, ""
				}
			}
		}
		return false, "push did not change the version manifest"
	}
	return false, fmt.Sprintf("unknown event kind %q", ev.Kind)
}

// ShouldCreateTag reports whether this run may create the release tag: only
// a direct push to the main branch, and only when the tag is absent.
func ShouldCreateTag(ev Event, mainBranch string, tagExists bool) bool {
	return ev.Kind == KindPush && ev.Branch == mainBranch && !tagExists
}
