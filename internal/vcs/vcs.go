// Package vcs performs the version-control operations of a release on a git
// working copy: tag lookup, creation and push, tag checkout and change
// detection.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/VoxDroid/tagship/internal/nameutil"
)

// ErrShallow is returned by callers that require full history.
var ErrShallow = errors.New("repository is a shallow clone; full history is required")

// Repository is an open git working copy.
type Repository struct {
	repo  *git.Repository
	token string
}

// Option configures Open.
type Option func(*Repository)

// WithToken authenticates HTTP pushes and fetches with token.
func WithToken(token string) Option {
	return func(r *Repository) { r.token = token }
}

// TagOptions controls tag creation. A nil *TagOptions creates a lightweight
// tag.
type TagOptions struct {
	TaggerName  string
	TaggerEmail string
	Message     string
}

// Open opens the repository containing dir.
func Open(dir string, opts ...Option) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	r := &Repository{repo: repo}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// IsShallow reports whether the clone is missing history.
func (r *Repository) IsShallow() (bool, error) {
	commits, err := r.repo.Storer.Shallow()
	if err != nil {
		return false, fmt.Errorf("read shallow state: %w", err)
	}
	return len(commits) > 0, nil
}

// Head returns the commit HEAD points to.
func (r *Repository) Head() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// TagExists reports whether a local tag named name exists.
func (r *Repository) TagExists(name string) (bool, error) {
	_, err := r.repo.Tag(name)
	if errors.Is(err, git.ErrTagNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up tag %s: %w", name, err)
	}
	return true, nil
}

// Tags returns the names of all local tags, sorted.
func (r *Repository) Tags() ([]string, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	var out []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		out = append(out, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// CreateTag creates tag name at HEAD. An existing tag is an error.
func (r *Repository) CreateTag(name string, opts *TagOptions) (string, error) {
	if err := nameutil.ValidateTagName(name); err != nil {
		return "", err
	}
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	var create *git.CreateTagOptions
	if opts != nil {
		msg := opts.Message
		if strings.TrimSpace(msg) == "" {
			msg = name
		}
		create = &git.CreateTagOptions{
			Tagger: &object.Signature{
				Name:  opts.TaggerName,
				Email: opts.TaggerEmail,
				When:  time.Now(),
			},
			Message: msg,
		}
	}
	if _, err := r.repo.CreateTag(name, head.Hash(), create); err != nil {
		return "", fmt.Errorf("create tag %s: %w", name, err)
	}
	return head.Hash().String(), nil
}

// PushTag pushes tag name to remote. A remote that already has the tag at
// the same commit is not an error.
func (r *Repository) PushTag(ctx context.Context, remote, name string) error {
	spec := gitconfig.RefSpec(fmt.Sprintf("refs/tags/%s:refs/tags/%s", name, name))
	auth, err := r.auth(remote)
	if err != nil {
		return err
	}
	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []gitconfig.RefSpec{spec},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push tag %s to %s: %w", name, remote, err)
	}
	return nil
}

// FetchTags fetches all tags from remote.
func (r *Repository) FetchTags(ctx context.Context, remote string) error {
	auth, err := r.auth(remote)
	if err != nil {
		return err
	}
	err = r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remote,
		RefSpecs:   []gitconfig.RefSpec{"+refs/tags/*:refs/tags/*"},
		Tags:       git.AllTags,
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch tags from %s: %w", remote, err)
	}
	return nil
}

// ResolveTag returns the commit tag name points to, peeling annotated tags.
func (r *Repository) ResolveTag(name string) (string, error) {
	ref, err := r.repo.Tag(name)
	if err != nil {
		return "", fmt.Errorf("look up tag %s: %w", name, err)
	}
	tag, err := r.repo.TagObject(ref.Hash())
	switch {
	case err == nil:
		c, err := tag.Commit()
		if err != nil {
			return "", fmt.Errorf("peel tag %s: %w", name, err)
		}
		return c.Hash.String(), nil
	case errors.Is(err, plumbing.ErrObjectNotFound):
		return ref.Hash().String(), nil
	default:
		return "", fmt.Errorf("read tag %s: %w", name, err)
	}
}

// CheckoutTag checks out the commit tag name points to, leaving HEAD
// detached.
func (r *Repository) CheckoutTag(name string) (string, error) {
	commit, err := r.ResolveTag(name)
	if err != nil {
		return "", err
	}
	w, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}
	if err := w.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(commit)}); err != nil {
		return "", fmt.Errorf("checkout %s: %w", name, err)
	}
	return commit, nil
}

// ChangedFiles returns the paths that differ between commits from and to.
func (r *Repository) ChangedFiles(from, to string) ([]string, error) {
	a, err := r.tree(from)
	if err != nil {
		return nil, err
	}
	b, err := r.tree(to)
	if err != nil {
		return nil, err
	}
	changes, err := object.DiffTree(a, b)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", from, to, err)
	}
	seen := map[string]bool{}
	var out []string
	for _, ch := range changes {
		for _, p := range []string{ch.From.Name, ch.To.Name} {
			if p != "" && !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *Repository) tree(rev string) (*object.Tree, error) {
	c, err := r.repo.CommitObject(plumbing.NewHash(rev))
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", rev, err)
	}
	t, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("read tree of %s: %w", rev, err)
	}
	return t, nil
}

// auth returns token credentials for HTTP remotes and nil otherwise.
func (r *Repository) auth(remote string) (transport.AuthMethod, error) {
	if r.token == "" {
		return nil, nil
	}
	rem, err := r.repo.Remote(remote)
	if err != nil {
		return nil, fmt.Errorf("remote %s: %w", remote, err)
	}
	urls := rem.Config().URLs
	if len(urls) == 0 {
		return nil, fmt.Errorf("remote %s has no URL", remote)
	}
	ep, err := transport.NewEndpoint(urls[0])
	if err != nil {
		return nil, fmt.Errorf("remote %s: %w", remote, err)
	}
	if ep.Protocol != "http" && ep.Protocol != "https" {
		return nil, nil
	}
	return &http.BasicAuth{Username: "x-access-token", Password: r.token}, nil
}
