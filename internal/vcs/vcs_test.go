package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-cmp/cmp"
)

func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	return dir, repo
}

func commitFile(t *testing.T, repo *git.Repository, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	w, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if _, err := w.Add(name); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := w.Commit("change "+name, &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return h.String()
}

func TestTagLifecycle(t *testing.T) {
	dir, repo := initRepo(t)
	first := commitFile(t, repo, dir, "pyproject.toml", "version = \"1.0.0\"\n")

	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	shallow, err := r.IsShallow()
	if err != nil || shallow {
		t.Fatalf("IsShallow = %v, %v", shallow, err)
	}
	head, err := r.Head()
	if err != nil || head != first {
		t.Fatalf("Head = %q, %v; want %q", head, err, first)
	}

	exists, err := r.TagExists("1.0.0")
	if err != nil || exists {
		t.Fatalf("TagExists before create = %v, %v", exists, err)
	}
	at, err := r.CreateTag("1.0.0", nil)
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if at != first {
		t.Fatalf("tag created at %s, want %s", at, first)
	}
	exists, err = r.TagExists("1.0.0")
	if err != nil || !exists {
		t.Fatalf("TagExists after create = %v, %v", exists, err)
	}
	if _, err := r.CreateTag("1.0.0", nil); err == nil {
		t.Fatalf("expected error creating existing tag")
	}

	tags, err := r.Tags()
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if diff := cmp.Diff([]string{"1.0.0"}, tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateTagRejectsInvalidName(t *testing.T) {
	dir, repo := initRepo(t)
	commitFile(t, repo, dir, "a.txt", "a")
	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, name := range []string{"bad name", "1.0..0", "x.lock", ""} {
		if _, err := r.CreateTag(name, nil); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestCheckoutAnnotatedTagAfterBranchMoves(t *testing.T) {
	dir, repo := initRepo(t)
	tagged := commitFile(t, repo, dir, "pyproject.toml", "version = \"1.2.0\"\n")

	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.CreateTag("1.2.0", &TagOptions{TaggerName: "Release Bot", TaggerEmail: "bot@example.com", Message: "Release 1.2.0"}); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	later := commitFile(t, repo, dir, "README.md", "later")
	if later == tagged {
		t.Fatalf("expected a new commit")
	}

	resolved, err := r.ResolveTag("1.2.0")
	if err != nil || resolved != tagged {
		t.Fatalf("ResolveTag = %q, %v; want %q", resolved, err, tagged)
	}
	got, err := r.CheckoutTag("1.2.0")
	if err != nil {
		t.Fatalf("CheckoutTag: %v", err)
	}
	if got != tagged {
		t.Fatalf("checked out %s, want %s", got, tagged)
	}
	head, err := r.Head()
	if err != nil || head != tagged {
		t.Fatalf("HEAD = %q, %v; want %q", head, err, tagged)
	}
	if _, err := os.Stat(filepath.Join(dir, "README.md")); !os.IsNotExist(err) {
		t.Fatalf("README.md from later commit still present: %v", err)
	}
}

func TestChangedFiles(t *testing.T) {
	dir, repo := initRepo(t)
	a := commitFile(t, repo, dir, "pyproject.toml", "version = \"1.0.0\"\n")
	commitFile(t, repo, dir, "src/pkg/__init__.py", "")
	b := commitFile(t, repo, dir, "pyproject.toml", "version = \"1.0.1\"\n")

	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := r.ChangedFiles(a, b)
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	if diff := cmp.Diff([]string{"pyproject.toml", "src/pkg/__init__.py"}, got); diff != "" {
		t.Fatalf("changed files mismatch (-want +got):\n%s", diff)
	}
}

func TestPushAndFetchTags(t *testing.T) {
	if _, err := exec.LookPath("git-upload-pack"); err != nil {
		t.Skip("git transport binaries not available")
	}
	remoteDir := t.TempDir()
	if _, err := git.PlainInit(remoteDir, true); err != nil {
		t.Fatalf("init bare: %v", err)
	}
	dir, repo := initRepo(t)
	commitFile(t, repo, dir, "a.txt", "a")
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remoteDir}}); err != nil {
		t.Fatalf("CreateRemote: %v", err)
	}

	r, err := Open(dir, WithToken("ignored-for-file-remotes"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.CreateTag("0.1.0", nil); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	ctx := context.Background()
	if err := r.PushTag(ctx, "origin", "0.1.0"); err != nil {
		t.Fatalf("PushTag: %v", err)
	}
	if err := r.PushTag(ctx, "origin", "0.1.0"); err != nil {
		t.Fatalf("second PushTag should be a no-op: %v", err)
	}
	if err := r.FetchTags(ctx, "origin"); err != nil {
		t.Fatalf("FetchTags: %v", err)
	}

	bare, err := git.PlainOpen(remoteDir)
	if err != nil {
		t.Fatalf("open bare: %v", err)
	}
	if _, err := bare.Tag("0.1.0"); err != nil {
		t.Fatalf("tag not on remote: %v", err)
	}
}

func TestOpenMissingRepository(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatalf("expected error opening a non-repository")
	}
}
