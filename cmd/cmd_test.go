package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/VoxDroid/tagship/internal/config"
)

const leakedToken = `pypi-AgEIc433aS5vcmcffDgyZDA0MzFkLWMzZjEtNDlhNy1iOWQwLfflMjE5NmNkMjhjNQACKlszLCI22UBiYzQ2Yi05YjNhhTQ5NmItYWIxMHYhMGI3MmEyOWI5MzYiXQAABiCJBI80LFFz0JvS6UIj2LzgV9N-BQnBAD2123Dyu9xs33`

// execute runs the root command with args and getenv backed by env.
func execute(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	old := getenv
	getenv = func(k string) string { return env[k] }
	t.Cleanup(func() { getenv = old })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// project creates a committed Python project declaring version.
func project(t *testing.T, version string) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	files := map[string]string{
		"pyproject.toml": "[tool.poetry]\nname = \"demo\"\nversion = \"" + version + "\"\n",
		config.FileName:  "build:\n  setup_command: \"echo setup\"\n",
	}
	w, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := w.Add(name); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if _, err := w.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return dir, repo
}

func ledgerEnv(t *testing.T) map[string]string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.EnvTagshipHome, home)
	return map[string]string{config.EnvTagshipLedger: filepath.Join(home, "ledger.db")}
}

func TestRunDryRunPlansAndRecords(t *testing.T) {
	dir, repo := project(t, "1.2.3")
	env := ledgerEnv(t)

	out, err := execute(t, env, "run", "-C", dir, "--event", "push", "--ref", "refs/heads/main", "--dry-run")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	for _, want := range []string{"version: 1.2.3", "outcome: planned", "setup"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if _, err := repo.Tag("1.2.3"); err == nil {
		t.Fatalf("dry run created a tag")
	}

	m := regexp.MustCompile(`(?m)^run:\s+(\S+)$`).FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no run id in output:\n%s", out)
	}
	id := m[1]

	out, err = execute(t, env, "history", "-C", dir)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "planned (dry run)") {
		t.Fatalf("history missing run %s:\n%s", id, out)
	}

	out, err = execute(t, env, "history", "-C", dir, id)
	if err != nil {
		t.Fatalf("history %s: %v", id, err)
	}
	if !strings.Contains(out, "version:   1.2.3") || !strings.Contains(out, "event:     push main") {
		t.Fatalf("unexpected run details:\n%s", out)
	}
}

func TestRunWithoutLedgerLocation(t *testing.T) {
	dir, _ := project(t, "1.2.3")
	t.Setenv(config.EnvTagshipHome, "")
	t.Setenv(config.EnvTagshipLedger, "")
	t.Setenv("HOME", "")

	out, err := execute(t, nil, "run", "-C", dir, "--event", "push", "--ref", "refs/heads/main", "--dry-run")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "run ledger unavailable") || !strings.Contains(out, "outcome: planned") {
		t.Fatalf("expected a ledger warning and a planned release:\n%s", out)
	}
}

func TestRunPreReleaseEndsSuccessfully(t *testing.T) {
	dir, repo := project(t, "1.3.0rc1")
	env := ledgerEnv(t)

	out, err := execute(t, env, "run", "-C", dir, "--event", "push", "--ref", "refs/heads/main", "--dry-run")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "outcome: skipped") {
		t.Fatalf("expected skipped outcome:\n%s", out)
	}
	if _, err := repo.Tag("1.3.0rc1"); err == nil {
		t.Fatalf("pre-release version was tagged")
	}
}

func TestRunIneligibleBranch(t *testing.T) {
	dir, _ := project(t, "1.2.3")
	env := ledgerEnv(t)

	out, err := execute(t, env, "run", "-C", dir, "--event", "push", "--ref", "refs/heads/feature", "--dry-run")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "outcome: skipped") {
		t.Fatalf("expected skipped outcome:\n%s", out)
	}
	if strings.Contains(out, "version:") {
		t.Fatalf("version read for an ineligible event:\n%s", out)
	}
}

func TestRunRejectsUnknownEvent(t *testing.T) {
	dir, _ := project(t, "1.2.3")
	env := ledgerEnv(t)

	if _, err := execute(t, env, "run", "-C", dir, "--event", "release", "--ref", "main", "--dry-run"); err == nil {
		t.Fatalf("expected error for unknown event kind")
	}
}

func TestHistoryUnknownRun(t *testing.T) {
	dir := t.TempDir()
	env := ledgerEnv(t)
	if _, err := execute(t, env, "history", "-C", dir, "00000000-0000-0000-0000-000000000000"); err == nil {
		t.Fatalf("expected error for unknown run")
	}
}

func TestManifestCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pyproject.toml")
	if err := os.WriteFile(path, []byte("[project]\nname = \"demo\"\nversion = \"2.0.0\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, nil, "manifest", "--strict=true", path)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if strings.TrimSpace(out) != "2.0.0" {
		t.Fatalf("manifest output = %q", out)
	}

	if err := os.WriteFile(path, []byte("[project]\nname = \"demo\"\nversion = \"2.0.0b1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, nil, "manifest", "--strict=false", path); err != nil {
		t.Fatalf("manifest without --strict: %v", err)
	}
	if _, err := execute(t, nil, "manifest", "--strict=true", path); err == nil {
		t.Fatalf("expected --strict to reject 2.0.0b1")
	}
}

func TestManifestFromConfiguredDir(t *testing.T) {
	dir, _ := project(t, "0.4.1")
	out, err := execute(t, nil, "manifest", "--strict=false", "-C", dir)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if strings.TrimSpace(out) != "0.4.1" {
		t.Fatalf("manifest output = %q", out)
	}
}

func TestScanReportsLeakedToken(t *testing.T) {
	dir := t.TempDir()
	leaky := filepath.Join(dir, "leaky.log")
	clean := filepath.Join(dir, "clean.log")
	if err := os.WriteFile(leaky, []byte("uploading with "+leakedToken+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(clean, []byte("Publishing demo (1.2.3) to PyPI\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, nil, "scan", leaky)
	if err == nil {
		t.Fatalf("expected scan to fail on a leaked token")
	}
	if !strings.Contains(out, "pypi-token") {
		t.Fatalf("finding not reported:\n%s", out)
	}
	if strings.Contains(out, leakedToken) {
		t.Fatalf("scan repeated the token:\n%s", out)
	}

	out, err = execute(t, nil, "scan", clean)
	if err != nil {
		t.Fatalf("scan clean log: %v", err)
	}
	if !strings.Contains(out, "no credentials found") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
