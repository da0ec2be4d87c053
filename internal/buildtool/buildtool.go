// Package buildtool drives the project's build manager (poetry by default)
// through configurable command templates.
package buildtool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/VoxDroid/tagship/internal/config"
	"github.com/VoxDroid/tagship/internal/executor"
	"github.com/VoxDroid/tagship/internal/params"
)

// ErrNoArtifacts is returned when a build leaves nothing to publish.
var ErrNoArtifacts = errors.New("build produced no distribution artifacts")

// ErrNotConfigured is returned by Publish before Configure was called.
var ErrNotConfigured = errors.New("publish credential not configured")

// artifactPatterns are the distribution files a Python build produces.
var artifactPatterns = []string{"*.tar.gz", "*.whl"}

// Tool runs build-manager commands in a project directory.
type Tool struct {
	runner        executor.Runner
	dir           string
	cfg           config.Build
	repository    string
	stdout        io.Writer
	stderr        io.Writer
	credential    string
	credentialEnv string
}

// New returns a Tool for the project in dir. Command output is streamed to
// stdout and stderr.
func New(cfg config.Build, repository, dir string, r executor.Runner, stdout, stderr io.Writer) *Tool {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &Tool{
		runner:        r,
		dir:           dir,
		cfg:           cfg,
		repository:    repository,
		stdout:        stdout,
		stderr:        stderr,
		credentialEnv: cfg.CredentialEnv,
	}
}

// DistDir returns the absolute-or-relative artifact directory.
func (t *Tool) DistDir() string {
	if filepath.IsAbs(t.cfg.DistDir) {
		return t.cfg.DistDir
	}
	return filepath.Join(t.dir, t.cfg.DistDir)
}

// Setup verifies the build manager is available.
func (t *Tool) Setup(ctx context.Context) error {
	return t.run(ctx, "setup", t.cfg.SetupCommand, nil, t.stdout, nil)
}

// Version asks the build manager for the declared version. The last
// non-empty output line is the version.
func (t *Tool) Version(ctx context.Context) (string, error) {
	var out bytes.Buffer
	if err := t.run(ctx, "version", t.cfg.VersionCommand, nil, &out, nil); err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	v := strings.TrimSpace(lines[len(lines)-1])
	if v == "" {
		return "", errors.New("version command printed nothing")
	}
	return v, nil
}

// Build clears the dist directory, builds and returns the artifact paths.
func (t *Tool) Build(ctx context.Context, version string) ([]string, error) {
	dist := t.DistDir()
	if err := os.RemoveAll(dist); err != nil {
		return nil, fmt.Errorf("clear %s: %w", dist, err)
	}
	if err := t.run(ctx, "build", t.cfg.BuildCommand, t.vars(version), t.stdout, nil); err != nil {
		return nil, err
	}
	return Artifacts(dist)
}

// Configure hands the publish credential to the tool. It is only ever
// passed to the publish command through the environment.
func (t *Tool) Configure(credential string) error {
	if strings.TrimSpace(credential) == "" {
		return errors.New("empty publish credential")
	}
	t.credential = credential
	return nil
}

// Publish uploads the built artifacts.
func (t *Tool) Publish(ctx context.Context, version string) error {
	if t.credential == "" {
		return ErrNotConfigured
	}
	extra := []string{t.credentialEnv + "=" + t.credential}
	return t.run(ctx, "publish", t.cfg.PublishCommand, t.vars(version), t.stdout, extra)
}

func (t *Tool) vars(version string) map[string]string {
	return map[string]string{
		"version":    version,
		"dist":       t.DistDir(),
		"repository": t.repository,
	}
}

func (t *Tool) run(ctx context.Context, step, tmpl string, vars map[string]string, stdout io.Writer, extra []string) error {
	if vars == nil {
		vars = t.vars("")
	}
	line, err := params.ApplyQuoted(tmpl, vars)
	if err != nil {
		return fmt.Errorf("%s command: %w", step, err)
	}
	c := executor.Command{Line: line, Dir: t.dir, Env: append(t.env(), extra...)}
	if err := t.runner.Execute(ctx, c, stdout, t.stderr); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

func (t *Tool) env() []string {
	keys := make([]string, 0, len(t.cfg.Env))
	for k := range t.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+t.cfg.Env[k])
	}
	return out
}

// Artifacts lists the distribution files in dist. An empty result is
// ErrNoArtifacts.
func Artifacts(dist string) ([]string, error) {
	var out []string
	for _, p := range artifactPatterns {
		m, err := filepath.Glob(filepath.Join(dist, p))
		if err != nil {
			return nil, err
		}
		out = append(out, m...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoArtifacts, dist)
	}
	sort.Strings(out)
	return out, nil
}
