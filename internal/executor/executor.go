// Package executor provides command execution functionality.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"
)

// stderrTail is how much of a failing command's stderr is kept for the error.
const stderrTail = 2048

// Command is a single command line to run. Env entries (KEY=VALUE) are added
// to the current process environment.
type Command struct {
	Line string
	Dir  string
	Env  []string
}

// Runner is an interface for executing commands. It allows tests to inject
// fake implementations without running real processes.
type Runner interface {
	Execute(ctx context.Context, c Command, stdout io.Writer, stderr io.Writer) error
}

// Executor runs command lines directly, without a shell, so arguments are
// never re-interpreted.
type Executor struct {
	DryRun  bool
	Verbose bool
}

// New returns a Runner backed by the real Executor implementation.
func New(dry, verbose bool) Runner {
	return &Executor{DryRun: dry, Verbose: verbose}
}

// Execute sanitizes and validates the command line, splits it into argv
// using shell quoting rules and runs it, streaming stdout and stderr to the
// provided writers.
func (e *Executor) Execute(ctx context.Context, c Command, stdout io.Writer, stderr io.Writer) error {
	line, err := validateAndSanitize(c.Line)
	if err != nil {
		return err
	}
	args, err := SplitArgs(line)
	if err != nil {
		return err
	}

	if handled := e.handleDryRunIfNeeded(line, stdout); handled {
		return nil
	}

	if _, err := exec.LookPath(args[0]); err != nil {
		return fmt.Errorf("executable not found in PATH: %s", args[0])
	}

	if stderr == nil {
		stderr = io.Discard
	}
	tail := &tailBuffer{max: stderrTail}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, tail)
	if err := cmd.Run(); err != nil {
		return checkExecutionError(err, tail.String(), args)
	}
	return nil
}

func (e *Executor) handleDryRunIfNeeded(command string, stdout io.Writer) bool {
	if e.DryRun {
		if e.Verbose {
			_, _ = fmt.Fprintf(stdout, "dry-run: %s\n", command)
		}
		return true
	}
	return false
}

// SplitArgs splits a command line into tokens respecting single and double
// quotes.
func SplitArgs(s string) ([]string, error) {
	toks, err := shellquote.Split(s)
	if err != nil {
		return nil, fmt.Errorf("invalid command %q: %w", s, err)
	}
	if len(toks) == 0 {
		return nil, errors.New("invalid command: empty")
	}
	return toks, nil
}

func checkExecutionError(err error, errTail string, args []string) error {
	errStr := strings.TrimSpace(errTail)
	if errStr != "" {
		return fmt.Errorf("command failed: %w (args=%q stderr=%q)", err, args, errStr)
	}
	return fmt.Errorf("command failed: %w (args=%q)", err, args)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	b   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.b = append(t.b, p...)
	if len(t.b) > t.max {
		t.b = t.b[len(t.b)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.b)
}

// sanitizeCommand normalizes common unicode characters that often get
// inserted by editors (e.g., smart quotes, NBSP, zero-width spaces) and
// converts them to their ASCII equivalents where sensible.
func sanitizeCommand(s string) string {
	r := strings.NewReplacer(
		"\u2018", "'", // left single quote
		"\u2019", "'", // right single quote
		"\u201C", "\"", // left double quote
		"\u201D", "\"", // right double quote
		"\u00A0", " ", // NO-BREAK SPACE
		"\u200B", "", // zero width space
		"\u200E", "", // left-to-right mark
		"\u200F", "", // right-to-left mark
	)
	rp := r.Replace(s)
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, rp)
}

// Sanitize normalizes common unicode characters and removes embedded
// null and other invisible runes. Exported so configuration loading can
// normalize command templates before validating them.
func Sanitize(s string) string {
	return sanitizeCommand(s)
}

func validateAndSanitize(command string) (string, error) {
	command = sanitizeCommand(command)
	if err := ValidateCommand(command); err != nil {
		return "", err
	}
	return command, nil
}

// ValidateCommand checks for remaining problematic characters that will
// cause command execution to fail (e.g., newlines and control characters)
// and returns an error describing the problem if one is found.
func ValidateCommand(s string) error {
	if strings.Contains(s, "\n") {
		return fmt.Errorf("invalid command: contains newline characters; each command must be a single line")
	}
	if strings.IndexFunc(s, func(r rune) bool { return r == 0 || (r < 32 && r != '\t') || r == 0x7f }) != -1 {
		return fmt.Errorf("invalid command: contains control characters; remove non-printable characters")
	}
	return nil
}
