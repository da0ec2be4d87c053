// Package mask keeps short-lived credentials out of log output. Secrets are
// registered with a Masker as soon as they are received; every writer the
// Masker hands out replaces them, and anything shaped like a PyPI token or a
// JWT, with a placeholder.
package mask

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/google/osv-scalibr/veles"
	"github.com/google/osv-scalibr/veles/secrets/jwt"
	"github.com/google/osv-scalibr/veles/secrets/pypiapitoken"
)

// Placeholder replaces every masked secret.
const Placeholder = "***"

// Masker registers secrets and redacts them from output.
type Masker struct {
	mu        sync.Mutex
	secrets   []string
	commands  io.Writer
	detectors []veles.Detector
	engine    *veles.DetectionEngine
}

// New returns a Masker. When commands is non-nil, every registered secret is
// announced on it as a GitHub Actions `::add-mask::` workflow command so the
// runner redacts it as well. commands must be the raw stdout, not a writer
// obtained from this Masker.
func New(commands io.Writer) (*Masker, error) {
	ds := []veles.Detector{pypiapitoken.NewDetector(), jwt.NewDetector()}
	engine, err := veles.NewDetectionEngine(ds)
	if err != nil {
		return nil, fmt.Errorf("mask: create detection engine: %w", err)
	}
	return &Masker{commands: commands, detectors: ds, engine: engine}, nil
}

// Mask registers secret. Empty and already registered values are ignored.
func (m *Masker) Mask(secret string) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.secrets {
		if s == secret {
			return
		}
	}
	m.secrets = append(m.secrets, secret)
	// longest first so a secret containing another is replaced whole
	sort.Slice(m.secrets, func(i, j int) bool { return len(m.secrets[i]) > len(m.secrets[j]) })
	if m.commands != nil {
		_, _ = fmt.Fprintf(m.commands, "::add-mask::%s\n", secret)
	}
}

// Redact returns s with registered and detected secrets replaced.
func (m *Masker) Redact(s string) string {
	return string(m.redact([]byte(s)))
}

func (m *Masker) redact(b []byte) []byte {
	m.mu.Lock()
	secrets := append([]string(nil), m.secrets...)
	m.mu.Unlock()

	for _, s := range secrets {
		b = bytes.ReplaceAll(b, []byte(s), []byte(Placeholder))
	}
	for _, d := range m.detectors {
		found, _ := d.Detect(b)
		for _, f := range found {
			if v := secretValue(f); v != "" {
				b = bytes.ReplaceAll(b, []byte(v), []byte(Placeholder))
			}
		}
	}
	return b
}

// Finding is a token-shaped secret found by Scan.
type Finding struct {
	Kind  string
	Value string
}

// Scan reads r and reports every PyPI token or JWT it contains.
func (m *Masker) Scan(ctx context.Context, r io.Reader) ([]Finding, error) {
	found, err := m.engine.Detect(ctx, r)
	if err != nil {
		return nil, err
	}
	var out []Finding
	for _, f := range found {
		switch s := f.(type) {
		case pypiapitoken.PyPIAPIToken:
			out = append(out, Finding{Kind: "pypi-token", Value: s.Token})
		case jwt.Token:
			out = append(out, Finding{Kind: "jwt", Value: s.Value})
		}
	}
	return out, nil
}

func secretValue(s veles.Secret) string {
	switch v := s.(type) {
	case pypiapitoken.PyPIAPIToken:
		return v.Token
	case jwt.Token:
		return v.Value
	}
	return ""
}

// Writer is a line-buffered io.Writer that redacts each complete line before
// passing it on. Call Flush to emit a trailing partial line.
type Writer struct {
	m   *Masker
	mu  sync.Mutex
	w   io.Writer
	buf []byte
}

// Writer wraps w.
func (m *Masker) Writer(w io.Writer) *Writer {
	return &Writer{m: m, w: w}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := w.m.redact(append([]byte(nil), w.buf[:i+1]...))
		w.buf = w.buf[i+1:]
		if _, err := w.w.Write(line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush writes any buffered partial line.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) == 0 {
		return nil
	}
	line := w.m.redact(w.buf)
	w.buf = nil
	_, err := w.w.Write(line)
	return err
}
