package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "pyproject.toml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return p
}

func TestReadPoetry(t *testing.T) {
	p := writeManifest(t, `
[tool.poetry]
name = "cyberdrop-dl"
version = "5.7.2"
description = "Bulk downloader"

[tool.poetry.dependencies]
python = ">=3.11,<4"
`)
	m, err := Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if m.Name != "cyberdrop-dl" || m.Version != "5.7.2" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
}

func TestReadProjectTable(t *testing.T) {
	p := writeManifest(t, `
[project]
name = "pkg"
version = "1.2.3"
`)
	m, err := Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if m.Version != "1.2.3" {
		t.Fatalf("version = %q", m.Version)
	}
}

func TestReadPoetryWinsOverProject(t *testing.T) {
	p := writeManifest(t, `
[project]
name = "pkg"
version = "0.0.0"

[tool.poetry]
version = "2.0.0"
`)
	m, err := Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if m.Version != "2.0.0" || m.Name != "pkg" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
}

func TestReadNoVersion(t *testing.T) {
	p := writeManifest(t, "[project]\nname = \"pkg\"\n")
	if _, err := Read(p); !errors.Is(err, ErrNoVersion) {
		t.Fatalf("expected ErrNoVersion, got %v", err)
	}
}

func TestReadMalformed(t *testing.T) {
	p := writeManifest(t, "[project\nversion = ")
	if _, err := Read(p); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidRelease(t *testing.T) {
	good := []string{"0.0.1", "1.2.3", "10.20.30", "2024.1.0"}
	for _, v := range good {
		if !ValidRelease(v) {
			t.Fatalf("expected %q to be a release", v)
		}
	}
	bad := []string{"1.2.3-rc1", "1.2.3rc1", "1.2", "v1.2.3", "1.2.3.4", "1.2.3+local", " 1.2.3", "1.2.3\n", "a.b.c", ""}
	for _, v := range bad {
		if ValidRelease(v) {
			t.Fatalf("expected %q to be rejected", v)
		}
	}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.3", 0},
		{"1.10.0", "1.9.9", 1},
		{"0.9.0", "1.0.0", -1},
	}
	for _, c := range cases {
		got, err := Compare(c.a, c.b)
		if err != nil {
			t.Fatalf("Compare(%q, %q): %v", c.a, c.b, err)
		}
		if got != c.want {
			t.Fatalf("Compare(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestLatest(t *testing.T) {
	got, ok := Latest([]string{"1.2.0", "v9.9.9", "1.10.0", "2.0.0rc1", "1.9.5"})
	if !ok || got != "1.10.0" {
		t.Fatalf("Latest = (%q, %v), want (1.10.0, true)", got, ok)
	}
	if _, ok := Latest([]string{"nightly", "v1"}); ok {
		t.Fatalf("expected no release tags")
	}
}
