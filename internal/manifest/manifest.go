// Package manifest reads the declared package name and version from a
// pyproject.toml and decides whether a version is publishable.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"deps.dev/util/semver"
	"github.com/BurntSushi/toml"
)

// ErrNoVersion is returned when the manifest declares no version.
var ErrNoVersion = errors.New("manifest declares no version")

var releaseRe = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)

// Manifest holds the fields tagship needs from pyproject.toml.
type Manifest struct {
	Path    string
	Name    string
	Version string
}

type pyProject struct {
	Project struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// Read parses the manifest at path. [tool.poetry] takes precedence over
// [project], matching how poetry itself resolves the version.
func Read(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var p pyProject
	if _, err := toml.NewDecoder(f).Decode(&p); err != nil {
		return Manifest{}, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	m := Manifest{
		Path:    path,
		Name:    firstNonEmpty(p.Tool.Poetry.Name, p.Project.Name),
		Version: strings.TrimSpace(firstNonEmpty(p.Tool.Poetry.Version, p.Project.Version)),
	}
	if m.Version == "" {
		return m, fmt.Errorf("%s: %w", path, ErrNoVersion)
	}
	return m, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ValidRelease reports whether v is a plain MAJOR.MINOR.PATCH release.
// Pre-releases, local versions and anything else are rejected.
func ValidRelease(v string) bool {
	return releaseRe.MatchString(v)
}

// Compare orders two versions using PyPI version semantics.
func Compare(a, b string) (int, error) {
	va, err := semver.PyPI.Parse(a)
	if err != nil {
		return 0, fmt.Errorf("parse version %q: %w", a, err)
	}
	vb, err := semver.PyPI.Parse(b)
	if err != nil {
		return 0, fmt.Errorf("parse version %q: %w", b, err)
	}
	return va.Compare(vb), nil
}

// Latest returns the highest release version among tags. Tags that are not
// plain releases are ignored. ok is false when there are none.
func Latest(tags []string) (latest string, ok bool) {
	var best *semver.Version
	for _, t := range tags {
		if !ValidRelease(t) {
			continue
		}
		v, err := semver.PyPI.Parse(t)
		if err != nil {
			continue
		}
		if best == nil || v.Compare(best) > 0 {
			best, latest = v, t
		}
	}
	return latest, best != nil
}
