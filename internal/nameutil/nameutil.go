package nameutil

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ValidateTagName checks that name can be used as a git tag. It applies the
// rules of `git check-ref-format` to a single ref component. It does NOT
// mutate the input.
func ValidateTagName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("invalid tag: name cannot be empty")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("invalid tag: contains invalid encoding")
	}
	for _, r := range name {
		if unicode.IsControl(r) || r == 0x7f {
			return fmt.Errorf("invalid tag: contains control character U+%04X (%q)", r, r)
		}
		if unicode.IsSpace(r) {
			return fmt.Errorf("invalid tag: contains whitespace")
		}
		switch r {
		case '~', '^', ':', '?', '*', '[', '\\':
			return fmt.Errorf("invalid tag: contains %q", r)
		}
	}
	switch {
	case strings.HasPrefix(name, "-"), strings.HasPrefix(name, "."):
		return fmt.Errorf("invalid tag: cannot start with %q", name[:1])
	case strings.HasSuffix(name, "."), strings.HasSuffix(name, "/"), strings.HasSuffix(name, ".lock"):
		return fmt.Errorf("invalid tag: bad suffix in %q", name)
	case strings.Contains(name, ".."), strings.Contains(name, "@{"), strings.Contains(name, "//"):
		return fmt.Errorf("invalid tag: %q contains a forbidden sequence", name)
	case name == "@":
		return fmt.Errorf("invalid tag: %q is reserved", name)
	}
	return nil
}

// SanitizeName removes common invisible/control characters and returns the
// sanitized string and a boolean indicating whether any change was made.
// It removes control characters, NULs, and zero-width characters commonly
// introduced by copy/paste (e.g., U+200B). Trimming of leading/trailing
// whitespace is also performed.
func SanitizeName(name string) (string, bool) {
	if name == "" {
		return name, false
	}
	runes := []rune(name)
	out := make([]rune, 0, len(runes))
	changed := false
	for _, r := range runes {
		if unicode.IsControl(r) {
			changed = true
			continue
		}
		switch r {
		case '\u200B', '\u200C', '\u200D', '\uFEFF':
			changed = true
			continue
		}
		out = append(out, r)
	}
	res := strings.TrimSpace(string(out))
	if res != name {
		changed = true
	}
	return res, changed
}
