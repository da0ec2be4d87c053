// Package params expands {{name}} placeholders in command and message
// templates.
package params

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"
)

var paramRe = regexp.MustCompile(`{{\s*([a-zA-Z0-9_.-]+)\s*}}`)

// FindParams returns a unique list of parameter names referenced in s in order of appearance.
func FindParams(s string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, m := range paramRe.FindAllStringSubmatch(s, -1) {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// ApplyParams replaces parameter placeholders in s using values from params.
// If a parameter is missing, an error is returned listing missing keys.
func ApplyParams(s string, params map[string]string) (string, error) {
	return apply(s, params, func(v string) string { return v })
}

// ApplyQuoted is ApplyParams for command lines: each value is shell-quoted
// so a value containing spaces stays one argument.
func ApplyQuoted(s string, params map[string]string) (string, error) {
	return apply(s, params, func(v string) string { return shellquote.Join(v) })
}

func apply(s string, params map[string]string, quote func(string) string) (string, error) {
	missing := map[string]bool{}
	result := paramRe.ReplaceAllStringFunc(s, func(match string) string {
		sub := paramRe.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		name := sub[1]
		if v, ok := params[name]; ok {
			return quote(v)
		}
		missing[name] = true
		return match
	})
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return result, fmt.Errorf("missing parameters: %s", strings.Join(keys, ", "))
	}
	return result, nil
}

// Unknown returns the placeholders in s that are not in allowed.
func Unknown(s string, allowed ...string) []string {
	ok := map[string]bool{}
	for _, a := range allowed {
		ok[a] = true
	}
	var out []string
	for _, p := range FindParams(s) {
		if !ok[p] {
			out = append(out, p)
		}
	}
	return out
}
