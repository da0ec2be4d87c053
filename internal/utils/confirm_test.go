package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	cases := map[string]bool{
		"y\n":     true,
		"YES\n":   true,
		" yes ":   true,
		"n\n":     false,
		"\n":      false,
		"":        false,
		"maybe\n": false,
	}
	for in, want := range cases {
		var out bytes.Buffer
		if got := Confirm(strings.NewReader(in), &out, "Push tag 1.0.0?"); got != want {
			t.Fatalf("Confirm(%q) = %v, want %v", in, got, want)
		}
		if out.String() != "Push tag 1.0.0? [y/N]: " {
			t.Fatalf("prompt = %q", out.String())
		}
	}
}
