package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/VoxDroid/tagship/internal/config"
)

func TestWhoamiSetShowClear(t *testing.T) {
	t.Setenv(config.EnvTagshipHome, t.TempDir())

	var out bytes.Buffer
	whoamiSetCmd.SetOut(&out)
	_ = whoamiSetCmd.Flags().Set("name", "")
	if err := whoamiSetCmd.RunE(whoamiSetCmd, []string{}); err == nil {
		t.Fatalf("expected error when missing --name")
	}
	out.Reset()

	_ = whoamiSetCmd.Flags().Set("name", "  Release Bot ")
	_ = whoamiSetCmd.Flags().Set("email", "bot@example.com")
	if err := whoamiSetCmd.RunE(whoamiSetCmd, []string{}); err != nil {
		t.Fatalf("whoami set failed: %v", err)
	}
	if got, want := out.String(), "stored tagger as: Release Bot <bot@example.com>\n"; got != want {
		t.Fatalf("set output = %q, want %q", got, want)
	}
	out.Reset()

	whoamiShowCmd.SetOut(&out)
	if err := whoamiShowCmd.RunE(whoamiShowCmd, []string{}); err != nil {
		t.Fatalf("whoami show failed: %v", err)
	}
	if !strings.Contains(out.String(), "Release Bot <bot@example.com>") {
		t.Fatalf("unexpected show output: %s", out.String())
	}
	out.Reset()

	whoamiClearCmd.SetOut(&out)
	if err := whoamiClearCmd.RunE(whoamiClearCmd, []string{}); err != nil {
		t.Fatalf("whoami clear failed: %v", err)
	}
	out.Reset()
	if err := whoamiShowCmd.RunE(whoamiShowCmd, []string{}); err != nil {
		t.Fatalf("whoami show after clear failed: %v", err)
	}
	if !strings.Contains(out.String(), "no stored tagger identity") {
		t.Fatalf("unexpected show output after clear: %s", out.String())
	}
}
