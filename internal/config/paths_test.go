package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataDirEnvOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(EnvTagshipHome, tmp)

	d, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir(): %v", err)
	}
	if d != tmp {
		t.Fatalf("expected %s got %s", tmp, d)
	}
}

func TestLedgerPathEnvOverride(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "custom.db")
	t.Setenv(EnvTagshipLedger, tmp)

	p, err := LedgerPath()
	if err != nil {
		t.Fatalf("LedgerPath(): %v", err)
	}
	if p != tmp {
		t.Fatalf("expected %s got %s", tmp, p)
	}
}

func TestLedgerPathUnderDataDir(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(EnvTagshipHome, tmp)
	t.Setenv(EnvTagshipLedger, "")

	p, err := LedgerPath()
	if err != nil {
		t.Fatalf("LedgerPath(): %v", err)
	}
	if p != filepath.Join(tmp, "ledger.db") {
		t.Fatalf("unexpected ledger path %s", p)
	}
}

func TestEnsureDataDirCreatesDir(t *testing.T) {
	t.Setenv(EnvTagshipHome, "")
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("USERPROFILE", tmp)

	d, err := EnsureDataDir()
	if err != nil {
		t.Fatalf("EnsureDataDir(): %v", err)
	}
	if _, err := os.Stat(d); err != nil {
		t.Fatalf("expected dir %s to exist: %v", d, err)
	}
}
