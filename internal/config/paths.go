package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// EnvTagshipHome overrides the data directory.
	EnvTagshipHome = "TAGSHIP_HOME"
	// EnvTagshipLedger overrides the ledger database path.
	EnvTagshipLedger = "TAGSHIP_LEDGER"
)

// DataDir returns the directory used to store tagship data.
func DataDir() (string, error) {
	if d := os.Getenv(EnvTagshipHome); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tagship"), nil
}

// EnsureDataDir returns DataDir after creating it.
func EnsureDataDir() (string, error) {
	d, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return d, nil
}

// LedgerPath returns the full path to the run ledger database.
func LedgerPath() (string, error) {
	if p := os.Getenv(EnvTagshipLedger); p != "" {
		return p, nil
	}
	d, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "ledger.db"), nil
}
