// Package config loads the tagship configuration from .tagship.yaml and
// TAGSHIP_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/VoxDroid/tagship/internal/executor"
	"github.com/VoxDroid/tagship/internal/params"
	"github.com/VoxDroid/tagship/internal/security"
)

// FileName is the configuration file looked up in the repository root.
const FileName = ".tagship.yaml"

// Identity providers.
const (
	ProviderActions = "actions"
	ProviderSPIFFE  = "spiffe"
)

// Version sources.
const (
	VersionFromManifest = "manifest"
	VersionFromTool     = "tool"
)

// Config is the full tagship configuration.
type Config struct {
	Repository Repository `yaml:"repository"`
	Tag        Tag        `yaml:"tag"`
	Build      Build      `yaml:"build"`
	Index      Index      `yaml:"index"`
	Identity   Identity   `yaml:"identity"`
	HTTP       HTTP       `yaml:"http"`
	Guard      Guard      `yaml:"guard"`
	Ledger     Ledger     `yaml:"ledger"`
}

// Repository describes the working copy and its remote.
type Repository struct {
	Dir        string   `yaml:"dir"`
	Remote     string   `yaml:"remote"`
	MainBranch string   `yaml:"main_branch"`
	Manifest   string   `yaml:"manifest"`
	TagPattern string   `yaml:"tag_pattern"`
	Paths      []string `yaml:"paths"`
	// TokenEnv names the environment variable holding the push token.
	TokenEnv string `yaml:"token_env"`
}

// Tag controls how release tags are created.
type Tag struct {
	Annotate    bool   `yaml:"annotate"`
	Message     string `yaml:"message"`
	TaggerName  string `yaml:"tagger_name"`
	TaggerEmail string `yaml:"tagger_email"`
}

// Build holds the build-manager command templates.
type Build struct {
	Tool           string            `yaml:"tool"`
	SetupCommand   string            `yaml:"setup_command"`
	VersionCommand string            `yaml:"version_command"`
	BuildCommand   string            `yaml:"build_command"`
	PublishCommand string            `yaml:"publish_command"`
	DistDir        string            `yaml:"dist_dir"`
	VersionSource  string            `yaml:"version_source"`
	CredentialEnv  string            `yaml:"credential_env"`
	Env            map[string]string `yaml:"env"`
}

// Index is the package index the release is published to.
type Index struct {
	URL        string `yaml:"url"`
	Audience   string `yaml:"audience"`
	MintURL    string `yaml:"mint_url"`
	Repository string `yaml:"repository"`
}

// Identity selects where the ambient identity token comes from.
type Identity struct {
	Provider     string `yaml:"provider"`
	SPIFFESocket string `yaml:"spiffe_socket"`
}

// HTTP configures the client used for the credential exchange.
type HTTP struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Guard holds optional release safety checks.
type Guard struct {
	Monotonic bool `yaml:"monotonic"`
}

// Ledger configures the local run ledger.
type Ledger struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when nothing is configured.
func Default() Config {
	return Config{
		Repository: Repository{
			Dir:        ".",
			Remote:     "origin",
			MainBranch: "main",
			Manifest:   "pyproject.toml",
			TagPattern: "*.*.*",
			TokenEnv:   "GITHUB_TOKEN",
		},
		Tag: Tag{
			Message: "Release {{version}}",
		},
		Build: Build{
			Tool:           "poetry",
			SetupCommand:   "poetry --version",
			VersionCommand: "poetry version --short",
			BuildCommand:   "poetry build --no-interaction",
			PublishCommand: "poetry publish --no-interaction",
			DistDir:        "dist",
			VersionSource:  VersionFromManifest,
			CredentialEnv:  "POETRY_PYPI_TOKEN_PYPI",
		},
		Index: Index{
			URL:        "https://pypi.org",
			Repository: "pypi",
		},
		Identity: Identity{Provider: ProviderActions},
		HTTP:     HTTP{Timeout: 30 * time.Second},
		Ledger:   Ledger{Enabled: true},
	}
}

// Load reads FileName from dir when present, applies environment overrides
// read through getenv and validates the result.
func Load(dir string, getenv func(string) string) (Config, error) {
	cfg := Default()
	cfg.Repository.Dir = ""
	b, err := os.ReadFile(filepath.Join(dir, FileName))
	switch {
	case err == nil:
		if err := decode(bytes.NewReader(b), &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", FileName, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, err
	}
	if cfg.Repository.Dir == "" {
		cfg.Repository.Dir = dir
	} else if !filepath.IsAbs(cfg.Repository.Dir) && dir != "" {
		cfg.Repository.Dir = filepath.Join(dir, cfg.Repository.Dir)
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		return nil
	}
	str := map[string]*string{
		"TAGSHIP_REMOTE":            &cfg.Repository.Remote,
		"TAGSHIP_MAIN_BRANCH":       &cfg.Repository.MainBranch,
		"TAGSHIP_MANIFEST":          &cfg.Repository.Manifest,
		"TAGSHIP_TAG_PATTERN":       &cfg.Repository.TagPattern,
		"TAGSHIP_INDEX_URL":         &cfg.Index.URL,
		"TAGSHIP_AUDIENCE":          &cfg.Index.Audience,
		"TAGSHIP_MINT_URL":          &cfg.Index.MintURL,
		"TAGSHIP_IDENTITY_PROVIDER": &cfg.Identity.Provider,
		"TAGSHIP_SPIFFE_SOCKET":     &cfg.Identity.SPIFFESocket,
		"TAGSHIP_VERSION_SOURCE":    &cfg.Build.VersionSource,
		EnvTagshipLedger:            &cfg.Ledger.Path,
	}
	for k, dst := range str {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			*dst = v
		}
	}
	flags := map[string]*bool{
		"TAGSHIP_GUARD_MONOTONIC": &cfg.Guard.Monotonic,
		"TAGSHIP_LEDGER_ENABLED":  &cfg.Ledger.Enabled,
		"TAGSHIP_TAG_ANNOTATE":    &cfg.Tag.Annotate,
	}
	for k, dst := range flags {
		v := strings.TrimSpace(getenv(k))
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", k, v)
		}
		*dst = b
	}
	if v := strings.TrimSpace(getenv("TAGSHIP_HTTP_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TAGSHIP_HTTP_TIMEOUT: %w", err)
		}
		cfg.HTTP.Timeout = d
	}
	return nil
}

// Validate checks the configuration for values that would make a run fail
// halfway through.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Repository.Remote) == "" {
		return errors.New("repository.remote is required")
	}
	if strings.TrimSpace(c.Repository.MainBranch) == "" {
		return errors.New("repository.main_branch is required")
	}
	if strings.TrimSpace(c.Repository.Manifest) == "" {
		return errors.New("repository.manifest is required")
	}
	switch c.Build.VersionSource {
	case VersionFromManifest, VersionFromTool:
	default:
		return fmt.Errorf("build.version_source: unknown source %q", c.Build.VersionSource)
	}
	switch c.Identity.Provider {
	case ProviderActions, ProviderSPIFFE:
	default:
		return fmt.Errorf("identity.provider: unknown provider %q", c.Identity.Provider)
	}
	if c.Build.CredentialEnv == "" {
		return errors.New("build.credential_env is required")
	}
	if u, err := url.Parse(c.Index.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("index.url: invalid URL %q", c.Index.URL)
	}
	if c.Index.MintURL != "" {
		if u, err := url.Parse(c.Index.MintURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("index.mint_url: invalid URL %q", c.Index.MintURL)
		}
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("http.timeout must be positive")
	}
	if u := params.Unknown(c.Tag.Message, "version", "tag"); len(u) > 0 {
		return fmt.Errorf("tag.message: unknown placeholders %s", strings.Join(u, ", "))
	}

	templates := []struct {
		key     string
		value   *string
		allowed []string
	}{
		{"build.setup_command", &c.Build.SetupCommand, []string{"dist", "repository"}},
		{"build.version_command", &c.Build.VersionCommand, []string{"dist", "repository"}},
		{"build.build_command", &c.Build.BuildCommand, []string{"version", "dist", "repository"}},
		{"build.publish_command", &c.Build.PublishCommand, []string{"version", "dist", "repository"}},
	}
	for _, t := range templates {
		*t.value = executor.Sanitize(strings.TrimSpace(*t.value))
		if *t.value == "" {
			if t.key == "build.version_command" && c.Build.VersionSource == VersionFromManifest {
				continue
			}
			return fmt.Errorf("%s is required", t.key)
		}
		if err := executor.ValidateCommand(*t.value); err != nil {
			return fmt.Errorf("%s: %w", t.key, err)
		}
		if err := security.CheckTemplate(*t.value); err != nil {
			return fmt.Errorf("%s: %w", t.key, err)
		}
		if u := params.Unknown(*t.value, t.allowed...); len(u) > 0 {
			return fmt.Errorf("%s: unknown placeholders %s", t.key, strings.Join(u, ", "))
		}
	}
	for k := range c.Build.Env {
		if k == c.Build.CredentialEnv {
			return fmt.Errorf("build.env: %s is reserved for the publish credential", k)
		}
	}
	return nil
}

// MintEndpoint returns the credential exchange URL for the index.
func (c *Config) MintEndpoint() string {
	if c.Index.MintURL != "" {
		return c.Index.MintURL
	}
	return strings.TrimRight(c.Index.URL, "/") + "/_/oidc/mint-token"
}

// LedgerFile returns the configured ledger path or the default one.
func (c *Config) LedgerFile() (string, error) {
	if c.Ledger.Path != "" {
		return c.Ledger.Path, nil
	}
	return LedgerPath()
}
