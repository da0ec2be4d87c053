// Package user persists the tagger identity used for annotated release tags.
package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"github.com/VoxDroid/tagship/internal/config"
	"github.com/VoxDroid/tagship/internal/nameutil"
)

// ErrNoTagger is returned when no tagger identity is configured anywhere.
var ErrNoTagger = errors.New("no tagger identity: set tag.tagger_name/tag.tagger_email or run `tagship whoami set`")

// Profile is a tagger identity.
type Profile struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Validate normalizes the profile and checks the email address.
func (p *Profile) Validate() error {
	name, _ := nameutil.SanitizeName(p.Name)
	p.Name = name
	p.Email = strings.TrimSpace(p.Email)
	if p.Name == "" {
		return errors.New("tagger name cannot be empty")
	}
	if p.Email != "" {
		addr, err := mail.ParseAddress(p.Email)
		if err != nil {
			return fmt.Errorf("invalid tagger email %q: %w", p.Email, err)
		}
		p.Email = addr.Address
	}
	return nil
}

func profilePath() (string, error) {
	d, err := config.EnsureDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "tagger.json"), nil
}

// SetProfile validates and saves the tagger profile and returns it as
// stored.
func SetProfile(p Profile) (Profile, error) {
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	pfile, err := profilePath()
	if err != nil {
		return Profile{}, err
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return Profile{}, err
	}
	if err := os.WriteFile(pfile, append(b, '\n'), 0o600); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// GetProfile reads the tagger profile. Returns (Profile, true, nil) if found.
func GetProfile() (Profile, bool, error) {
	pfile, err := profilePath()
	if err != nil {
		return Profile{}, false, err
	}
	b, err := os.ReadFile(pfile)
	if err != nil {
		if os.IsNotExist(err) {
			return Profile{}, false, nil
		}
		return Profile{}, false, err
	}
	var p Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return Profile{}, false, fmt.Errorf("read %s: %w", pfile, err)
	}
	return p, true, nil
}

// ClearProfile removes the persisted profile.
func ClearProfile() error {
	pfile, err := profilePath()
	if err != nil {
		return err
	}
	if err := os.Remove(pfile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ResolveTagger picks the tagger for annotated tags: the configured identity
// when it names someone, otherwise the persisted profile.
func ResolveTagger(tag config.Tag) (Profile, error) {
	if strings.TrimSpace(tag.TaggerName) != "" {
		p := Profile{Name: tag.TaggerName, Email: tag.TaggerEmail}
		return p, p.Validate()
	}
	p, ok, err := GetProfile()
	if err != nil {
		return Profile{}, err
	}
	if !ok {
		return Profile{}, ErrNoTagger
	}
	return p, p.Validate()
}
