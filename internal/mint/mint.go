// Package mint exchanges an identity token for a short-lived package-index
// publish credential.
package mint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/VoxDroid/tagship/internal/oidc"
)

// Masker registers secrets so they never show up in output.
type Masker interface {
	Mask(secret string)
}

// Minter performs the two-hop exchange: identity token for the audience,
// then publish credential from the index. An empty Audience is discovered
// from IndexURL.
type Minter struct {
	Endpoint   string
	Audience   string
	IndexURL   string
	Identity   oidc.IdentitySource
	HTTPClient *http.Client
	Masker     Masker
}

// Mint runs the exchange once. Both tokens are masked the moment they are
// received, before anything else sees them.
func (m *Minter) Mint(ctx context.Context) (*oauth2.Token, error) {
	if m.Identity == nil {
		return nil, errors.New("mint: no identity source")
	}
	if m.Masker == nil {
		return nil, errors.New("mint: no masker")
	}
	c := m.HTTPClient
	if c == nil {
		c = http.DefaultClient
	}
	aud := m.Audience
	if aud == "" && m.IndexURL != "" {
		d, err := oidc.DiscoverAudience(ctx, c, m.IndexURL)
		if err != nil {
			return nil, fmt.Errorf("mint: %w", err)
		}
		aud = d
	}
	id, err := m.Identity.Token(ctx, aud)
	if err != nil {
		return nil, fmt.Errorf("mint: identity token: %w", err)
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("mint: empty identity token")
	}
	m.Masker.Mask(id)

	body, err := json.Marshal(struct {
		Token string `json:"token"`
	}{id})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mint: exchange: %w", err)
	}
	cred, err := oidc.ResponseField(resp, "token")
	if err != nil {
		return nil, fmt.Errorf("mint: exchange: %w", err)
	}
	m.Masker.Mask(cred)

	return &oauth2.Token{
		AccessToken: cred,
		TokenType:   "Bearer",
		// index credentials are valid for 15 minutes
		Expiry: time.Now().Add(15 * time.Minute),
	}, nil
}

// Token implements oauth2.TokenSource.
func (m *Minter) Token() (*oauth2.Token, error) {
	return m.Mint(context.Background())
}

// TokenSource returns a source that mints at most once while the
// credential is valid.
func (m *Minter) TokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, ctxSource{ctx: ctx, m: m})
}

type ctxSource struct {
	ctx context.Context
	m   *Minter
}

func (s ctxSource) Token() (*oauth2.Token, error) { return s.m.Mint(s.ctx) }
