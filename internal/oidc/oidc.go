// Package oidc obtains the ambient OIDC identity token of the workload that
// runs a release. The token proves who is publishing and is exchanged for a
// short-lived index credential by package mint.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spiffe/go-spiffe/v2/svid/jwtsvid"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
	"github.com/tidwall/gjson"
)

// maxBody caps how much of a response body is read.
const maxBody = 1 << 20

// ErrUnavailable is returned when the environment offers no identity token.
var ErrUnavailable = errors.New("no ambient OIDC identity available")

// IdentitySource returns an identity token for an audience.
type IdentitySource interface {
	Token(ctx context.Context, audience string) (string, error)
}

// ActionsSource requests identity tokens from the GitHub Actions OIDC
// provider.
type ActionsSource struct {
	RequestURL   string
	RequestToken string
	Client       *http.Client
}

// NewActionsSourceFromEnv builds an ActionsSource from the runner
// environment. The job needs the id-token: write permission for the
// variables to be present.
func NewActionsSourceFromEnv(getenv func(string) string, client *http.Client) (*ActionsSource, error) {
	u := getenv("ACTIONS_ID_TOKEN_REQUEST_URL")
	tok := getenv("ACTIONS_ID_TOKEN_REQUEST_TOKEN")
	if u == "" || tok == "" {
		return nil, fmt.Errorf("%w: ACTIONS_ID_TOKEN_REQUEST_URL/ACTIONS_ID_TOKEN_REQUEST_TOKEN not set (missing id-token: write permission?)", ErrUnavailable)
	}
	return &ActionsSource{RequestURL: u, RequestToken: tok, Client: client}, nil
}

// Token implements IdentitySource.
func (s *ActionsSource) Token(ctx context.Context, audience string) (string, error) {
	u, err := url.Parse(s.RequestURL)
	if err != nil {
		return "", fmt.Errorf("identity request URL: %w", err)
	}
	if audience != "" {
		q := u.Query()
		q.Set("audience", audience)
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "bearer "+s.RequestToken)
	req.Header.Set("Accept", "application/json")
	resp, err := client(s.Client).Do(req)
	if err != nil {
		return "", fmt.Errorf("identity token request: %w", err)
	}
	v, err := ResponseField(resp, "value")
	if err != nil {
		return "", fmt.Errorf("identity token request: %w", err)
	}
	return v, nil
}

// SPIFFESource fetches JWT-SVIDs from a SPIFFE Workload API endpoint.
type SPIFFESource struct {
	// Addr is the Workload API socket, e.g. unix:///run/spire/agent.sock.
	// Empty uses SPIFFE_ENDPOINT_SOCKET.
	Addr string
}

// Token implements IdentitySource.
func (s *SPIFFESource) Token(ctx context.Context, audience string) (string, error) {
	if audience == "" {
		return "", errors.New("spiffe: audience is required")
	}
	var opts []workloadapi.ClientOption
	if s.Addr != "" {
		opts = append(opts, workloadapi.WithAddr(s.Addr))
	}
	svid, err := workloadapi.FetchJWTSVID(ctx, jwtsvid.Params{Audience: audience}, opts...)
	if err != nil {
		return "", fmt.Errorf("spiffe: fetch JWT-SVID: %w", err)
	}
	return svid.Marshal(), nil
}

// DiscoverAudience asks the index which audience its identity tokens must
// carry.
func DiscoverAudience(ctx context.Context, c *http.Client, indexURL string) (string, error) {
	u := strings.TrimRight(indexURL, "/") + "/_/oidc/audience"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client(c).Do(req)
	if err != nil {
		return "", fmt.Errorf("audience discovery: %w", err)
	}
	aud, err := ResponseField(resp, "audience")
	if err != nil {
		return "", fmt.Errorf("audience discovery: %w", err)
	}
	return aud, nil
}

// ResponseField reads and closes resp and returns the string field at path.
// A non-2xx status, a body that is not JSON or a missing or empty field is
// an error. Error messages carried in the body are included.
func ResponseField(resp *http.Response, path string) (string, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if msg := errorMessage(b); msg != "" {
			return "", fmt.Errorf("status %d: %s", resp.StatusCode, msg)
		}
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(b) {
		return "", errors.New("response is not valid JSON")
	}
	v := gjson.GetBytes(b, path)
	if v.Type != gjson.String || strings.TrimSpace(v.Str) == "" {
		return "", fmt.Errorf("response has no %q field", path)
	}
	return v.Str, nil
}

func errorMessage(b []byte) string {
	if !gjson.ValidBytes(b) {
		return ""
	}
	var parts []string
	if m := gjson.GetBytes(b, "message"); m.Exists() && m.String() != "" {
		parts = append(parts, m.String())
	}
	for _, d := range gjson.GetBytes(b, "errors.#.description").Array() {
		if d.String() != "" {
			parts = append(parts, d.String())
		}
	}
	return strings.Join(parts, "; ")
}

func client(c *http.Client) *http.Client {
	if c == nil {
		return http.DefaultClient
	}
	return c
}
