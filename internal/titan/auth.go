package titan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// expiryBuffer is subtracted from the reported token lifetime so a token is
// never presented while it could expire mid-request.
const expiryBuffer = 30 * time.Second

// AuthError indicates the token endpoint was unreachable, returned a
// non-2xx status, or returned a payload without a usable access token.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

type accessToken struct {
	value     string
	expiresAt time.Time
}

// TokenProvider performs the OAuth2 client-credentials exchange and caches
// the resulting token in memory until it expires. It does not retry; the
// fetch client's retry wrapper covers transient auth failures. Not safe for
// concurrent use — the sync pipeline is strictly sequential.
type TokenProvider struct {
	authURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	now          func() time.Time

	cached *accessToken
}

// NewTokenProvider creates a provider for the given token endpoint.
func NewTokenProvider(authURL, clientID, clientSecret string, timeout time.Duration) *TokenProvider {
	return &TokenProvider{
		authURL:      authURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

// Token returns the cached token while it is still valid, otherwise
// exchanges client credentials for a fresh one. A cache hit makes no
// network call.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	if p.cached != nil && p.now().Before(p.cached.expiresAt) {
		return p.cached.value, nil
	}

	tok, err := p.exchange(ctx)
	if err != nil {
		return "", err
	}
	p.cached = tok
	return tok.value, nil
}

func (p *TokenProvider) exchange(ctx context.Context) (*accessToken, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Reason: "build token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Reason: "failed to reach auth server", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthError{Reason: "read token response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{Reason: fmt.Sprintf("token request failed: HTTP %d - %s", resp.StatusCode, body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &AuthError{Reason: "invalid token response: " + string(body), Err: err}
	}

	payload.AccessToken = strings.TrimSpace(payload.AccessToken)
	if payload.AccessToken == "" || payload.ExpiresIn <= 0 {
		return nil, &AuthError{Reason: "invalid token response: " + string(body)}
	}

	lifetime := time.Duration(payload.ExpiresIn)*time.Second - expiryBuffer
	if lifetime < 0 {
		lifetime = 0
	}
	return &accessToken{
		value:     payload.AccessToken,
		expiresAt: p.now().Add(lifetime),
	}, nil
}
