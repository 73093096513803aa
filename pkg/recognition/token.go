package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// expiryMargin keeps us from presenting a token that dies mid-request.
const expiryMargin = time.Minute

// TokenProvider exchanges API credentials for an access token and caches it
// in memory for the session. The token is refreshed only on demand, once its
// expiry window closes; there is no retry loop.
type TokenProvider struct {
	endpoint  string
	apiKey    string
	secretKey string
	hc        *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenProvider(endpoint, apiKey, secretKey string) *TokenProvider {
	return &TokenProvider{
		endpoint:  endpoint,
		apiKey:    apiKey,
		secretKey: secretKey,
		hc:        &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.expiresAt) {
		return p.token, nil
	}

	slog.InfoContext(ctx, "Fetching speech API access token")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.tokenURL(), nil)
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}

	resp, err := p.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected token endpoint status: %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access_token")
	}

	p.token = tr.AccessToken
	p.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - expiryMargin)

	return p.token, nil
}

func (p *TokenProvider) tokenURL() string {
	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", p.apiKey)
	q.Set("client_secret", p.secretKey)
	return p.endpoint + "?" + q.Encode()
}
