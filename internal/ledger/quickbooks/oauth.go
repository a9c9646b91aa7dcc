package quickbooks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const tokenEndpoint = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"

// Credentials holds the OAuth2 client configuration for one realm.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	RealmID      string
	Environment  string // sandbox | production
}

// tokenSource caches the access token and refreshes it through the
// refresh-token grant when expired. Safe for concurrent use.
type tokenSource struct {
	creds    Credentials
	client   *http.Client
	endpoint string
	now      func() time.Time

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

func newTokenSource(creds Credentials, client *http.Client) *tokenSource {
	return &tokenSource{
		creds:        creds,
		client:       client,
		endpoint:     tokenEndpoint,
		now:          time.Now,
		refreshToken: creds.RefreshToken,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Token returns a valid access token, refreshing if it expires within a
// minute.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accessToken != "" && t.now().Add(time.Minute).Before(t.expiresAt) {
		return t.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", t.refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("quickbooks: token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(t.creds.ClientID + ":" + t.creds.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("quickbooks: refresh token: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("quickbooks: refresh token: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("quickbooks: decode token response: %w", err)
	}
	t.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		t.refreshToken = tok.RefreshToken
	}
	t.expiresAt = t.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return t.accessToken, nil
}
