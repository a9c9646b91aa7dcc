package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// VerifyResult is the license server's authoritative view of a key.
type VerifyResult struct {
	Valid     bool
	Revoked   bool
	Reason    string
	ExpiresAt time.Time
}

// Verifier checks a key against the remote license server.
type Verifier interface {
	Verify(ctx context.Context, key, fingerprint string) (VerifyResult, error)
}

// HTTPVerifier talks to the vendor license server over HTTPS.
type HTTPVerifier struct {
	baseURL string
	http    *http.Client
}

// NewHTTPVerifier builds a verifier for the given server base URL.
func NewHTTPVerifier(baseURL string) *HTTPVerifier {
	return &HTTPVerifier{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type verifyRequest struct {
	LicenseKey  string `json:"license_key"`
	Fingerprint string `json:"hardware_fingerprint"`
}

type verifyResponse struct {
	Valid     bool   `json:"valid"`
	Revoked   bool   `json:"revoked"`
	Reason    string `json:"reason,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// Verify posts the key and fingerprint, retrying transient failures a few
// times before giving up. A 4xx answer is final and not retried.
func (v *HTTPVerifier) Verify(ctx context.Context, key, fingerprint string) (VerifyResult, error) {
	body, err := json.Marshal(verifyRequest{LicenseKey: key, Fingerprint: fingerprint})
	if err != nil {
		return VerifyResult{}, err
	}

	var out verifyResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/api/v1/licenses/verify", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := v.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("license server returned %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("license server rejected verification: %d", resp.StatusCode))
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode verification response: %w", err))
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return VerifyResult{}, err
	}

	result := VerifyResult{Valid: out.Valid, Revoked: out.Revoked, Reason: out.Reason}
	if out.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, out.ExpiresAt)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("parse expires_at %q: %w", out.ExpiresAt, err)
		}
		result.ExpiresAt = t
	}
	return result, nil
}

var _ Verifier = (*HTTPVerifier)(nil)
