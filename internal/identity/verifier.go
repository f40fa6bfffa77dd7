// Package identity verifies delegated identity assertions with the upstream
// provider gateway (Firebase / Google / OTP service). The core never speaks
// the upstream protocols itself; it only consumes verified claims.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// ErrInvalidIdentity is returned when the upstream provider rejects the assertion.
var ErrInvalidIdentity = errors.New("invalid external identity")

// Claims are the verified fields the upstream provider asserts about a user.
// The provider is the source of truth for these; local edits are overwritten
// on next login.
type Claims struct {
	Provider       string `json:"provider"`
	UID            string `json:"uid"`
	Email          string `json:"email"`
	Mobile         string `json:"mobile_number"`
	DisplayName    string `json:"full_name"`
	AvatarURL      string `json:"avatar_url"`
	EmailVerified  bool   `json:"email_verified"`
	MobileVerified bool   `json:"mobile_verified"`
}

// Verifier checks a delegated identity assertion and returns verified claims.
// Fails with ErrInvalidIdentity for rejected assertions; other errors are
// transport failures.
type Verifier interface {
	Verify(ctx context.Context, provider, assertion string) (*Claims, error)
}

// HTTPVerifier verifies assertions by POSTing them to a verifier gateway.
type HTTPVerifier struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPVerifier returns a verifier for the given gateway endpoint.
func NewHTTPVerifier(baseURL, apiKey string) *HTTPVerifier {
	return &HTTPVerifier{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Verify posts {provider, assertion} to the gateway. 200 returns the verified
// claims; 401/403 means the assertion was rejected. The assertion itself is
// never logged.
func (v *HTTPVerifier) Verify(ctx context.Context, provider, assertion string) (*Claims, error) {
	if v.BaseURL == "" {
		return nil, errors.New("identity: verifier URL not configured")
	}
	body, err := json.Marshal(map[string]string{
		"provider":  provider,
		"assertion": assertion,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if v.APIKey != "" {
		req.Header.Set("Authorization", v.APIKey)
	}
	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var claims Claims
		if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
			return nil, fmt.Errorf("identity: decode verifier response: %w", err)
		}
		if claims.UID == "" {
			return nil, ErrInvalidIdentity
		}
		if claims.Provider == "" {
			claims.Provider = provider
		}
		return &claims, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidIdentity
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("identity: verifier request failed status=%d body=%s", resp.StatusCode, string(b))
	}
}
