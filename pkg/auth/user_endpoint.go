package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// UserEndpointVerifier validates tokens by asking the identity service who
// the bearer is (GET {baseURL}/auth/v1/user). Any 401/403 from the service
// means the token is invalid.
type UserEndpointVerifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewUserEndpointVerifier creates a verifier against the identity service at baseURL.
// apiKey is sent as the "apikey" header required by the service gateway.
func NewUserEndpointVerifier(baseURL, apiKey string, timeout time.Duration) *UserEndpointVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &UserEndpointVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type userEndpointResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Verify implements Verifier
func (v *UserEndpointVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if v.apiKey != "" {
		req.Header.Set("apikey", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity service request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}

	var body userEndpointResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode identity response: %w", err)
	}
	if body.ID == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{ID: body.ID, Email: body.Email}, nil
}
