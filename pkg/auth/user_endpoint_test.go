package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdentityServer(t *testing.T, handler http.HandlerFunc) *UserEndpointVerifier {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewUserEndpointVerifier(server.URL+"/", "anon-key", time.Second)
}

func TestUserEndpointVerifier_Verify(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		v := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/auth/v1/user", r.URL.Path)
			assert.Equal(t, "Bearer good-token", r.Header.Get("Authorization"))
			assert.Equal(t, "anon-key", r.Header.Get("apikey"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"user-1","email":"owner@example.com","role":"authenticated"}`))
		})

		identity, err := v.Verify(context.Background(), "good-token")
		require.NoError(t, err)
		assert.Equal(t, &Identity{ID: "user-1", Email: "owner@example.com"}, identity)
	})

	t.Run("rejected token", func(t *testing.T) {
		v := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"invalid JWT"}`))
		})

		identity, err := v.Verify(context.Background(), "expired")
		assert.Nil(t, identity)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("service error", func(t *testing.T) {
		v := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := v.Verify(context.Background(), "token")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrInvalidToken))
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("empty identity", func(t *testing.T) {
		v := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})

		_, err := v.Verify(context.Background(), "token")
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("malformed body", func(t *testing.T) {
		v := newIdentityServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		})

		_, err := v.Verify(context.Background(), "token")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode")
	})
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleOwner, ParseRole(" Owner "))
	assert.Equal(t, Role("accountant"), ParseRole("accountant"))
}

func TestVerifierFunc(t *testing.T) {
	var v Verifier = VerifierFunc(func(ctx context.Context, token string) (*Identity, error) {
		return &Identity{ID: token}, nil
	})
	identity, err := v.Verify(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", identity.ID)
}
