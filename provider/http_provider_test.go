package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/trustgate/errors"
)

func TestHTTPProviderVerifyToken(t *testing.T) {
	ctx := context.Background()

	t.Run("Sends credentials and decodes the claims", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/token/verify", r.URL.Path)
			assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
			assert.Equal(t, "api-key", r.Header.Get("X-Api-Key"))

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"userId":       "user-1",
				"email":        "u@example.com",
				"expiresAt":    time.Now().Add(time.Hour).UTC(),
				"mfaCompleted": true,
			})
		}))
		defer srv.Close()

		p := NewHTTPProvider(srv.URL, "api-key", nil)
		info, err := p.VerifyToken(ctx, "at")
		require.NoError(t, err)
		assert.Equal(t, "user-1", info.UserID)
		assert.True(t, info.MFACompleted)
	})

	t.Run("401 maps to invalid credential", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_token","error_description":"expired"}`))
		}))
		defer srv.Close()

		p := NewHTTPProvider(srv.URL, "", nil)
		_, err := p.VerifyToken(ctx, "at")
		require.ErrorIs(t, err, errors.ErrInvalidCredential)
	})

	t.Run("403 with device_revoked maps to the typed sentinel", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"device_revoked","error_description":"revoked by owner"}`))
		}))
		defer srv.Close()

		p := NewHTTPProvider(srv.URL, "", nil)
		_, err := p.VerifyToken(ctx, "at")
		require.ErrorIs(t, err, errors.ErrDeviceRevoked)
		assert.True(t, errors.IsRevocation(err))
	})

	t.Run("5xx maps to provider unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		p := NewHTTPProvider(srv.URL, "", nil)
		_, err := p.VerifyToken(ctx, "at")
		require.ErrorIs(t, err, errors.ErrProviderUnavailable)
	})

	t.Run("Transport failure maps to provider unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close()

		p := NewHTTPProvider(srv.URL, "", nil)
		_, err := p.VerifyToken(ctx, "at")
		require.ErrorIs(t, err, errors.ErrProviderUnavailable)
	})
}

func TestHTTPProviderRefreshSession(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/token/refresh", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rt", body["refreshToken"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken":  "at2",
			"refreshToken": "rt2",
			"userId":       "user-1",
			"expiresAt":    expiresAt,
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "", nil)
	session, err := p.RefreshSession(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, "at2", session.Tokens.AccessToken)
	assert.Equal(t, "rt2", session.Tokens.RefreshToken)
	assert.Equal(t, expiresAt, session.ExpiresAt)
}

func TestHTTPProviderListDevices(t *testing.T) {
	revokedAt := time.Now().UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/user-1/devices", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"devices": []map[string]any{
				{"id": "device-1", "userId": "user-1"},
				{"id": "device-2", "userId": "user-1", "revokedAt": revokedAt},
			},
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "", nil)
	devices, err := p.ListDevices(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.False(t, devices[0].Revoked())
	assert.True(t, devices[1].Revoked())
}

func TestHTTPProviderFactorFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/users/user-1/factors":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "totp", body["type"])
			_ = json.NewEncoder(w).Encode(map[string]string{
				"factorId": "f1", "secret": "s3cret", "qrCode": "otpauth://totp/x",
			})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/factors/f1/challenge":
			_ = json.NewEncoder(w).Encode(map[string]string{"challengeId": "ch1"})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/factors/f1/verify":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "ch1", body["challengeId"])
			assert.Equal(t, "123456", body["code"])
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/factors/f1":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	p := NewHTTPProvider(srv.URL, "", nil)

	enrollment, err := p.EnrollFactor(ctx, "user-1", "totp", "My phone")
	require.NoError(t, err)
	assert.Equal(t, "f1", enrollment.FactorID)

	challengeID, err := p.ChallengeFactor(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "ch1", challengeID)

	require.NoError(t, p.VerifyFactor(ctx, "f1", "ch1", "123456"))
	require.NoError(t, p.UnenrollFactor(ctx, "f1"))
}
