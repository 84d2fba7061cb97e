package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"go.pilab.hu/trustgate/cookies"
	"go.pilab.hu/trustgate/domain"
	"go.pilab.hu/trustgate/errors"
	"go.pilab.hu/trustgate/internal/mocks"
)

func newOAuthConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://app.example.com/auth/oauth/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://idp.example.com/authorize",
			TokenURL: tokenURL,
		},
	}
}

// tokenServer fakes the external provider's token endpoint.
func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"ext-at","refresh_token":"ext-rt","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandoffBegin(t *testing.T) {
	codec := cookies.Codec{}
	service := NewHandoffService(newOAuthConfig("https://idp.example.com/token"), new(mocks.IdentityProvider), codec)

	t.Run("Stores the handshake and embeds the state in the auth URL", func(t *testing.T) {
		jar := cookies.NewMemoryJar()
		authURL, err := service.Begin(jar, "/dashboard")
		require.NoError(t, err)

		raw, ok := jar.Get(cookies.OAuthStateCookie)
		require.True(t, ok)
		hs, err := cookies.DecodeHandshake(raw)
		require.NoError(t, err)
		assert.Equal(t, "/dashboard", hs.RedirectTo)
		assert.NotEmpty(t, hs.State)

		parsed, err := url.Parse(authURL)
		require.NoError(t, err)
		assert.Equal(t, hs.State, parsed.Query().Get("state"))
		assert.Equal(t, "client-id", parsed.Query().Get("client_id"))
	})

	t.Run("Each handshake gets a fresh nonce", func(t *testing.T) {
		jarA, jarB := cookies.NewMemoryJar(), cookies.NewMemoryJar()
		urlA, err := service.Begin(jarA, "/")
		require.NoError(t, err)
		urlB, err := service.Begin(jarB, "/")
		require.NoError(t, err)
		assert.NotEqual(t, urlA, urlB)
	})

	t.Run("Off-origin redirect targets fall back to root", func(t *testing.T) {
		for _, target := range []string{"https://evil.example.com", "//evil.example.com", "dashboard", ""} {
			jar := cookies.NewMemoryJar()
			_, err := service.Begin(jar, target)
			require.NoError(t, err)

			raw, _ := jar.Get(cookies.OAuthStateCookie)
			hs, err := cookies.DecodeHandshake(raw)
			require.NoError(t, err)
			assert.Equal(t, "/", hs.RedirectTo, "target %q must not survive", target)
		}
	})
}

func TestHandoffComplete(t *testing.T) {
	ctx := context.Background()
	codec := cookies.Codec{}
	srv := tokenServer(t)

	begin := func(t *testing.T, service *HandoffService, jar cookies.Jar) string {
		authURL, err := service.Begin(jar, "/dashboard")
		require.NoError(t, err)
		parsed, err := url.Parse(authURL)
		require.NoError(t, err)
		return parsed.Query().Get("state")
	}

	t.Run("Happy path stages tokens and returns the redirect", func(t *testing.T) {
		provider := new(mocks.IdentityProvider)
		provider.On("ExchangeOAuthCode", mock.Anything, domain.SessionTokens{AccessToken: "ext-at", RefreshToken: "ext-rt"}).
			Return(&domain.Session{
				Tokens: domain.SessionTokens{AccessToken: "at", RefreshToken: "rt"},
				UserID: "user-1",
			}, nil).Once()
		service := NewHandoffService(newOAuthConfig(srv.URL+"/token"), provider, codec)
		jar := cookies.NewMemoryJar()
		state := begin(t, service, jar)

		tokens, redirectTo, err := service.Complete(ctx, jar, state, "auth-code")
		require.NoError(t, err)
		assert.Equal(t, "/dashboard", redirectTo)
		assert.Equal(t, "at", tokens.AccessToken)

		raw, ok := jar.Get(cookies.StagedTokensCookie)
		require.True(t, ok)
		staged, err := cookies.DecodeStagedTokens(raw)
		require.NoError(t, err)
		assert.Equal(t, "rt", staged.RefreshToken)

		_, ok = jar.Get(cookies.OAuthStateCookie)
		assert.False(t, ok, "handshake cookie must be consumed")
		provider.AssertExpectations(t)
	})

	t.Run("Replayed state fails after the first completion", func(t *testing.T) {
		provider := new(mocks.IdentityProvider)
		provider.On("ExchangeOAuthCode", mock.Anything, mock.Anything).
			Return(&domain.Session{Tokens: domain.SessionTokens{AccessToken: "at"}}, nil).Once()
		service := NewHandoffService(newOAuthConfig(srv.URL+"/token"), provider, codec)
		jar := cookies.NewMemoryJar()
		state := begin(t, service, jar)

		_, _, err := service.Complete(ctx, jar, state, "auth-code")
		require.NoError(t, err)

		_, _, err = service.Complete(ctx, jar, state, "auth-code")
		require.ErrorIs(t, err, errors.ErrStateMissing)
	})

	t.Run("State mismatch is rejected and still consumes the handshake", func(t *testing.T) {
		service := NewHandoffService(newOAuthConfig(srv.URL+"/token"), new(mocks.IdentityProvider), codec)
		jar := cookies.NewMemoryJar()
		begin(t, service, jar)

		_, _, err := service.Complete(ctx, jar, "forged-state", "auth-code")
		require.ErrorIs(t, err, errors.ErrStateMismatch)

		_, ok := jar.Get(cookies.OAuthStateCookie)
		assert.False(t, ok)
	})

	t.Run("Missing handshake cookie", func(t *testing.T) {
		service := NewHandoffService(newOAuthConfig(srv.URL+"/token"), new(mocks.IdentityProvider), codec)
		_, _, err := service.Complete(ctx, cookies.NewMemoryJar(), "whatever", "auth-code")
		require.ErrorIs(t, err, errors.ErrStateMissing)
	})

	t.Run("Missing authorization code", func(t *testing.T) {
		service := NewHandoffService(newOAuthConfig(srv.URL+"/token"), new(mocks.IdentityProvider), codec)
		jar := cookies.NewMemoryJar()
		state := begin(t, service, jar)

		_, _, err := service.Complete(ctx, jar, state, "")
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "authorization code"))
	})

	t.Run("Federated exchange failure stages nothing", func(t *testing.T) {
		provider := new(mocks.IdentityProvider)
		provider.On("ExchangeOAuthCode", mock.Anything, mock.Anything).
			Return(nil, errors.ErrProviderUnavailable).Once()
		service := NewHandoffService(newOAuthConfig(srv.URL+"/token"), provider, codec)
		jar := cookies.NewMemoryJar()
		state := begin(t, service, jar)

		_, _, err := service.Complete(ctx, jar, state, "auth-code")
		require.Error(t, err)

		_, ok := jar.Get(cookies.StagedTokensCookie)
		assert.False(t, ok)
	})
}

func TestSanitizeRedirect(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/dashboard", "/dashboard"},
		{"/dashboard/reports?tab=1", "/dashboard/reports?tab=1"},
		{"", "/"},
		{"dashboard", "/"},
		{"https://evil.example.com", "/"},
		{"//evil.example.com/phish", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeRedirect(tt.in))
		})
	}
}

func TestHandoffFinalize(t *testing.T) {
	codec := cookies.Codec{}
	service := NewHandoffService(newOAuthConfig("https://idp.example.com/token"), new(mocks.IdentityProvider), codec)

	t.Run("Consumes the staged credential exactly once", func(t *testing.T) {
		jar := cookies.NewMemoryJar()
		ck, err := codec.StagedTokens(domain.SessionTokens{AccessToken: "at", RefreshToken: "rt"})
		require.NoError(t, err)
		jar.Set(ck)

		tokens, err := service.Finalize(jar)
		require.NoError(t, err)
		assert.Equal(t, "at", tokens.AccessToken)

		_, err = service.Finalize(jar)
		require.ErrorIs(t, err, errors.ErrStagedCredentialMissing)
	})

	t.Run("Nothing staged", func(t *testing.T) {
		_, err := service.Finalize(cookies.NewMemoryJar())
		require.ErrorIs(t, err, errors.ErrStagedCredentialMissing)
	})

	t.Run("Corrupt staging cookie is treated as missing", func(t *testing.T) {
		jar := cookies.NewMemoryJar()
		jar.Set(&http.Cookie{Name: cookies.StagedTokensCookie, Value: "garbage"})

		_, err := service.Finalize(jar)
		require.ErrorIs(t, err, errors.ErrStagedCredentialMissing)
	})
}
