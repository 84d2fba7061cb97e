package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"go.pilab.hu/trustgate/cookies"
	"go.pilab.hu/trustgate/domain"
	"go.pilab.hu/trustgate/errors"
	"go.pilab.hu/trustgate/internal/metrics"
)

// HandoffService runs the two-phase OAuth handshake with an external identity
// provider: a CSRF nonce bound to a short-lived cookie on the way out, a
// single-use code exchange and credential staging on the way back.
type HandoffService struct {
	oauth    *oauth2.Config
	provider domain.IdentityProvider
	codec    cookies.Codec
}

func NewHandoffService(oauth *oauth2.Config, provider domain.IdentityProvider, codec cookies.Codec) *HandoffService {
	return &HandoffService{oauth: oauth, provider: provider, codec: codec}
}

// Begin issues a fresh nonce, persists the handshake in the state cookie and
// returns the external provider's authorization URL.
func (h *HandoffService) Begin(jar cookies.Jar, redirectTo string) (string, error) {
	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("generate state nonce: %w", err)
	}

	ck, err := h.codec.OAuthState(domain.HandshakeState{
		State:      state,
		RedirectTo: SanitizeRedirect(redirectTo),
	})
	if err != nil {
		return "", err
	}
	jar.Set(ck)

	return h.oauth.AuthCodeURL(state), nil
}

// Complete validates the callback, consumes the handshake exactly once and
// exchanges the authorization code for product session tokens, which it
// stages in the single-use bridging cookie.
//
// Returns the staged tokens and the originally intended redirect path. Any
// failure fails closed: the handshake cookie is gone either way, and no
// session state has been written.
func (h *HandoffService) Complete(ctx context.Context, jar cookies.Jar, state, code string) (*domain.SessionTokens, string, error) {
	raw, ok := jar.Get(cookies.OAuthStateCookie)
	if !ok {
		metrics.HandoffsFailedTotal.Inc()
		return nil, "", errors.ErrStateMissing
	}
	// Single use: the handshake dies here whether or not the state matches.
	jar.Delete(cookies.OAuthStateCookie)

	handshake, err := cookies.DecodeHandshake(raw)
	if err != nil {
		metrics.HandoffsFailedTotal.Inc()
		return nil, "", errors.ErrStateMissing
	}
	if state == "" || subtle.ConstantTimeCompare([]byte(handshake.State), []byte(state)) != 1 {
		metrics.HandoffsFailedTotal.Inc()
		log.Warn().Msg("OAuth callback rejected: state mismatch")
		return nil, "", errors.ErrStateMismatch
	}
	if code == "" {
		metrics.HandoffsFailedTotal.Inc()
		return nil, "", fmt.Errorf("oauth callback missing authorization code")
	}

	external, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		metrics.HandoffsFailedTotal.Inc()
		return nil, "", fmt.Errorf("authorization code exchange failed: %w", err)
	}

	session, err := h.provider.ExchangeOAuthCode(ctx, domain.SessionTokens{
		AccessToken:  external.AccessToken,
		RefreshToken: external.RefreshToken,
	})
	if err != nil {
		metrics.HandoffsFailedTotal.Inc()
		return nil, "", fmt.Errorf("federated sign-in failed: %w", err)
	}

	staged, err := h.codec.StagedTokens(session.Tokens)
	if err != nil {
		metrics.HandoffsFailedTotal.Inc()
		return nil, "", err
	}
	jar.Set(staged)

	metrics.HandoffsCompletedTotal.Inc()
	log.Info().Str("user_id", session.UserID).Msg("OAuth handoff completed, credential staged")
	return &session.Tokens, handshake.RedirectTo, nil
}

// Finalize consumes the staged credential exactly once. The staging cookie is
// deleted in the same response that reads it; a second call finds nothing.
func (h *HandoffService) Finalize(jar cookies.Jar) (*domain.SessionTokens, error) {
	raw, ok := jar.Get(cookies.StagedTokensCookie)
	if !ok {
		return nil, errors.ErrStagedCredentialMissing
	}
	jar.Delete(cookies.StagedTokensCookie)

	tokens, err := cookies.DecodeStagedTokens(raw)
	if err != nil {
		return nil, errors.ErrStagedCredentialMissing
	}
	return tokens, nil
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SanitizeRedirect keeps a post-login redirect same-origin: only absolute
// paths survive, anything else falls back to "/". Protocol-relative URLs
// ("//host") are rejected explicitly; browsers treat them as off-origin.
// Every surface that redirects to a caller-supplied path goes through this.
func SanitizeRedirect(redirectTo string) string {
	if redirectTo == "" || !strings.HasPrefix(redirectTo, "/") || strings.HasPrefix(redirectTo, "//") {
		return "/"
	}
	return redirectTo
}
