package services

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/trustgate/cookies"
	"go.pilab.hu/trustgate/domain"
	"go.pilab.hu/trustgate/errors"
	"go.pilab.hu/trustgate/internal/metrics"
)

// SessionService converts verified bearer credentials into the session cookie
// pair. It is the only writer of those cookies besides teardown.
type SessionService struct {
	provider domain.IdentityProvider
	codec    cookies.Codec
}

func NewSessionService(provider domain.IdentityProvider, codec cookies.Codec) *SessionService {
	return &SessionService{provider: provider, codec: codec}
}

// EstablishResult reports the verified subject and the mfa-pending flag that
// was actually applied.
type EstablishResult struct {
	UserID     string `json:"userId"`
	MFAPending bool   `json:"mfaPending"`
}

// Establish verifies the bearer credential and writes exactly one of the two
// session cookies, clearing the other. On any verification failure no cookie
// is touched.
//
// Cookie stores are not transactional, so the clear is written first and the
// turn-on cookie last: the worst interleaving leaves a window where neither
// cookie is present, which fails closed at the guard.
func (s *SessionService) Establish(ctx context.Context, jar cookies.Jar, bearer string, mfaPending bool) (*EstablishResult, error) {
	if bearer == "" {
		return nil, errors.ErrInvalidCredential
	}

	info, err := s.provider.VerifyToken(ctx, bearer)
	if err != nil {
		if stderrors.Is(err, errors.ErrProviderUnavailable) {
			log.Error().Err(err).Msg("Session issuance failed: identity provider unavailable")
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidCredential, err)
	}

	if mfaPending {
		jar.Delete(cookies.SessionCookie)
		jar.Set(s.codec.MFAPending(uuid.NewString()))
	} else {
		jar.Delete(cookies.MFAPendingCookie)
		jar.Set(s.codec.Session(uuid.NewString()))
	}

	metrics.SessionsEstablishedTotal.Inc()
	log.Info().
		Str("user_id", info.UserID).
		Bool("mfa_pending", mfaPending).
		Msg("Session established")

	return &EstablishResult{UserID: info.UserID, MFAPending: mfaPending}, nil
}

// Clear deletes both session cookies unconditionally. It is idempotent and
// always succeeds, with or without a prior session.
func (s *SessionService) Clear(jar cookies.Jar) {
	jar.Delete(cookies.SessionCookie)
	jar.Delete(cookies.MFAPendingCookie)
	metrics.SessionsClearedTotal.Inc()
}

// ApplySession is the single entry point that turns provider tokens into
// client session state, shared by the OAuth finalization and direct login
// paths so both enforce the same MFA gate.
//
// The session is issued mfa-pending when the account has a verified factor
// the credential has not yet completed.
func (s *SessionService) ApplySession(ctx context.Context, jar cookies.Jar, tokens domain.SessionTokens) (*EstablishResult, error) {
	info, err := s.provider.VerifyToken(ctx, tokens.AccessToken)
	if err != nil {
		if stderrors.Is(err, errors.ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidCredential, err)
	}

	mfaPending := false
	if !info.MFACompleted {
		factors, err := s.provider.ListFactors(ctx, info.UserID)
		if err != nil {
			// Fail closed: an unknown factor state must not mint a
			// fully-authenticated session.
			return nil, fmt.Errorf("list factors: %w", err)
		}
		for _, f := range factors {
			if f.Verified() {
				mfaPending = true
				break
			}
		}
	}

	return s.Establish(ctx, jar, tokens.AccessToken, mfaPending)
}
