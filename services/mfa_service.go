package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/trustgate/cache"
	"go.pilab.hu/trustgate/domain"
	"go.pilab.hu/trustgate/errors"
)

// EnrollmentState is the MFA state machine's view of an account:
//
//	unenrolled -> pending_verification -> verified
//
// and back to unenrolled via an explicit disable. The transient phase between
// factor creation and the first challenge is not derivable from the
// provider's factor listing, which only reports unverified vs verified, so it
// reads as pending_verification here; the enrollment surface holds the
// secret and QR locally for that window.
type EnrollmentState string

const (
	EnrollmentUnenrolled          EnrollmentState = "unenrolled"
	EnrollmentPendingVerification EnrollmentState = "pending_verification"
	EnrollmentVerified            EnrollmentState = "verified"
)

// MFAService orchestrates enrollment, verification and disablement on top of
// the identity provider's factor APIs. Factor reads go through an injectable
// TTL cache; every mutation invalidates it.
type MFAService struct {
	provider domain.IdentityProvider
	factors  *cache.FactorCache
}

func NewMFAService(provider domain.IdentityProvider, factors *cache.FactorCache) *MFAService {
	return &MFAService{provider: provider, factors: factors}
}

// State derives the account's enrollment state from its factor listing.
func (s *MFAService) State(ctx context.Context, userID string) (EnrollmentState, error) {
	factors, err := s.listFactors(ctx, userID)
	if err != nil {
		return "", err
	}

	pending := false
	for _, f := range factors {
		if f.Verified() {
			return EnrollmentVerified, nil
		}
		pending = true
	}
	if pending {
		return EnrollmentPendingVerification, nil
	}
	return EnrollmentUnenrolled, nil
}

// BeginEnrollment creates a new factor and returns its secret and QR URI.
// Stale unverified factors from abandoned attempts are unenrolled first;
// otherwise the provider rejects the new factor over a naming collision.
func (s *MFAService) BeginEnrollment(ctx context.Context, userID, friendlyName string) (*domain.Enrollment, error) {
	// Mutation path: read the provider directly, never the cache.
	factors, err := s.provider.ListFactors(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list factors: %w", err)
	}
	for _, f := range factors {
		if f.Verified() {
			continue
		}
		if err := s.provider.UnenrollFactor(ctx, f.ID); err != nil {
			log.Warn().Err(err).
				Str("user_id", userID).
				Str("factor_id", f.ID).
				Msg("Failed to clean up stale unverified factor")
		}
	}

	enrollment, err := s.provider.EnrollFactor(ctx, userID, "totp", friendlyName)
	if err != nil {
		return nil, fmt.Errorf("enroll factor: %w", err)
	}
	s.factors.Invalidate(userID)
	return enrollment, nil
}

// Verify completes enrollment (or an MFA sign-in step) for the given factor.
// A fresh challenge is issued immediately before the verify call: challenge
// ids are single-attempt and never reused.
func (s *MFAService) Verify(ctx context.Context, userID, factorID, code string) error {
	challengeID, err := s.provider.ChallengeFactor(ctx, factorID)
	if err != nil {
		return fmt.Errorf("challenge factor: %w", err)
	}
	if err := s.provider.VerifyFactor(ctx, factorID, challengeID, code); err != nil {
		return fmt.Errorf("verify factor: %w", err)
	}

	s.factors.Invalidate(userID)
	log.Info().Str("user_id", userID).Str("factor_id", factorID).Msg("MFA factor verified")
	return nil
}

// Disable removes the account's verified factor. The absence of one is an
// error, not a no-op: removing protection is an explicit intent that must be
// confirmed against a real factor.
func (s *MFAService) Disable(ctx context.Context, userID string) error {
	factors, err := s.provider.ListFactors(ctx, userID)
	if err != nil {
		return fmt.Errorf("list factors: %w", err)
	}

	var verified *domain.Factor
	for _, f := range factors {
		if f.Verified() {
			verified = f
			break
		}
	}
	if verified == nil {
		return errors.ErrFactorNotFound
	}

	if err := s.provider.UnenrollFactor(ctx, verified.ID); err != nil {
		return fmt.Errorf("unenroll factor: %w", err)
	}

	s.factors.Invalidate(userID)
	log.Info().Str("user_id", userID).Str("factor_id", verified.ID).Msg("MFA disabled")
	return nil
}

func (s *MFAService) listFactors(ctx context.Context, userID string) ([]*domain.Factor, error) {
	if factors, ok := s.factors.Get(userID); ok {
		return factors, nil
	}
	factors, err := s.provider.ListFactors(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list factors: %w", err)
	}
	s.factors.Set(userID, factors)
	return factors, nil
}
