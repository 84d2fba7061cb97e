package domain

import "context"

// IdentityProvider is the capability surface this module consumes from the
// external identity provider. Credential authentication, factor storage and
// the device directory of record all live behind it; nothing here implements
// them.
type IdentityProvider interface {
	// VerifyToken validates a bearer credential and returns its claims.
	VerifyToken(ctx context.Context, accessToken string) (*TokenInfo, error)
	// RefreshSession exchanges a refresh token for a renewed session. An
	// error means the session is no longer valid and must be torn down.
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
	// SignOut invalidates the provider-side session. Best-effort callers may
	// ignore the error.
	SignOut(ctx context.Context, accessToken string) error

	// ExchangeOAuthCode performs the federated sign-in step: it trades tokens
	// obtained from an external OAuth provider for this product's own session.
	ExchangeOAuthCode(ctx context.Context, external SessionTokens) (*Session, error)

	ListFactors(ctx context.Context, userID string) ([]*Factor, error)
	EnrollFactor(ctx context.Context, userID, factorType, friendlyName string) (*Enrollment, error)
	// ChallengeFactor issues a fresh, single-attempt challenge id. Challenge
	// ids are not reused across verify attempts.
	ChallengeFactor(ctx context.Context, factorID string) (string, error)
	VerifyFactor(ctx context.Context, factorID, challengeID, code string) error
	UnenrollFactor(ctx context.Context, factorID string) error

	GetIdentities(ctx context.Context, userID string) ([]*Identity, error)
	LinkIdentity(ctx context.Context, userID, provider string) (string, error)
	UnlinkIdentity(ctx context.Context, userID, identityID string) error

	// ListDevices returns the user's registered devices, including revocation
	// timestamps. The device trust watcher polls this.
	ListDevices(ctx context.Context, userID string) ([]*Device, error)
}
