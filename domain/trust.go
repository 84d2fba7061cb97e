package domain

// TrustState is the effective access state seen by the edge guard. It is
// derived, never stored: the guard infers it per request from the presence of
// the two session cookies.
type TrustState int

const (
	TrustUnauthenticated TrustState = iota
	TrustAuthenticated
	TrustMFAPending
)

func (s TrustState) String() string {
	switch s {
	case TrustAuthenticated:
		return "authenticated"
	case TrustMFAPending:
		return "mfa_pending"
	default:
		return "unauthenticated"
	}
}

// DeriveTrustState infers the effective state from cookie presence. A pending
// second factor always overrides an authenticated cookie: a half-completed
// MFA step must block access even if both cookies are somehow present.
func DeriveTrustState(hasSession, hasMFAPending bool) TrustState {
	switch {
	case hasMFAPending:
		return TrustMFAPending
	case hasSession:
		return TrustAuthenticated
	default:
		return TrustUnauthenticated
	}
}
