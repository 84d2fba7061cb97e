package domain

import "time"

// SessionTokens is the credential pair issued by the identity provider. It is
// also the JSON payload of the short-lived staging cookie that bridges the
// OAuth callback back into client session state.
type SessionTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Session is the provider-side view of an authenticated session.
type Session struct {
	Tokens    SessionTokens
	UserID    string
	ExpiresAt time.Time
}

// TokenInfo is the result of verifying a bearer credential with the identity
// provider.
type TokenInfo struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
	// MFACompleted is true when the credential already reflects a completed
	// second factor (the provider's assurance-level claim).
	MFACompleted bool
}

// HandshakeState is the CSRF handshake persisted across the OAuth redirect.
// It lives in a short-TTL cookie, created at redirect-out and consumed
// exactly once at callback.
type HandshakeState struct {
	State      string `json:"state"`
	RedirectTo string `json:"redirectTo"`
}

// RemoteSignOutFlag is written to shared storage on teardown so every open
// surface can present a consistent "you were signed out" screen. It is
// consumed (read and cleared) by the first surface that renders it.
type RemoteSignOutFlag struct {
	Reason    string    `json:"reason"`
	WrittenAt time.Time `json:"writtenAt"`
}
