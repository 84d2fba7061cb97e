package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Sentinel errors for the trust layer. Handlers map these onto HTTP statuses;
// the agent maps them onto teardown decisions.
var (
	// ErrProviderUnavailable means the identity provider could not be
	// reached or is misconfigured. Never treated as "unauthenticated":
	// masking an outage as a logout would sign users out during incidents.
	ErrProviderUnavailable = stderrors.New("identity provider unavailable")
	// ErrInvalidCredential covers missing, expired and malformed bearer
	// credentials.
	ErrInvalidCredential = stderrors.New("invalid or expired credential")
	// ErrDeviceRevoked is the typed revocation signal. Providers that can
	// emit it make the watcher's string heuristic unnecessary.
	ErrDeviceRevoked = stderrors.New("device has been revoked")
	// ErrDeviceNotFound means the device id is unknown to the directory.
	ErrDeviceNotFound = stderrors.New("device not found")

	// ErrStateMissing means the OAuth handshake cookie was absent or expired
	// at callback time.
	ErrStateMissing = stderrors.New("oauth handshake missing or expired")
	// ErrStateMismatch means the returned state parameter did not match the
	// stored nonce.
	ErrStateMismatch = stderrors.New("oauth state mismatch")
	// ErrStagedCredentialMissing means the single-use staging cookie was
	// absent: never written, expired, or already consumed.
	ErrStagedCredentialMissing = stderrors.New("staged credential missing or already consumed")

	// ErrFactorNotFound means no verified factor exists to act on. Disabling
	// MFA requires confirming the intent against a real factor, so this is
	// an error rather than a no-op.
	ErrFactorNotFound = stderrors.New("no verified factor found")
)

// AuthError is the JSON error body returned by the auth endpoints.
type AuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Error codes used on the wire.
const (
	InvalidRequest         = "invalid_request"
	InvalidToken           = "invalid_token"
	AccessDenied           = "access_denied"
	ServerError            = "server_error"
	TemporarilyUnavailable = "temporarily_unavailable"
)

func NewInvalidRequest(description string) *AuthError {
	return &AuthError{Code: InvalidRequest, Description: description}
}

func NewInvalidToken(description string) *AuthError {
	return &AuthError{Code: InvalidToken, Description: description}
}

func NewAccessDenied(description string) *AuthError {
	return &AuthError{Code: AccessDenied, Description: description}
}

func NewServerError(description string) *AuthError {
	return &AuthError{Code: ServerError, Description: description}
}

func NewTemporarilyUnavailable(description string) *AuthError {
	return &AuthError{Code: TemporarilyUnavailable, Description: description}
}

// IsRevocation reports whether err signals device revocation. The typed
// sentinel is authoritative; the substring match is a fallback for providers
// that only surface opaque messages. Matching arbitrary wording is brittle,
// so callers should log the message when only the heuristic fired.
func IsRevocation(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, ErrDeviceRevoked) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "revoked") || strings.Contains(msg, "signed out")
}
