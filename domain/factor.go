package domain

import "time"

// FactorStatus is the provider-side lifecycle of an MFA factor. A factor is
// created unverified and becomes verified after a successful challenge.
type FactorStatus string

const (
	FactorStatusUnverified FactorStatus = "unverified"
	FactorStatusVerified   FactorStatus = "verified"
)

// Factor is an MFA factor record owned by the identity provider.
type Factor struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"` // e.g. "totp"
	FriendlyName string       `json:"friendlyName,omitempty"`
	Status       FactorStatus `json:"status"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// Verified reports whether the factor has completed verification.
func (f *Factor) Verified() bool {
	return f != nil && f.Status == FactorStatusVerified
}

// Enrollment is the provider's response to creating a new factor: the shared
// secret for manual entry and the otpauth:// URI for QR rendering.
type Enrollment struct {
	FactorID string `json:"factorId"`
	Secret   string `json:"secret"`
	QRCode   string `json:"qrCode"`
}

// Identity is an external identity linked to the user's account.
type Identity struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Email    string `json:"email,omitempty"`
}
