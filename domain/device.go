package domain

import "time"

// Device is a trusted agent registered with the device directory. The device
// id is generated client-side and persisted locally; the directory only ever
// sees it as an opaque key.
//
// RevokedAt transitions nil -> non-nil exactly once and is never unset for
// the same device.
type Device struct {
	ID           string     `bson:"_id" json:"id"`
	UserID       string     `bson:"user_id" json:"userId"`
	UserAgent    string     `bson:"user_agent,omitempty" json:"userAgent,omitempty"`
	Platform     string     `bson:"platform,omitempty" json:"platform,omitempty"`
	Locale       string     `bson:"locale,omitempty" json:"locale,omitempty"`
	Timezone     string     `bson:"timezone,omitempty" json:"timezone,omitempty"`
	RegisteredAt time.Time  `bson:"registered_at" json:"registeredAt"`
	RevokedAt    *time.Time `bson:"revoked_at,omitempty" json:"revokedAt,omitempty"`
}

// Revoked reports whether the account owner has invalidated this device.
func (d *Device) Revoked() bool {
	return d != nil && d.RevokedAt != nil
}
