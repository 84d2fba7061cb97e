package domain

import (
	"context"
	"time"
)

// DeviceRepository is the persistence contract for the device directory.
type DeviceRepository interface {
	// RegisterDevice stores a new device record. Registering an id that
	// already exists is an error.
	RegisterDevice(ctx context.Context, device *Device) error
	GetDeviceByID(ctx context.Context, id string) (*Device, error)
	ListDevicesByUser(ctx context.Context, userID string) ([]*Device, error)
	// RevokeDevice sets RevokedAt if it is not already set and returns the
	// resulting record. Revoking an already-revoked device returns the stored
	// record unchanged; the null -> set transition happens exactly once.
	RevokeDevice(ctx context.Context, id string, at time.Time) (*Device, error)
}
