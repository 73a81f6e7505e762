package repositories

import (
	"context"
	"errors"

	"github.com/voxkit/voxbridge/domain/entities"
)

// ErrDeviceNotFound is returned when a device lookup or credential check
// fails. Callers must not distinguish bad serials from bad secrets.
var ErrDeviceNotFound = errors.New("device not found")

// DeviceRegistry defines data access for registered devices.
type DeviceRegistry interface {
	Create(ctx context.Context, device *entities.Device) error
	GetByID(ctx context.Context, id string) (*entities.Device, error)
	// Validate checks device credentials and returns the device on success.
	Validate(ctx context.Context, serialNumber, secretKey string) (*entities.Device, error)
}
