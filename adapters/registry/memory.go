// Package registry provides the device registry backends. The in-memory
// implementation serves deployments where device provisioning happens through
// configuration rather than an external store.
package registry

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxkit/voxbridge/domain/entities"
	"github.com/voxkit/voxbridge/domain/repositories"
)

// MemoryRegistry is an in-memory DeviceRegistry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	devices map[string]*entities.Device // id -> device
	serials map[string]*entities.Device // serial_number -> device
}

var _ repositories.DeviceRegistry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		devices: make(map[string]*entities.Device),
		serials: make(map[string]*entities.Device),
	}
}

// Create registers a device. A missing id is generated.
func (m *MemoryRegistry) Create(ctx context.Context, device *entities.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	now := time.Now()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	m.devices[device.ID] = device
	m.serials[device.SerialNumber] = device
	return nil
}

// GetByID looks a device up by its id.
func (m *MemoryRegistry) GetByID(ctx context.Context, id string) (*entities.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, ok := m.devices[id]
	if !ok {
		return nil, repositories.ErrDeviceNotFound
	}
	return device, nil
}

// Validate checks device credentials. Unknown serials and wrong secrets
// produce the same error.
func (m *MemoryRegistry) Validate(ctx context.Context, serialNumber, secretKey string) (*entities.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, ok := m.serials[serialNumber]
	if !ok {
		return nil, repositories.ErrDeviceNotFound
	}
	if subtle.ConstantTimeCompare([]byte(device.SecretKey), []byte(secretKey)) != 1 {
		return nil, repositories.ErrDeviceNotFound
	}
	return device, nil
}
