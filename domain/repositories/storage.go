package repositories

import (
	"context"

	"github.com/voxkit/voxbridge/domain/entities"
)

// SessionStore is the append-only sink for finished sessions. The live
// session table is in memory and owned by the session manager; the store only
// records history for the administrative surfaces.
type SessionStore interface {
	// Append records a terminal session. Implementations must tolerate
	// duplicate appends of the same session id (at-least-once callers).
	Append(ctx context.Context, session *entities.Session) error
	// RecentByDevice returns the newest terminal sessions for a device.
	RecentByDevice(ctx context.Context, deviceID string, limit int) ([]*entities.Session, error)
}
