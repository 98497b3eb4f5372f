// README: Partner store contract: registry rows plus the presence index.
package partner

import (
	"context"
	"time"

	"sparkle/internal/types"
)

// presenceTTL bounds how long a heartbeat counts as "last known location".
const presenceTTL = 2 * time.Minute

type Store interface {
	Create(ctx context.Context, p *Partner) error
	Get(ctx context.Context, id types.ID) (*Partner, error)
	SetStatus(ctx context.Context, id types.ID, status Status) error

	SetLocation(ctx context.Context, id types.ID, pos types.Point, at time.Time) error
	LastLocation(ctx context.Context, id types.ID) (types.Point, time.Time, error)
	Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]types.ID, error)
	RemovePresence(ctx context.Context, id types.ID) error

	AppendSnapshot(ctx context.Context, snap Snapshot) error
}
