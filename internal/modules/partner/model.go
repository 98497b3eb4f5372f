// README: Partner registry entries and location snapshots.
package partner

import (
	"time"

	"sparkle/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusVerified  Status = "verified"
	StatusSuspended Status = "suspended"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusVerified, StatusSuspended:
		return true
	}
	return false
}

type Partner struct {
	ID        types.ID  `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Rating    float64   `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the durable trail behind the volatile presence index.
type Snapshot struct {
	ID         int64       `json:"id"`
	PartnerID  types.ID    `json:"partner_id"`
	Position   types.Point `json:"position"`
	RecordedAt time.Time   `json:"recorded_at"`
}
