// README: On-site job record; its status walks the booking's post-assignment states.
package job

import (
	"time"

	"sparkle/internal/modules/booking"
	"sparkle/internal/types"
)

type PhotoKind string

const (
	PhotoBefore PhotoKind = "before"
	PhotoAfter  PhotoKind = "after"
)

const (
	VerifyFace      = "face"
	VerifyBiometric = "biometric"
)

func ValidVerifyMethod(m string) bool {
	return m == VerifyFace || m == VerifyBiometric
}

// Verification is the on-site identity check session. A session is single-use
// and expires; Verified survives restarts of the job flow.
type Verification struct {
	Method    string     `json:"method,omitempty"`
	Verified  bool       `json:"verified"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Job is keyed by its booking; statuses reuse the booking state table from
// assigned onward so the mirror cannot drift from a second transition map.
type Job struct {
	BookingID      types.ID       `json:"booking_id"`
	PartnerID      types.ID       `json:"partner_id"`
	CustomerID     types.ID       `json:"customer_id"`
	Status         booking.Status `json:"status"`
	StatusVersion  int            `json:"status_version"`
	Verification   Verification   `json:"verification"`
	RequiredBefore int            `json:"required_before_photos"`
	RequiredAfter  int            `json:"required_after_photos"`
	BeforePhotos   []string       `json:"before_photos,omitempty"`
	AfterPhotos    []string       `json:"after_photos,omitempty"`
	PauseReason    *string        `json:"pause_reason,omitempty"`
	DisputeTicket  *string        `json:"dispute_ticket,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	EnrouteAt      *time.Time     `json:"enroute_at,omitempty"`
	ArrivedAt      *time.Time     `json:"arrived_at,omitempty"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}
