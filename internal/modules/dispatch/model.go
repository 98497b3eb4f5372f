// README: Dispatch offer aggregate; one live offer per booking, rounds are sequential.
package dispatch

import (
	"time"

	"sparkle/internal/types"
)

type OfferStatus string

const (
	OfferOffered  OfferStatus = "offered"
	OfferAccepted OfferStatus = "accepted"
	OfferDeclined OfferStatus = "declined"
	OfferExpired  OfferStatus = "expired"
	OfferVoid     OfferStatus = "void"
)

// Live reports whether the offer can still be resolved; every other status
// is terminal.
func Live(s OfferStatus) bool { return s == OfferOffered }

type Offer struct {
	ID              types.ID    `json:"id"`
	BookingID       types.ID    `json:"booking_id"`
	TargetPartnerID *types.ID   `json:"target_partner_id,omitempty"`
	Payout          types.Money `json:"payout"`
	SurgeMultiplier float64     `json:"surge_multiplier"`
	Round           int         `json:"round"`
	Status          OfferStatus `json:"status"`
	StatusVersion   int         `json:"status_version"`
	AcceptedBy      *types.ID   `json:"accepted_by,omitempty"`
	IdempotencyKey  string      `json:"-"`
	ExpiresAt       time.Time   `json:"expires_at"`
	CreatedAt       time.Time   `json:"created_at"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
}

// Directed reports whether the offer targets a single partner rather than
// the open pool.
func (o *Offer) Directed() bool { return o.TargetPartnerID != nil }
