// README: Offer store contract; accepts are decided by the status_version CAS.
package dispatch

import (
	"context"
	"time"

	"sparkle/internal/types"
)

type Store interface {
	Create(ctx context.Context, o *Offer) error
	Get(ctx context.Context, id types.ID) (*Offer, error)

	// LiveByBooking returns the booking's single non-terminal offer, or
	// ErrNotFound when every offer for the booking is resolved.
	LiveByBooking(ctx context.Context, bookingID types.ID) (*Offer, error)

	// LatestByBooking returns the newest offer regardless of status, used
	// to derive the next round number. ErrNotFound when none exist.
	LatestByBooking(ctx context.Context, bookingID types.ID) (*Offer, error)

	// UpdateStatus transitions the offer only if the current status and
	// version match. acceptedBy and idemKey are recorded on the row when
	// non-zero and left untouched otherwise.
	UpdateStatus(ctx context.Context, id types.ID, from, to OfferStatus, version int, acceptedBy *types.ID, idemKey string) (bool, error)

	// ListExpired returns live offers whose countdown has lapsed as of now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Offer, error)

	// VoidSiblings resolves every other live offer for the booking and
	// returns how many were voided.
	VoidSiblings(ctx context.Context, bookingID, exceptID types.ID) (int, error)

	// RecordDecline marks a pool offer as declined by one partner without
	// resolving the offer itself. Recording twice is a no-op.
	RecordDecline(ctx context.Context, offerID, partnerID types.ID) error
	HasDeclined(ctx context.Context, offerID, partnerID types.ID) (bool, error)

	// ListOpenForPartner returns live, unexpired offers visible to the
	// partner: offers directed at them plus pool offers they have not
	// declined.
	ListOpenForPartner(ctx context.Context, partnerID types.ID, now time.Time) ([]*Offer, error)
}
