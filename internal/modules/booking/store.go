// README: Booking store contract; Postgres and in-memory implementations satisfy it.
package booking

import (
	"context"

	"sparkle/internal/types"
)

type Store interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	HasActiveByCustomer(ctx context.Context, customerID types.ID) (bool, error)

	// UpdateStatus is the compare-and-swap every mutator goes through.
	// Reports false when (from, version) no longer match the row.
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, partnerID *types.ID) (bool, error)

	// UpdateCancellation records the fee outcome after a successful CAS to cancelled.
	UpdateCancellation(ctx context.Context, id types.ID, feeCents, refundCreditCents int64, reason string) error

	ListByStatus(ctx context.Context, status Status, limit int) ([]*Booking, error)
	AppendEvent(ctx context.Context, e *Event) error
}
