// README: Settlement persistence: first-writer-wins ratings plus tip records.
package settlement

import (
	"context"

	"sparkle/internal/types"
)

// Store keeps settlement records. Ratings are immutable once inserted;
// InsertRating must resolve concurrent submissions to exactly one winner.
type Store interface {
	// InsertRating persists r unless a rating of the same side already exists
	// for the booking. It returns the stored row either way; created reports
	// whether r won the insert.
	InsertRating(ctx context.Context, r *Rating) (stored *Rating, created bool, err error)

	// GetRating returns the rating for one side of a booking, ErrNotFound
	// when that side has not rated yet.
	GetRating(ctx context.Context, bookingID types.ID, side RaterType) (*Rating, error)

	InsertTip(ctx context.Context, t *Tip) error

	// TipsByBooking returns every recorded tip for a booking, oldest first.
	TipsByBooking(ctx context.Context, bookingID types.ID) ([]*Tip, error)
}
