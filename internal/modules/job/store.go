// README: Job store contract.
package job

import (
	"context"

	"sparkle/internal/modules/booking"
	"sparkle/internal/types"
)

type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, bookingID types.ID) (*Job, error)

	// UpdateStatus is the job-side CAS. detail lands as the pause reason when
	// moving to paused and as the dispute ticket when moving to disputed;
	// resuming clears the pause reason.
	UpdateStatus(ctx context.Context, bookingID types.ID, from, to booking.Status, version int, detail *string) (bool, error)

	// SetVerification replaces the identity-check session wholesale.
	SetVerification(ctx context.Context, bookingID types.ID, v Verification) error

	AddPhotos(ctx context.Context, bookingID types.ID, kind PhotoKind, urls []string) error
}
