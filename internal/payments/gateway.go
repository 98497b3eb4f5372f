// README: Payment gateway abstraction; authorize/capture/void/refund on opaque intent refs.
package payments

import (
	"context"
	"errors"
	"time"

	"sparkle/internal/errorx"
	"sparkle/internal/types"
)

// Gateway moves money against an opaque intent reference. Declines surface as
// errorx.ErrPaymentDeclined; any other error is a transport failure.
type Gateway interface {
	Authorize(ctx context.Context, amount types.Money, instrument string) (ref string, err error)
	Capture(ctx context.Context, ref string, amount types.Money) error
	Void(ctx context.Context, ref string) error
	Refund(ctx context.Context, ref string, amount types.Money) error
}

// WithRetry runs fn up to attempts times, backing off between tries. Declines
// are terminal and never retried; only transport errors are.
func WithRetry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || errors.Is(err, errorx.ErrPaymentDeclined) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
