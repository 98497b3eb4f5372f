// README: Simulator gateway determinism and retry-policy tests.
package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"sparkle/internal/errorx"
	"sparkle/internal/types"
)

func TestSimGatewayAuthorizeAndCapture(t *testing.T) {
	g := NewSimGateway(0)
	ctx := context.Background()

	ref, err := g.Authorize(ctx, types.USD(30000), "tok_visa")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if ref == "" {
		t.Fatal("expected non-empty intent ref")
	}
	if err := g.Capture(ctx, ref, types.USD(30000)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if got := g.CallCount("capture"); got != 1 {
		t.Errorf("capture calls = %d, want 1", got)
	}
}

func TestSimGatewayDeclinesByMarker(t *testing.T) {
	g := NewSimGateway(0)
	_, err := g.Authorize(context.Background(), types.USD(1000), "tok_declined")
	if !errors.Is(err, errorx.ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}
}

func TestSimGatewayDeclinesOverThreshold(t *testing.T) {
	g := NewSimGateway(50000)
	ctx := context.Background()

	if err := g.Capture(ctx, "sim_intent_1", types.USD(50001)); !errors.Is(err, errorx.ErrPaymentDeclined) {
		t.Fatalf("expected decline above threshold, got %v", err)
	}
	if err := g.Capture(ctx, "sim_intent_1", types.USD(50000)); err != nil {
		t.Fatalf("capture at threshold: %v", err)
	}
}

func TestWithRetryDoesNotRetryDeclines(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return errorx.ErrPaymentDeclined
	})
	if !errors.Is(err, errorx.ErrPaymentDeclined) {
		t.Fatalf("expected decline to propagate, got %v", err)
	}
	if calls != 1 {
		t.Errorf("decline retried: %d calls, want 1", calls)
	}
}

func TestWithRetryRetriesTransportErrors(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryBounded(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return errors.New("still down")
	})
	if err == nil {
		t.Fatal("expected error after bounded retries")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
