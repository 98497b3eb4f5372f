// README: Settlement unit tests: rating idempotency, tip capture accounting,
// flags, and the payout read model.
package settlement

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sparkle/internal/errorx"
	"sparkle/internal/modules/booking"
	"sparkle/internal/modules/pricing"
	"sparkle/internal/payments"
	"sparkle/internal/types"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// flakyGateway fails Capture with a transport error a fixed number of times,
// then succeeds.
type flakyGateway struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (g *flakyGateway) Capture(context.Context, string, types.Money) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.calls <= g.fails {
		return errors.New("gateway timeout")
	}
	return nil
}

func (g *flakyGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type testDeps struct {
	store    *MemoryStore
	bookings *booking.MemoryStore
	gateway  *payments.SimGateway
}

func testPayout() *pricing.Service {
	return pricing.NewService(pricing.NoSurge{},
		decimal.RequireFromString("0.25"), decimal.RequireFromString("0.80"))
}

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	d := &testDeps{
		store:    NewMemoryStore(),
		bookings: booking.NewMemoryStore(),
		gateway:  payments.NewSimGateway(0),
	}
	svc := NewService(d.store, d.bookings, d.gateway, testPayout(), nil, Config{}, nil)
	return svc, d
}

// seedCompletedBooking inserts a finished 1BR/1BA booking for customer c1 and
// partner p1. Fare parts: base 9000 + rooms 2700, no surge.
func seedCompletedBooking(t *testing.T, store *booking.MemoryStore, id types.ID, intentRef string) *booking.Booking {
	t.Helper()
	now := time.Now()
	partner := types.ID("p1")
	b := &booking.Booking{
		ID:         id,
		CustomerID: "c1",
		PartnerID:  &partner,
		Spec: booking.ServiceSpec{
			ServiceType: pricing.ServiceStandard,
			Bedrooms:    1,
			Bathrooms:   1,
		},
		Totals: booking.Totals{
			Base:           types.USD(9000),
			RoomAdjustment: types.USD(2700),
			Total:          types.USD(11700),
		},
		PaymentIntentRef: intentRef,
		Status:           booking.StatusCompleted,
		CreatedAt:        now,
		CompletedAt:      &now,
	}
	if err := store.Create(context.Background(), b); err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return b
}

func customerRating(bookingID types.ID, stars int, tipCents int64, key string) SubmitCustomerRatingCommand {
	return SubmitCustomerRatingCommand{
		BookingID:      bookingID,
		RaterID:        "c1",
		Stars:          stars,
		Compliments:    []string{"thorough"},
		Comment:        "spotless kitchen",
		TipCents:       tipCents,
		IdempotencyKey: key,
	}
}

// ---------------------------------------------------------------------------
// SubmitCustomerRating
// ---------------------------------------------------------------------------

func TestSubmitCustomerRatingValidation(t *testing.T) {
	svc, d := newTestService(t)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_settle")

	cases := []struct {
		name string
		cmd  SubmitCustomerRatingCommand
	}{
		{"zero stars", customerRating("bk1", 0, 0, "k1")},
		{"six stars", customerRating("bk1", 6, 0, "k1")},
		{"missing key", customerRating("bk1", 5, 0, "")},
		{"negative tip", customerRating("bk1", 5, -100, "k1")},
	}
	for _, tc := range cases {
		if _, err := svc.SubmitCustomerRating(context.Background(), tc.cmd); !errors.Is(err, errorx.ErrInvalidArgument) {
			t.Fatalf("%s: expected invalid argument, got %v", tc.name, err)
		}
	}
	if n := d.gateway.CallCount("capture"); n != 0 {
		t.Fatalf("expected no captures for rejected submissions, got %d", n)
	}
}

func TestSubmitCustomerRatingStoresAndCapturesTip(t *testing.T) {
	svc, d := newTestService(t)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_settle")

	res, err := svc.SubmitCustomerRating(context.Background(), customerRating("bk1", 5, 1500, "rate-1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Rating.Stars != 5 || res.Rating.RateeID != "p1" {
		t.Fatalf("unexpected rating: %+v", res.Rating)
	}
	if res.Tip == nil || res.Tip.Status != TipCaptured || res.Tip.Amount.Amount != 1500 {
		t.Fatalf("unexpected tip: %+v", res.Tip)
	}
	if n := d.gateway.CallCount("capture"); n != 1 {
		t.Fatalf("expected exactly one capture, got %d", n)
	}

	stored, err := d.store.GetRating(context.Background(), "bk1", RaterCustomer)
	if err != nil {
		t.Fatalf("get rating: %v", err)
	}
	if stored.Stars != 5 || stored.TipCents != 1500 {
		t.Fatalf("unexpected stored rating: %+v", stored)
	}
}

func TestSubmitCustomerRatingReplaySameKey(t *testing.T) {
	svc, d := newTestService(t)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_settle")
	ctx := context.Background()

	if _, err := svc.SubmitCustomerRating(ctx, customerRating("bk1", 5, 1500, "rate-1")); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	res, err := svc.SubmitCustomerRating(ctx, customerRating("bk1", 5, 1500, "rate-1"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Rating.Stars != 5 {
		t.Fatalf("replay lost the rating: %+v", res.Rating)
	}
	if res.Tip == nil || res.Tip.Status != TipCaptured {
		t.Fatalf("replay lost the tip: %+v", res.Tip)
	}
	if n := d.gateway.CallCount("capture"); n != 1 {
		t.Fatalf("replay must not re-capture, got %d captures", n)
	}
}

func TestSubmitCustomerRatingDifferentKeyConflicts(t *testing.T) {
	svc, d := newTestService(t)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_settle")
	ctx := context.Background()

	if _, err := svc.SubmitCustomerRating(ctx, customerRating("bk1", 5, 0, "rate-1")); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := svc.SubmitCustomerRating(ctx, customerRating("bk1", 1, 500, "rate-2")); !errors.Is(err, errorx.ErrConflict) {
		t.Fatalf("expected conflict for a second key, got %v", err)
	}
	if n := d.gateway.CallCount("capture"); n != 0 {
		t.Fatalf("conflicting submission must not capture, got %d", n)
	}

	stored, err := d.store.GetRating(ctx, "bk1", RaterCustomer)
	if err != nil {
		t.Fatalf("get rating: %v", err)
	}
	if stored.Stars != 5 {
		t.Fatalf("conflict overwrote the stored rating: %+v", stored)
	}
}

func TestSubmitCustomerRatingRequiresCompletedBooking(t *testing.T) {
	svc, d := newTestService(t)
	ctx := context.Background()

	waiting := &booking.Booking{
		ID:               "bk1",
		CustomerID:       "c1",
		Status:           booking.StatusAwaitingReview,
		PaymentIntentRef: "sim_intent_settle",
	}
	if err := d.bookings.Create(ctx, waiting); err != nil {
		t.Fatalf("seed waiting booking: %v", err)
	}
	if _, err := svc.SubmitCustomerRating(ctx, customerRating("bk1", 5, 0, "k1")); !errors.Is(err, errorx.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failed before completion, got %v", err)
	}
	if _, err := svc.SubmitCustomerRating(ctx, customerRating("missing", 5, 0, "k1")); !errors.Is(err, errorx.ErrNotFound) {
		t.Fatalf("expected not found for unknown booking, got %v", err)
	}
}

func TestSubmitCustomerRatingOwnership(t *testing.T) {
	svc, d := newTestService(t)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_settle")

	cmd := customerRating("bk1", 5, 0, "k1")
	cmd.RaterID = "c2"
	if _, err := svc.SubmitCustomerRating(context.Background(), cmd); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("expected forbidden for a stranger, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Tip failure paths
// ---------------------------------------------------------------------------

// A gateway decline keeps the rating, records the tip as declined, and a
// replay with the same key never re-attempts the capture.
func TestDeclinedTipKeepsRating(t *testing.T) {
	svc, d := newTestService(t)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_"+payments.DeclineMarker)
	ctx := context.Background()

	_, err := svc.SubmitCustomerRating(ctx, customerRating("bk1", 4, 2500, "rate-1"))
	if !errors.Is(err, errorx.ErrPaymentDeclined) {
		t.Fatalf("expected payment declined, got %v", err)
	}
	if _, err := d.store.GetRating(ctx, "bk1", RaterCustomer); err != nil {
		t.Fatalf("decline must not roll the rating back: %v", err)
	}
	tips, err := d.store.TipsByBooking(ctx, "bk1")
	if err != nil {
		t.Fatalf("tips: %v", err)
	}
	if len(tips) != 1 || tips[0].Status != TipDeclined {
		t.Fatalf("expected one declined tip, got %+v", tips)
	}
	if n := d.gateway.CallCount("capture"); n != 1 {
		t.Fatalf("expected exactly one capture attempt, got %d", n)
	}

	_, err = svc.SubmitCustomerRating(ctx, customerRating("bk1", 4, 2500, "rate-1"))
	if !errors.Is(err, errorx.ErrPaymentDeclined) {
		t.Fatalf("replay should surface the original decline, got %v", err)
	}
	if n := d.gateway.CallCount("capture"); n != 1 {
		t.Fatalf("replay must not re-capture, got %d", n)
	}
}

func TestTipTransportRetry(t *testing.T) {
	d := &testDeps{store: NewMemoryStore(), bookings: booking.NewMemoryStore()}
	gw := &flakyGateway{fails: 2}
	svc := NewService(d.store, d.bookings, gw, testPayout(), nil, Config{}, nil)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_settle")

	res, err := svc.SubmitCustomerRating(context.Background(), customerRating("bk1", 5, 1200, "rate-1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Tip == nil || res.Tip.Status != TipCaptured {
		t.Fatalf("expected captured tip after retries, got %+v", res.Tip)
	}
	if gw.callCount() != 3 {
		t.Fatalf("expected 2 retries then success, got %d calls", gw.callCount())
	}
}

func TestTipTransportFailureLeavesNoTipRecord(t *testing.T) {
	d := &testDeps{store: NewMemoryStore(), bookings: booking.NewMemoryStore()}
	gw := &flakyGateway{fails: 100}
	svc := NewService(d.store, d.bookings, gw, testPayout(), nil, Config{}, nil)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_settle")
	ctx := context.Background()

	_, err := svc.SubmitCustomerRating(ctx, customerRating("bk1", 5, 1200, "rate-1"))
	if err == nil || errors.Is(err, errorx.ErrPaymentDeclined) {
		t.Fatalf("expected a transport failure, got %v", err)
	}
	if _, err := d.store.GetRating(ctx, "bk1", RaterCustomer); err != nil {
		t.Fatalf("rating should survive the transport failure: %v", err)
	}
	tips, _ := d.store.TipsByBooking(ctx, "bk1")
	if len(tips) != 0 {
		t.Fatalf("transport failure must not record a tip, got %+v", tips)
	}

	attempts := gw.callCount()
	_, err = svc.SubmitCustomerRating(ctx, customerRating("bk1", 5, 1200, "rate-1"))
	if !errors.Is(err, errorx.ErrPreconditionFailed) {
		t.Fatalf("replay with an unresolved tip should fail loudly, got %v", err)
	}
	if gw.callCount() != attempts {
		t.Fatalf("replay must not retry the capture, got %d extra calls", gw.callCount()-attempts)
	}
}

// ---------------------------------------------------------------------------
// SubmitPartnerRating
// ---------------------------------------------------------------------------

func TestSubmitPartnerRating(t *testing.T) {
	svc, d := newTestService(t)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_settle")
	ctx := context.Background()

	cmd := SubmitPartnerRatingCommand{
		BookingID:      "bk1",
		RaterID:        "p1",
		Stars:          4,
		Notes:          []string{"polite"},
		Comment:        "easy access",
		IdempotencyKey: "pr-1",
	}
	res, err := svc.SubmitPartnerRating(ctx, cmd)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Rating.RateeID != "c1" || res.Rating.RaterType != RaterPartner {
		t.Fatalf("unexpected rating: %+v", res.Rating)
	}

	if _, err := svc.SubmitPartnerRating(ctx, cmd); err != nil {
		t.Fatalf("replay: %v", err)
	}
	cmd.IdempotencyKey = "pr-2"
	if _, err := svc.SubmitPartnerRating(ctx, cmd); !errors.Is(err, errorx.ErrConflict) {
		t.Fatalf("expected conflict for a second key, got %v", err)
	}

	cmd.RaterID = "c1"
	cmd.IdempotencyKey = "pr-3"
	if _, err := svc.SubmitPartnerRating(ctx, cmd); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("expected forbidden for the customer, got %v", err)
	}
}

// The two sides rate independently; one side's record never blocks the other.
func TestRatingSidesAreIndependent(t *testing.T) {
	svc, d := newTestService(t)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_settle")
	ctx := context.Background()

	if _, err := svc.SubmitCustomerRating(ctx, customerRating("bk1", 5, 0, "cr-1")); err != nil {
		t.Fatalf("customer submit: %v", err)
	}
	if _, err := svc.SubmitPartnerRating(ctx, SubmitPartnerRatingCommand{
		BookingID: "bk1", RaterID: "p1", Stars: 3, IdempotencyKey: "pr-1",
	}); err != nil {
		t.Fatalf("partner submit: %v", err)
	}

	cr, err := d.store.GetRating(ctx, "bk1", RaterCustomer)
	if err != nil || cr.Stars != 5 {
		t.Fatalf("customer rating lost: %+v %v", cr, err)
	}
	pr, err := d.store.GetRating(ctx, "bk1", RaterPartner)
	if err != nil || pr.Stars != 3 {
		t.Fatalf("partner rating lost: %+v %v", pr, err)
	}
}

// ---------------------------------------------------------------------------
// CaptureTip
// ---------------------------------------------------------------------------

func TestCaptureTipStandalone(t *testing.T) {
	svc, d := newTestService(t)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_settle")
	ctx := context.Background()

	cmd := CaptureTipCommand{BookingID: "bk1", CustomerID: "c1", AmountCents: 1000, IdempotencyKey: "tip-1"}
	tip, err := svc.CaptureTip(ctx, cmd)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if tip.Status != TipCaptured || tip.Amount.Amount != 1000 {
		t.Fatalf("unexpected tip: %+v", tip)
	}

	again, err := svc.CaptureTip(ctx, cmd)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if again.ID != tip.ID {
		t.Fatalf("replay created a second tip: %s vs %s", again.ID, tip.ID)
	}
	if n := d.gateway.CallCount("capture"); n != 1 {
		t.Fatalf("expected one capture across replays, got %d", n)
	}
}

func TestCaptureTipPolicyDecline(t *testing.T) {
	svc, d := newTestService(t)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_settle")
	ctx := context.Background()

	_, err := svc.CaptureTip(ctx, CaptureTipCommand{
		BookingID: "bk1", CustomerID: "c1", AmountCents: 60000, IdempotencyKey: "tip-big",
	})
	if !errors.Is(err, errorx.ErrPaymentDeclined) {
		t.Fatalf("expected policy decline, got %v", err)
	}
	if n := d.gateway.CallCount("capture"); n != 0 {
		t.Fatalf("policy decline must not reach the gateway, got %d calls", n)
	}
	tips, _ := d.store.TipsByBooking(ctx, "bk1")
	if len(tips) != 1 || tips[0].Status != TipDeclined {
		t.Fatalf("expected one declined tip on record, got %+v", tips)
	}
}

func TestCaptureTipValidation(t *testing.T) {
	svc, d := newTestService(t)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_settle")
	live := &booking.Booking{ID: "bk2", CustomerID: "c1", Status: booking.StatusInProgress}
	if err := d.bookings.Create(context.Background(), live); err != nil {
		t.Fatalf("seed live booking: %v", err)
	}
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  CaptureTipCommand
		want error
	}{
		{"zero amount", CaptureTipCommand{BookingID: "bk1", CustomerID: "c1"}, errorx.ErrInvalidArgument},
		{"currency mismatch", CaptureTipCommand{BookingID: "bk1", CustomerID: "c1", AmountCents: 500, Currency: "EUR"}, errorx.ErrInvalidArgument},
		{"stranger", CaptureTipCommand{BookingID: "bk1", CustomerID: "c9", AmountCents: 500}, errorx.ErrForbidden},
		{"not completed", CaptureTipCommand{BookingID: "bk2", CustomerID: "c1", AmountCents: 500}, errorx.ErrPreconditionFailed},
	}
	for _, tc := range cases {
		if _, err := svc.CaptureTip(ctx, tc.cmd); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Flags and payout
// ---------------------------------------------------------------------------

func TestFlags(t *testing.T) {
	svc, d := newTestService(t)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_settle")
	ctx := context.Background()

	long := customerRating("bk1", 2, 2500, "cr-1")
	long.Comment = strings.Repeat("dusty shelves and a sticky floor, ", 4)
	if _, err := svc.SubmitCustomerRating(ctx, long); err != nil {
		t.Fatalf("customer submit: %v", err)
	}
	if _, err := svc.SubmitPartnerRating(ctx, SubmitPartnerRatingCommand{
		BookingID: "bk1", RaterID: "p1", Stars: 5, Comment: "fine", IdempotencyKey: "pr-1",
	}); err != nil {
		t.Fatalf("partner submit: %v", err)
	}

	f, err := svc.Flags(ctx, "bk1")
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	if !f.LowCustomerRating || f.LowPartnerRating {
		t.Fatalf("unexpected rating flags: %+v", f)
	}
	if !f.HighTip {
		t.Fatalf("2500 tip should trip high_tip: %+v", f)
	}
	if !f.DetailedFeedback {
		t.Fatalf("long comment should trip detailed_feedback: %+v", f)
	}

	seedCompletedBooking(t, d.bookings, "bk2", "sim_intent_settle")
	f, err = svc.Flags(ctx, "bk2")
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	if f.LowCustomerRating || f.LowPartnerRating || f.HighTip || f.DetailedFeedback {
		t.Fatalf("unrated booking should carry no flags: %+v", f)
	}
}

func TestPayoutFor(t *testing.T) {
	svc, d := newTestService(t)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_settle")
	ctx := context.Background()

	pb, err := svc.PayoutFor(ctx, "bk1", "p1")
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	// 11700 fare, no surge, 25% take.
	if pb.Net.Amount != 8775 || pb.SurgeShare.Amount != 0 {
		t.Fatalf("unexpected breakdown: %+v", pb)
	}

	if _, err := svc.PayoutFor(ctx, "bk1", "p2"); !errors.Is(err, errorx.ErrForbidden) {
		t.Fatalf("expected forbidden for another partner, got %v", err)
	}

	live := &booking.Booking{ID: "bk2", CustomerID: "c1", Status: booking.StatusInProgress}
	partner := types.ID("p1")
	live.PartnerID = &partner
	if err := d.bookings.Create(ctx, live); err != nil {
		t.Fatalf("seed live booking: %v", err)
	}
	if _, err := svc.PayoutFor(ctx, "bk2", "p1"); !errors.Is(err, errorx.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failed before completion, got %v", err)
	}
}

func TestPayoutForIncludesSurgeShare(t *testing.T) {
	svc, d := newTestService(t)
	ctx := context.Background()

	partner := types.ID("p1")
	now := time.Now()
	b := &booking.Booking{
		ID:         "bk-surge",
		CustomerID: "c1",
		PartnerID:  &partner,
		Totals: booking.Totals{
			Base:           types.USD(9000),
			RoomAdjustment: types.USD(2700),
			Surge:          types.USD(2000),
			Total:          types.USD(13700),
		},
		Status:      booking.StatusCompleted,
		CreatedAt:   now,
		CompletedAt: &now,
	}
	if err := d.bookings.Create(ctx, b); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	pb, err := svc.PayoutFor(ctx, "bk-surge", "p1")
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	// base (13700-2000)*0.75 = 8775, share 2000*0.80 = 1600.
	if pb.Base.Amount != 8775 || pb.SurgeShare.Amount != 1600 || pb.Net.Amount != 10375 {
		t.Fatalf("unexpected breakdown: %+v", pb)
	}
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

// Distinct-key submissions racing on one booking produce exactly one stored
// rating; every loser sees a conflict.
func TestConcurrentRatingSubmissionsOneWinner(t *testing.T) {
	svc, d := newTestService(t)
	seedCompletedBooking(t, d.bookings, "bk1", "sim_intent_settle")
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := customerRating("bk1", i%5+1, 0, "key-"+string(rune('a'+i)))
			_, err := svc.SubmitCustomerRating(ctx, cmd)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	wins, conflicts := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, errorx.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 winner and %d conflicts, got %d and %d", n-1, wins, conflicts)
	}
	if _, err := d.store.GetRating(ctx, "bk1", RaterCustomer); err != nil {
		t.Fatalf("winner's rating missing: %v", err)
	}
}
