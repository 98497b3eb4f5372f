// README: Settlement engine: rating submission with idempotent tip capture,
// standalone tips, triage flags, and the partner payout read model.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sparkle/internal/errorx"
	"sparkle/internal/events"
	"sparkle/internal/modules/booking"
	"sparkle/internal/modules/pricing"
	"sparkle/internal/payments"
	"sparkle/internal/types"
)

var (
	ErrNotFound    = fmt.Errorf("rating not found: %w", errorx.ErrNotFound)
	ErrRated       = fmt.Errorf("booking already rated with a different key: %w", errorx.ErrConflict)
	ErrTipDeclined = fmt.Errorf("tip declined: %w", errorx.ErrPaymentDeclined)
)

// Capture retries cover transport failures only; a decline ends the attempt.
const (
	captureAttempts = 3
	captureBackoff  = 200 * time.Millisecond
)

// PaymentGateway is the slice of the payments gateway settlement needs.
type PaymentGateway interface {
	Capture(ctx context.Context, ref string, amount types.Money) error
}

// PayoutEngine splits a collected fare into the partner's take.
type PayoutEngine interface {
	Payout(ctx context.Context, fareTotal, surgeAmount types.Money) (pricing.PayoutBreakdown, error)
}

type Config struct {
	// HighTipCents marks the high_tip flag once captured tips exceed it.
	HighTipCents int64
	// DetailedFeedbackMinLen marks the detailed_feedback flag.
	DetailedFeedbackMinLen int
	// TipDeclineOverCents is the policy ceiling for standalone tips; larger
	// amounts are declined without touching the gateway.
	TipDeclineOverCents int64
}

type Service struct {
	store    Store
	bookings booking.Store
	gateway  PaymentGateway
	payout   PayoutEngine
	pub      events.Publisher
	cfg      Config
	log      *zap.Logger
}

func NewService(store Store, bookings booking.Store, gateway PaymentGateway, payout PayoutEngine, pub events.Publisher, cfg Config, log *zap.Logger) *Service {
	if cfg.HighTipCents == 0 {
		cfg.HighTipCents = 2000
	}
	if cfg.DetailedFeedbackMinLen == 0 {
		cfg.DetailedFeedbackMinLen = 80
	}
	if cfg.TipDeclineOverCents == 0 {
		cfg.TipDeclineOverCents = 50000
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, bookings: bookings, gateway: gateway, payout: payout, pub: pub, cfg: cfg, log: log}
}

type SubmitCustomerRatingCommand struct {
	BookingID      types.ID
	RaterID        types.ID
	Stars          int
	Compliments    []string
	Comment        string
	TipCents       int64
	IdempotencyKey string
}

type SubmitPartnerRatingCommand struct {
	BookingID      types.ID
	RaterID        types.ID
	Stars          int
	Notes          []string
	Comment        string
	IdempotencyKey string
}

type RatingResult struct {
	Rating *Rating `json:"rating"`
	Tip    *Tip    `json:"tip,omitempty"`
}

// SubmitCustomerRating records the customer's review of the partner and, when
// a tip rides along, captures it against the booking's payment intent. The
// whole submission is idempotent on the key: a replay returns the stored
// outcome and never re-attempts the capture. A tip decline does not roll the
// rating back.
func (s *Service) SubmitCustomerRating(ctx context.Context, cmd SubmitCustomerRatingCommand) (*RatingResult, error) {
	if cmd.TipCents < 0 {
		return nil, fmt.Errorf("negative tip: %w", errorx.ErrInvalidArgument)
	}
	b, err := s.ratedBooking(ctx, cmd.BookingID, cmd.Stars, cmd.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != cmd.RaterID {
		return nil, fmt.Errorf("only the booking customer may rate: %w", errorx.ErrForbidden)
	}
	if b.PartnerID == nil {
		return nil, fmt.Errorf("completed booking %s has no partner", b.ID)
	}

	stored, created, err := s.store.InsertRating(ctx, &Rating{
		BookingID:      b.ID,
		RaterType:      RaterCustomer,
		RaterID:        cmd.RaterID,
		RateeID:        *b.PartnerID,
		Stars:          cmd.Stars,
		Tags:           cmd.Compliments,
		Comment:        cmd.Comment,
		TipCents:       cmd.TipCents,
		IdempotencyKey: cmd.IdempotencyKey,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !created {
		if stored.IdempotencyKey != cmd.IdempotencyKey {
			return nil, ErrRated
		}
		return s.replayResult(ctx, stored)
	}

	s.publish(ctx, events.RatingSubmitted, stored)
	s.log.Info("customer rating submitted",
		zap.String("booking_id", string(b.ID)),
		zap.Int("stars", stored.Stars),
		zap.Int64("tip_cents", stored.TipCents),
	)

	res := &RatingResult{Rating: stored}
	if cmd.TipCents > 0 {
		tip, err := s.captureTip(ctx, b, types.USD(cmd.TipCents), cmd.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		res.Tip = tip
	}
	return res, nil
}

// SubmitPartnerRating records the partner's review of the customer. Same
// idempotency contract as the customer side, independent of it, no tip.
func (s *Service) SubmitPartnerRating(ctx context.Context, cmd SubmitPartnerRatingCommand) (*RatingResult, error) {
	b, err := s.ratedBooking(ctx, cmd.BookingID, cmd.Stars, cmd.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if b.PartnerID == nil || *b.PartnerID != cmd.RaterID {
		return nil, fmt.Errorf("only the assigned partner may rate: %w", errorx.ErrForbidden)
	}

	stored, created, err := s.store.InsertRating(ctx, &Rating{
		BookingID:      b.ID,
		RaterType:      RaterPartner,
		RaterID:        cmd.RaterID,
		RateeID:        b.CustomerID,
		Stars:          cmd.Stars,
		Tags:           cmd.Notes,
		Comment:        cmd.Comment,
		IdempotencyKey: cmd.IdempotencyKey,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !created {
		if stored.IdempotencyKey != cmd.IdempotencyKey {
			return nil, ErrRated
		}
		return &RatingResult{Rating: stored}, nil
	}

	s.publish(ctx, events.RatingSubmitted, stored)
	s.log.Info("partner rating submitted",
		zap.String("booking_id", string(b.ID)),
		zap.Int("stars", stored.Stars),
	)
	return &RatingResult{Rating: stored}, nil
}

// ratedBooking validates the shared submission preconditions and loads the
// booking a rating targets.
func (s *Service) ratedBooking(ctx context.Context, bookingID types.ID, stars int, key string) (*booking.Booking, error) {
	if stars < 1 || stars > 5 {
		return nil, fmt.Errorf("stars must be between 1 and 5: %w", errorx.ErrInvalidArgument)
	}
	if key == "" {
		return nil, fmt.Errorf("idempotency key required: %w", errorx.ErrInvalidArgument)
	}
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != booking.StatusCompleted {
		return nil, fmt.Errorf("booking not completed: %w", errorx.ErrPreconditionFailed)
	}
	return b, nil
}

// replayResult rebuilds the original submission outcome from stored rows.
func (s *Service) replayResult(ctx context.Context, stored *Rating) (*RatingResult, error) {
	res := &RatingResult{Rating: stored}
	if stored.TipCents == 0 {
		return res, nil
	}
	tips, err := s.store.TipsByBooking(ctx, stored.BookingID)
	if err != nil {
		return nil, err
	}
	for _, t := range tips {
		if t.IdempotencyKey != stored.IdempotencyKey {
			continue
		}
		if t.Status == TipDeclined {
			return nil, ErrTipDeclined
		}
		res.Tip = t
		return res, nil
	}
	// The first submission died between rating insert and capture. A replay
	// never re-captures; the gap needs manual reconciliation.
	return nil, fmt.Errorf("tip outcome unknown for booking %s: %w", stored.BookingID, errorx.ErrPreconditionFailed)
}

type CaptureTipCommand struct {
	BookingID      types.ID
	CustomerID     types.ID
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

// CaptureTip is the standalone post-rating tip path. Amounts above the policy
// ceiling are declined without a gateway call. A non-empty key makes the call
// idempotent; replays return the recorded tip.
func (s *Service) CaptureTip(ctx context.Context, cmd CaptureTipCommand) (*Tip, error) {
	if cmd.AmountCents <= 0 {
		return nil, fmt.Errorf("tip amount must be positive: %w", errorx.ErrInvalidArgument)
	}
	b, err := s.bookings.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != cmd.CustomerID {
		return nil, fmt.Errorf("only the booking customer may tip: %w", errorx.ErrForbidden)
	}
	if b.Status != booking.StatusCompleted {
		return nil, fmt.Errorf("booking not completed: %w", errorx.ErrPreconditionFailed)
	}
	currency := cmd.Currency
	if currency == "" {
		currency = b.Totals.Total.Currency
	}
	if currency != b.Totals.Total.Currency {
		return nil, fmt.Errorf("tip currency %s does not match booking: %w", currency, errorx.ErrInvalidArgument)
	}

	if cmd.IdempotencyKey != "" {
		tips, err := s.store.TipsByBooking(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range tips {
			if t.IdempotencyKey != cmd.IdempotencyKey {
				continue
			}
			if t.Status == TipDeclined {
				return nil, ErrTipDeclined
			}
			return t, nil
		}
	}

	amount := types.Money{Amount: cmd.AmountCents, Currency: currency}
	if cmd.AmountCents > s.cfg.TipDeclineOverCents {
		t := s.recordTip(ctx, b, amount, TipDeclined, cmd.IdempotencyKey)
		s.publish(ctx, events.TipFailed, t)
		return nil, ErrTipDeclined
	}
	return s.captureTip(ctx, b, amount, cmd.IdempotencyKey)
}

// captureTip runs exactly one logical capture against the booking's intent
// ref and records the outcome. Transport errors leave no record and surface
// to the caller; declines are recorded so replays never re-charge.
func (s *Service) captureTip(ctx context.Context, b *booking.Booking, amount types.Money, key string) (*Tip, error) {
	err := payments.WithRetry(ctx, captureAttempts, captureBackoff, func() error {
		return s.gateway.Capture(ctx, b.PaymentIntentRef, amount)
	})
	if err != nil && !errors.Is(err, errorx.ErrPaymentDeclined) {
		return nil, fmt.Errorf("capture tip: %w", err)
	}

	if err != nil {
		t := s.recordTip(ctx, b, amount, TipDeclined, key)
		s.publish(ctx, events.TipFailed, t)
		s.log.Info("tip declined",
			zap.String("booking_id", string(b.ID)),
			zap.Int64("amount_cents", amount.Amount),
		)
		return nil, ErrTipDeclined
	}

	t := s.recordTip(ctx, b, amount, TipCaptured, key)
	s.publish(ctx, events.TipCaptured, t)
	s.log.Info("tip captured",
		zap.String("booking_id", string(b.ID)),
		zap.Int64("amount_cents", amount.Amount),
	)
	return t, nil
}

func (s *Service) recordTip(ctx context.Context, b *booking.Booking, amount types.Money, status TipStatus, key string) *Tip {
	t := &Tip{
		ID:             types.NewID(),
		BookingID:      b.ID,
		Amount:         amount,
		Status:         status,
		Ref:            b.PaymentIntentRef,
		IdempotencyKey: key,
		CreatedAt:      time.Now(),
	}
	if err := s.store.InsertTip(ctx, t); err != nil {
		s.log.Error("record tip",
			zap.Error(err),
			zap.String("booking_id", string(b.ID)),
			zap.String("status", string(status)),
		)
	}
	return t
}

// Flags derives the triage read model for one booking.
func (s *Service) Flags(ctx context.Context, bookingID types.ID) (*Flags, error) {
	if _, err := s.bookings.Get(ctx, bookingID); err != nil {
		return nil, err
	}
	f := &Flags{BookingID: bookingID}

	if r, err := s.store.GetRating(ctx, bookingID, RaterCustomer); err == nil {
		f.LowCustomerRating = r.Stars <= 2
		f.DetailedFeedback = len(r.Comment) > s.cfg.DetailedFeedbackMinLen
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if r, err := s.store.GetRating(ctx, bookingID, RaterPartner); err == nil {
		f.LowPartnerRating = r.Stars <= 2
		f.DetailedFeedback = f.DetailedFeedback || len(r.Comment) > s.cfg.DetailedFeedbackMinLen
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	tips, err := s.store.TipsByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	var captured int64
	for _, t := range tips {
		if t.Status == TipCaptured {
			captured += t.Amount.Amount
		}
	}
	f.HighTip = captured > s.cfg.HighTipCents
	return f, nil
}

// PayoutFor quotes the assigned partner's take for a completed booking.
func (s *Service) PayoutFor(ctx context.Context, bookingID, partnerID types.ID) (pricing.PayoutBreakdown, error) {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return pricing.PayoutBreakdown{}, err
	}
	if b.PartnerID == nil || *b.PartnerID != partnerID {
		return pricing.PayoutBreakdown{}, fmt.Errorf("payout is visible to the assigned partner only: %w", errorx.ErrForbidden)
	}
	if b.Status != booking.StatusCompleted {
		return pricing.PayoutBreakdown{}, fmt.Errorf("booking not completed: %w", errorx.ErrPreconditionFailed)
	}
	return s.payout.Payout(ctx, b.Totals.FareSubtotal(), b.Totals.Surge)
}

func (s *Service) publish(ctx context.Context, key string, v any) {
	if err := s.pub.Publish(ctx, key, v); err != nil {
		s.log.Warn("publish event", zap.String("routing_key", key), zap.Error(err))
	}
}
