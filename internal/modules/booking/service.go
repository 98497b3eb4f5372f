// README: Booking service: checkout with payment authorization, tiered cancellation.
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sparkle/internal/errorx"
	"sparkle/internal/events"
	"sparkle/internal/modules/pricing"
	"sparkle/internal/types"
)

var (
	ErrNotFound      = fmt.Errorf("booking not found: %w", errorx.ErrNotFound)
	ErrInvalidState  = fmt.Errorf("invalid booking state transition: %w", errorx.ErrConflict)
	ErrConflict      = fmt.Errorf("booking state conflict: %w", errorx.ErrConflict)
	ErrActiveBooking = fmt.Errorf("customer already has an active booking: %w", errorx.ErrConflict)
)

type Pricing interface {
	Quote(ctx context.Context, cmd pricing.QuoteCommand) (pricing.Quote, error)
}

type PaymentGateway interface {
	Authorize(ctx context.Context, amount types.Money, instrument string) (string, error)
	Capture(ctx context.Context, ref string, amount types.Money) error
	Void(ctx context.Context, ref string) error
}

// Dispatcher kicks off the first offer round right after checkout. Optional:
// the dispatch sweep also picks up pending bookings.
type Dispatcher interface {
	CreateOffer(ctx context.Context, bookingID types.ID) error
}

type Config struct {
	FreeWindow     time.Duration
	TierAThreshold time.Duration
	TierAFeeCents  int64
	TierBFeeCents  int64
	TaxRate        decimal.Decimal
}

type Service struct {
	store      Store
	pricing    Pricing
	gateway    PaymentGateway
	dispatcher Dispatcher
	pub        events.Publisher
	cfg        Config
	log        *zap.Logger
}

func NewService(store Store, pricing Pricing, gateway PaymentGateway, pub events.Publisher, cfg Config, log *zap.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, pricing: pricing, gateway: gateway, pub: pub, cfg: cfg, log: log}
}

// SetDispatcher wires the dispatch coordinator after both services exist.
func (s *Service) SetDispatcher(d Dispatcher) { s.dispatcher = d }

type CheckoutCommand struct {
	CustomerID  types.ID
	Spec        ServiceSpec
	Address     Address
	ScheduledAt *time.Time
	Instrument  string
	PromoCode   string
	PromoCents  int64
	CreditCents int64
}

func (s *Service) Checkout(ctx context.Context, cmd CheckoutCommand) (*Booking, error) {
	if cmd.CustomerID == "" {
		return nil, fmt.Errorf("missing customer id: %w", errorx.ErrInvalidArgument)
	}
	if cmd.PromoCents < 0 || cmd.CreditCents < 0 {
		return nil, fmt.Errorf("negative promo or credit amount: %w", errorx.ErrInvalidArgument)
	}
	if cmd.ScheduledAt != nil && cmd.ScheduledAt.Before(time.Now()) {
		return nil, fmt.Errorf("scheduled time in the past: %w", errorx.ErrInvalidArgument)
	}
	active, err := s.store.HasActiveByCustomer(ctx, cmd.CustomerID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrActiveBooking
	}

	now := time.Now()
	when := now
	if cmd.ScheduledAt != nil {
		when = *cmd.ScheduledAt
	}
	q, err := s.pricing.Quote(ctx, pricing.QuoteCommand{
		ServiceType:     cmd.Spec.ServiceType,
		Bedrooms:        cmd.Spec.Bedrooms,
		Bathrooms:       cmd.Spec.Bathrooms,
		Masters:         cmd.Spec.Masters,
		DwellingType:    cmd.Spec.DwellingType,
		AddOns:          cmd.Spec.AddOns,
		ReferencePhotos: cmd.Spec.ReferencePhotos,
		Zone:            cmd.Address.Zone,
		When:            when,
	})
	if err != nil {
		return nil, err
	}

	tax := decimal.NewFromInt(q.Total.Amount).Mul(s.cfg.TaxRate).RoundBank(0).IntPart()
	total := q.Total.Amount + tax - cmd.PromoCents - cmd.CreditCents
	if total < 0 {
		total = 0
	}

	intentRef, err := s.gateway.Authorize(ctx, types.USD(total), cmd.Instrument)
	if err != nil {
		return nil, err
	}

	status := StatusPendingDispatch
	if cmd.ScheduledAt != nil {
		status = StatusScheduled
	}
	b := &Booking{
		ID:          types.NewID(),
		CustomerID:  cmd.CustomerID,
		Spec:        cmd.Spec,
		Address:     cmd.Address,
		ScheduledAt: cmd.ScheduledAt,
		Totals: Totals{
			Base:               q.Base,
			RoomAdjustment:     q.RoomAdjustment,
			DwellingAdjustment: q.DwellingAdjustment,
			AddOns:             q.AddOnTotal,
			Surge:              q.SurgeAmount,
			Tax:                types.USD(tax),
			Promo:              types.USD(cmd.PromoCents),
			Credits:            types.USD(cmd.CreditCents),
			Total:              types.USD(total),
		},
		SurgeMultiplier:  q.SurgeMultiplier,
		DurationMins:     q.DurationMins,
		PaymentIntentRef: intentRef,
		PromoCode:        cmd.PromoCode,
		Status:           status,
		StatusVersion:    0,
		CreatedAt:        now,
	}
	if err := s.store.Create(ctx, b); err != nil {
		if verr := s.gateway.Void(ctx, intentRef); verr != nil {
			s.log.Warn("void after failed create", zap.String("intent", intentRef), zap.Error(verr))
		}
		return nil, err
	}
	_ = s.store.AppendEvent(ctx, &Event{
		BookingID:  b.ID,
		FromStatus: StatusNone,
		ToStatus:   status,
		ActorType:  "customer",
		ActorID:    &cmd.CustomerID,
		CreatedAt:  now,
	})
	s.publish(ctx, events.BookingCreated, b)

	if status == StatusPendingDispatch && s.dispatcher != nil {
		if err := s.dispatcher.CreateOffer(ctx, b.ID); err != nil {
			s.log.Warn("initial dispatch failed, sweep will retry",
				zap.String("booking_id", string(b.ID)), zap.Error(err))
		} else if fresh, err := s.store.Get(ctx, b.ID); err == nil {
			b = fresh
		}
	}
	return b, nil
}

type CancelCommand struct {
	BookingID types.ID
	ActorID   types.ID
	Reason    string
}

type CancelResult struct {
	Fee          types.Money `json:"fee"`
	RefundCredit types.Money `json:"refund_credit"`
}

// Cancel is legal strictly before assignment. The fee depends only on how
// long ago the booking was created; thresholds and amounts come from config.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*CancelResult, error) {
	if cmd.Reason == "" {
		return nil, fmt.Errorf("missing cancellation reason: %w", errorx.ErrInvalidArgument)
	}
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if cmd.ActorID != "" && b.CustomerID != cmd.ActorID {
		return nil, fmt.Errorf("booking belongs to another customer: %w", errorx.ErrForbidden)
	}
	if !CanTransition(b.Status, StatusCancelled) {
		return nil, ErrConflict
	}

	fee := CancellationFee(time.Since(b.CreatedAt), s.cfg)
	refund := b.Totals.Total.Amount - fee
	if refund < 0 {
		refund = 0
	}

	ok, err := s.store.UpdateStatus(ctx, b.ID, b.Status, StatusCancelled, b.StatusVersion, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	if err := s.store.UpdateCancellation(ctx, b.ID, fee, refund, cmd.Reason); err != nil {
		s.log.Error("record cancellation outcome", zap.String("booking_id", string(b.ID)), zap.Error(err))
	}

	if b.PaymentIntentRef != "" {
		if fee > 0 {
			if err := s.gateway.Capture(ctx, b.PaymentIntentRef, types.USD(fee)); err != nil {
				s.log.Warn("cancellation fee capture failed",
					zap.String("booking_id", string(b.ID)), zap.Error(err))
			}
		} else if err := s.gateway.Void(ctx, b.PaymentIntentRef); err != nil {
			s.log.Warn("void on cancellation failed",
				zap.String("booking_id", string(b.ID)), zap.Error(err))
		}
	}

	_ = s.store.AppendEvent(ctx, &Event{
		BookingID:  b.ID,
		FromStatus: b.Status,
		ToStatus:   StatusCancelled,
		ActorType:  "customer",
		ActorID:    &b.CustomerID,
		CreatedAt:  time.Now(),
	})
	s.publish(ctx, events.BookingCancelled, map[string]any{
		"booking_id": b.ID, "fee_cents": fee, "refund_credit_cents": refund,
	})
	return &CancelResult{Fee: types.USD(fee), RefundCredit: types.USD(refund)}, nil
}

// CancellationFee maps elapsed time since creation to a fee in cents:
// free window, tier A, then tier B.
func CancellationFee(elapsed time.Duration, cfg Config) int64 {
	switch {
	case elapsed < cfg.FreeWindow:
		return 0
	case elapsed < cfg.TierAThreshold:
		return cfg.TierAFeeCents
	default:
		return cfg.TierBFeeCents
	}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByStatus(ctx context.Context, status Status, limit int) ([]*Booking, error) {
	return s.store.ListByStatus(ctx, status, limit)
}

func (s *Service) publish(ctx context.Context, key string, v any) {
	if err := s.pub.Publish(ctx, key, v); err != nil {
		s.log.Warn("publish event", zap.String("routing_key", key), zap.Error(err))
	}
}
