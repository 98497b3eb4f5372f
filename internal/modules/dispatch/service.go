// README: Dispatch coordinator; runs countdown offers against verified partners
// and resolves the accept race with offer-then-booking CAS.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"sparkle/internal/errorx"
	"sparkle/internal/events"
	"sparkle/internal/maps"
	"sparkle/internal/modules/booking"
	"sparkle/internal/modules/pricing"
	"sparkle/internal/types"
)

var (
	ErrNotFound        = fmt.Errorf("offer not found: %w", errorx.ErrNotFound)
	ErrGone            = fmt.Errorf("offer no longer live: %w", errorx.ErrGone)
	ErrConflict        = fmt.Errorf("offer already resolved: %w", errorx.ErrConflict)
	ErrNotEligible     = fmt.Errorf("partner not eligible to take work: %w", errorx.ErrLocked)
	ErrNotDispatchable = fmt.Errorf("booking not dispatchable: %w", errorx.ErrConflict)
)

const sweepBatchSize = 100

// PartnerDirectory is the slice of the partner module dispatch needs.
type PartnerDirectory interface {
	IsVerified(ctx context.Context, id types.ID) (bool, error)
	LastLocation(ctx context.Context, id types.ID) (types.Point, time.Time, error)
	Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]types.ID, error)
}

// PayoutEngine quotes the partner's take for a fare before the offer goes out.
type PayoutEngine interface {
	Payout(ctx context.Context, fareTotal, surgeAmount types.Money) (pricing.PayoutBreakdown, error)
}

// JobStarter opens the job record once a booking is assigned.
type JobStarter interface {
	CreateForAssignment(ctx context.Context, bookingID, partnerID types.ID) error
}

// PaymentVoider releases the customer's payment hold when the search fails.
type PaymentVoider interface {
	Void(ctx context.Context, ref string) error
}

type Config struct {
	Countdown      time.Duration
	SweepInterval  time.Duration
	MaxRounds      int
	SearchWindow   time.Duration
	BaseWaitMins   int
	NearbyRadiusKm float64
}

type Deps struct {
	Offers   Store
	Bookings booking.Store
	Partners PartnerDirectory
	Payout   PayoutEngine
	Jobs     JobStarter
	Payments PaymentVoider
	Geo      maps.Geocoder
	Events   events.Publisher
}

type Service struct {
	offers   Store
	bookings booking.Store
	partners PartnerDirectory
	payout   PayoutEngine
	jobs     JobStarter
	payments PaymentVoider
	geo      maps.Geocoder
	pub      events.Publisher
	cfg      Config
	log      *zap.Logger
}

func NewService(d Deps, cfg Config, log *zap.Logger) *Service {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Geo == nil {
		d.Geo = maps.NewStaticGeocoder(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Countdown <= 0 {
		cfg.Countdown = 25 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 3
	}
	if cfg.SearchWindow <= 0 {
		cfg.SearchWindow = 5 * time.Minute
	}
	if cfg.BaseWaitMins <= 0 {
		cfg.BaseWaitMins = 12
	}
	if cfg.NearbyRadiusKm <= 0 {
		cfg.NearbyRadiusKm = 8
	}
	return &Service{
		offers:   d.Offers,
		bookings: d.Bookings,
		partners: d.Partners,
		payout:   d.Payout,
		jobs:     d.Jobs,
		payments: d.Payments,
		geo:      d.Geo,
		pub:      d.Events,
		cfg:      cfg,
		log:      log,
	}
}

// CreateOffer moves a pending booking into searching and puts the first offer
// out, or issues the next round when the previous one resolved. Calling it
// while a live offer exists is a no-op, so checkout and the sweep can both
// invoke it without stepping on each other.
func (s *Service) CreateOffer(ctx context.Context, bookingID types.ID) error {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	switch b.Status {
	case booking.StatusPendingDispatch:
		ok, err := s.bookings.UpdateStatus(ctx, b.ID, booking.StatusPendingDispatch, booking.StatusSearching, b.StatusVersion, nil)
		if err != nil {
			return err
		}
		if ok {
			s.appendBookingEvent(ctx, b.ID, booking.StatusPendingDispatch, booking.StatusSearching, "system", nil)
		}
		if b, err = s.bookings.Get(ctx, bookingID); err != nil {
			return err
		}
		if b.Status != booking.StatusSearching {
			return ErrNotDispatchable
		}
	case booking.StatusSearching:
	default:
		return ErrNotDispatchable
	}

	if _, err := s.offers.LiveByBooking(ctx, bookingID); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	round := 1
	if latest, err := s.offers.LatestByBooking(ctx, bookingID); err == nil {
		round = latest.Round + 1
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	_, err = s.createOffer(ctx, b, round)
	return err
}

// createOffer builds a round-n offer. Rounds walk the nearby list closest
// first; once the list is exhausted the offer goes to the open pool.
func (s *Service) createOffer(ctx context.Context, b *booking.Booking, round int) (*Offer, error) {
	terms, err := s.payout.Payout(ctx, b.Totals.FareSubtotal(), b.Totals.Surge)
	if err != nil {
		return nil, fmt.Errorf("payout terms: %w", err)
	}

	var target *types.ID
	if ids, err := s.partners.Nearby(ctx, b.Address.Point, s.cfg.NearbyRadiusKm, s.cfg.MaxRounds); err != nil {
		s.log.Warn("nearby lookup failed, offering to pool", zap.Error(err), zap.String("booking_id", string(b.ID)))
	} else if round-1 < len(ids) {
		id := ids[round-1]
		target = &id
	}

	now := time.Now()
	o := &Offer{
		ID:              types.NewID(),
		BookingID:       b.ID,
		TargetPartnerID: target,
		Payout:          terms.Net,
		SurgeMultiplier: b.SurgeMultiplier,
		Round:           round,
		Status:          OfferOffered,
		ExpiresAt:       now.Add(s.cfg.Countdown),
		CreatedAt:       now,
	}
	if err := s.offers.Create(ctx, o); err != nil {
		return nil, err
	}
	s.publish(ctx, events.OfferCreated, map[string]any{
		"offer_id":   o.ID,
		"booking_id": b.ID,
		"round":      round,
	})
	s.log.Info("offer created",
		zap.String("offer_id", string(o.ID)),
		zap.String("booking_id", string(b.ID)),
		zap.Int("round", round))
	return o, nil
}

type AcceptCommand struct {
	OfferID        types.ID
	PartnerID      types.ID
	IdempotencyKey string
}

// Accept is the contended path. The offer CAS decides the winner; the booking
// CAS can still lose to a concurrent cancel, in which case the acceptance is
// rolled back to void and the partner sees the offer as gone.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Offer, error) {
	if cmd.OfferID == "" || cmd.PartnerID == "" {
		return nil, fmt.Errorf("offer id and partner id are required: %w", errorx.ErrInvalidArgument)
	}
	if cmd.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required: %w", errorx.ErrInvalidArgument)
	}
	o, err := s.offers.Get(ctx, cmd.OfferID)
	if err != nil {
		return nil, err
	}
	switch o.Status {
	case OfferAccepted:
		if o.AcceptedBy != nil && *o.AcceptedBy == cmd.PartnerID && o.IdempotencyKey == cmd.IdempotencyKey {
			return o, nil
		}
		return nil, ErrConflict
	case OfferDeclined, OfferExpired, OfferVoid:
		return nil, ErrGone
	}
	if time.Now().After(o.ExpiresAt) {
		return nil, ErrGone
	}
	if o.Directed() && *o.TargetPartnerID != cmd.PartnerID {
		return nil, fmt.Errorf("offer targets another partner: %w", errorx.ErrForbidden)
	}

	verified, err := s.partners.IsVerified(ctx, cmd.PartnerID)
	if err != nil {
		if errors.Is(err, errorx.ErrNotFound) {
			return nil, ErrNotEligible
		}
		return nil, err
	}
	if !verified {
		return nil, ErrNotEligible
	}

	partnerID := cmd.PartnerID
	won, err := s.offers.UpdateStatus(ctx, o.ID, OfferOffered, OfferAccepted, o.StatusVersion, &partnerID, cmd.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if !won {
		cur, err := s.offers.Get(ctx, cmd.OfferID)
		if err != nil {
			return nil, err
		}
		if cur.Status == OfferAccepted {
			if cur.AcceptedBy != nil && *cur.AcceptedBy == cmd.PartnerID && cur.IdempotencyKey == cmd.IdempotencyKey {
				return cur, nil
			}
			return nil, ErrConflict
		}
		return nil, ErrGone
	}

	if err := s.assignBooking(ctx, o.BookingID, partnerID); err != nil {
		if _, verr := s.offers.UpdateStatus(ctx, o.ID, OfferAccepted, OfferVoid, o.StatusVersion+1, nil, ""); verr != nil {
			s.log.Error("void offer after lost booking cas",
				zap.Error(verr), zap.String("offer_id", string(o.ID)))
		}
		return nil, err
	}

	if n, err := s.offers.VoidSiblings(ctx, o.BookingID, o.ID); err != nil {
		s.log.Warn("void sibling offers", zap.Error(err), zap.String("booking_id", string(o.BookingID)))
	} else if n > 0 {
		s.log.Info("voided sibling offers", zap.Int("count", n), zap.String("booking_id", string(o.BookingID)))
	}

	if s.jobs != nil {
		if err := s.jobs.CreateForAssignment(ctx, o.BookingID, partnerID); err != nil {
			s.log.Error("create job for assignment",
				zap.Error(err), zap.String("booking_id", string(o.BookingID)))
		}
	}

	s.publish(ctx, events.OfferAccepted, map[string]any{
		"offer_id":   o.ID,
		"booking_id": o.BookingID,
		"partner_id": partnerID,
	})
	return s.offers.Get(ctx, cmd.OfferID)
}

// assignBooking runs the booking side of the accept. Only a searching booking
// can be claimed; anything else means a cancel won the race.
func (s *Service) assignBooking(ctx context.Context, bookingID, partnerID types.ID) error {
	for attempt := 0; attempt < 2; attempt++ {
		b, err := s.bookings.Get(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != booking.StatusSearching {
			return ErrGone
		}
		ok, err := s.bookings.UpdateStatus(ctx, b.ID, booking.StatusSearching, booking.StatusAssigned, b.StatusVersion, &partnerID)
		if err != nil {
			return err
		}
		if ok {
			s.appendBookingEvent(ctx, b.ID, booking.StatusSearching, booking.StatusAssigned, "partner", &partnerID)
			return nil
		}
	}
	return ErrGone
}

type DeclineCommand struct {
	OfferID   types.ID
	PartnerID types.ID
}

// Decline resolves a directed offer and moves the search to the next round.
// For pool offers it only hides the offer from the declining partner.
func (s *Service) Decline(ctx context.Context, cmd DeclineCommand) error {
	if cmd.OfferID == "" || cmd.PartnerID == "" {
		return fmt.Errorf("offer id and partner id are required: %w", errorx.ErrInvalidArgument)
	}
	o, err := s.offers.Get(ctx, cmd.OfferID)
	if err != nil {
		return err
	}
	switch o.Status {
	case OfferAccepted:
		return ErrConflict
	case OfferExpired, OfferVoid:
		return ErrGone
	case OfferDeclined:
		return nil
	}
	if time.Now().After(o.ExpiresAt) {
		return ErrGone
	}

	if !o.Directed() {
		return s.offers.RecordDecline(ctx, o.ID, cmd.PartnerID)
	}
	if *o.TargetPartnerID != cmd.PartnerID {
		return fmt.Errorf("offer targets another partner: %w", errorx.ErrForbidden)
	}
	ok, err := s.offers.UpdateStatus(ctx, o.ID, OfferOffered, OfferDeclined, o.StatusVersion, nil, "")
	if err != nil {
		return err
	}
	if !ok {
		cur, err := s.offers.Get(ctx, cmd.OfferID)
		if err != nil {
			return err
		}
		switch cur.Status {
		case OfferAccepted:
			return ErrConflict
		case OfferDeclined:
			return nil
		default:
			return ErrGone
		}
	}

	b, err := s.bookings.Get(ctx, o.BookingID)
	if err != nil {
		return err
	}
	if b.Status == booking.StatusSearching {
		if err := s.advance(ctx, b); err != nil {
			s.log.Warn("advance after decline", zap.Error(err), zap.String("booking_id", string(b.ID)))
		}
	}
	return nil
}

// advance issues the next round for a searching booking or gives up when the
// round budget or search window is spent.
func (s *Service) advance(ctx context.Context, b *booking.Booking) error {
	round := 1
	if latest, err := s.offers.LatestByBooking(ctx, b.ID); err == nil {
		if Live(latest.Status) {
			return nil
		}
		round = latest.Round + 1
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	startedAt := b.CreatedAt
	if b.DispatchedAt != nil {
		startedAt = *b.DispatchedAt
	}
	if round > s.cfg.MaxRounds || time.Since(startedAt) > s.cfg.SearchWindow {
		return s.markNoMatch(ctx, b)
	}
	_, err := s.createOffer(ctx, b, round)
	return err
}

func (s *Service) markNoMatch(ctx context.Context, b *booking.Booking) error {
	ok, err := s.bookings.UpdateStatus(ctx, b.ID, booking.StatusSearching, booking.StatusNoMatch, b.StatusVersion, nil)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	s.appendBookingEvent(ctx, b.ID, booking.StatusSearching, booking.StatusNoMatch, "system", nil)
	if b.PaymentIntentRef != "" && s.payments != nil {
		if err := s.payments.Void(ctx, b.PaymentIntentRef); err != nil {
			s.log.Error("void payment after no match",
				zap.Error(err), zap.String("booking_id", string(b.ID)))
		}
	}
	s.publish(ctx, events.BookingNoMatch, map[string]any{"booking_id": b.ID})
	s.log.Info("search exhausted", zap.String("booking_id", string(b.ID)))
	return nil
}

// Poll returns the offers a partner may currently act on.
func (s *Service) Poll(ctx context.Context, partnerID types.ID) ([]*Offer, error) {
	verified, err := s.partners.IsVerified(ctx, partnerID)
	if err != nil {
		if errors.Is(err, errorx.ErrNotFound) {
			return nil, ErrNotEligible
		}
		return nil, err
	}
	if !verified {
		return nil, ErrNotEligible
	}
	return s.offers.ListOpenForPartner(ctx, partnerID, time.Now())
}

type PartnerGlimpse struct {
	ID       types.ID     `json:"id"`
	Position *types.Point `json:"position,omitempty"`
}

type StatusView struct {
	BookingID types.ID        `json:"booking_id"`
	State     booking.Status  `json:"state"`
	WaitMins  int             `json:"wait_mins"`
	Partner   *PartnerGlimpse `json:"partner,omitempty"`
}

// Status reports the customer-facing search state. Before an assignment the
// wait estimate is the static zone figure; after it, the assigned partner's
// last position feeds the ETA.
func (s *Service) Status(ctx context.Context, bookingID, callerID types.ID) (*StatusView, error) {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if callerID != "" && b.CustomerID != callerID {
		return nil, fmt.Errorf("booking belongs to another customer: %w", errorx.ErrForbidden)
	}
	view := &StatusView{BookingID: b.ID, State: b.Status, WaitMins: s.cfg.BaseWaitMins}
	if b.PartnerID == nil {
		return view, nil
	}
	view.Partner = &PartnerGlimpse{ID: *b.PartnerID}
	pos, _, err := s.partners.LastLocation(ctx, *b.PartnerID)
	if err != nil {
		return view, nil
	}
	view.Partner.Position = &pos
	eta, err := s.geo.ETA(ctx, pos, b.Address.Point, time.Now())
	if err != nil {
		s.log.Warn("eta lookup", zap.Error(err), zap.String("booking_id", string(b.ID)))
		return view, nil
	}
	view.WaitMins = int(math.Ceil(eta.Minutes()))
	return view, nil
}

// ExpireSweep is one pass of the background loop: lapse overdue offers and
// advance their bookings, release scheduled bookings whose lead time arrived,
// and re-drive bookings that stalled between states.
func (s *Service) ExpireSweep(ctx context.Context) (int, error) {
	now := time.Now()
	lapsed, err := s.offers.ListExpired(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	handled := 0
	for _, o := range lapsed {
		ok, err := s.offers.UpdateStatus(ctx, o.ID, OfferOffered, OfferExpired, o.StatusVersion, nil, "")
		if err != nil {
			s.log.Warn("expire offer", zap.Error(err), zap.String("offer_id", string(o.ID)))
			continue
		}
		if !ok {
			continue
		}
		handled++
		s.publish(ctx, events.OfferExpired, map[string]any{"offer_id": o.ID, "booking_id": o.BookingID})
		b, err := s.bookings.Get(ctx, o.BookingID)
		if err != nil {
			s.log.Warn("load booking for expired offer", zap.Error(err), zap.String("offer_id", string(o.ID)))
			continue
		}
		if b.Status == booking.StatusSearching {
			if err := s.advance(ctx, b); err != nil {
				s.log.Warn("advance after expiry", zap.Error(err), zap.String("booking_id", string(b.ID)))
			}
		}
	}
	s.releaseScheduled(ctx, now)
	s.promotePending(ctx)
	s.resumeStalled(ctx)
	return handled, nil
}

// releaseScheduled moves scheduled bookings into dispatch once the slot is
// within the base wait lead time.
func (s *Service) releaseScheduled(ctx context.Context, now time.Time) {
	due, err := s.bookings.ListByStatus(ctx, booking.StatusScheduled, sweepBatchSize)
	if err != nil {
		s.log.Warn("list scheduled bookings", zap.Error(err))
		return
	}
	lead := time.Duration(s.cfg.BaseWaitMins) * time.Minute
	for _, b := range due {
		if b.ScheduledAt == nil || now.Before(b.ScheduledAt.Add(-lead)) {
			continue
		}
		ok, err := s.bookings.UpdateStatus(ctx, b.ID, booking.StatusScheduled, booking.StatusPendingDispatch, b.StatusVersion, nil)
		if err != nil || !ok {
			continue
		}
		s.appendBookingEvent(ctx, b.ID, booking.StatusScheduled, booking.StatusPendingDispatch, "system", nil)
		if err := s.CreateOffer(ctx, b.ID); err != nil {
			s.log.Warn("dispatch released booking", zap.Error(err), zap.String("booking_id", string(b.ID)))
		}
	}
}

// promotePending picks up bookings whose checkout-time dispatch kick never
// landed.
func (s *Service) promotePending(ctx context.Context) {
	pending, err := s.bookings.ListByStatus(ctx, booking.StatusPendingDispatch, sweepBatchSize)
	if err != nil {
		s.log.Warn("list pending bookings", zap.Error(err))
		return
	}
	for _, b := range pending {
		if err := s.CreateOffer(ctx, b.ID); err != nil {
			s.log.Warn("dispatch pending booking", zap.Error(err), zap.String("booking_id", string(b.ID)))
		}
	}
}

// resumeStalled re-drives searching bookings that have no live offer, which
// happens when a process died between resolving one round and opening the next.
func (s *Service) resumeStalled(ctx context.Context) {
	searching, err := s.bookings.ListByStatus(ctx, booking.StatusSearching, sweepBatchSize)
	if err != nil {
		s.log.Warn("list searching bookings", zap.Error(err))
		return
	}
	for _, b := range searching {
		if _, err := s.offers.LiveByBooking(ctx, b.ID); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			continue
		}
		if err := s.advance(ctx, b); err != nil {
			s.log.Warn("resume stalled booking", zap.Error(err), zap.String("booking_id", string(b.ID)))
		}
	}
}

// RunExpireSweep drives ExpireSweep on a ticker until the context ends.
func (s *Service) RunExpireSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireSweep(ctx); err != nil {
				s.log.Error("expire sweep", zap.Error(err))
			}
		}
	}
}

func (s *Service) appendBookingEvent(ctx context.Context, id types.ID, from, to booking.Status, actorType string, actorID *types.ID) {
	_ = s.bookings.AppendEvent(ctx, &booking.Event{
		BookingID:  id,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  time.Now(),
	})
}

func (s *Service) publish(ctx context.Context, key string, v any) {
	if err := s.pub.Publish(ctx, key, v); err != nil {
		s.log.Warn("publish event", zap.String("key", key), zap.Error(err))
	}
}
