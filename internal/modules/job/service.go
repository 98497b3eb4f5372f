// README: Job lifecycle service; partner-driven transitions with photo and
// identity gates, every step mirrored onto the booking.
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sparkle/internal/errorx"
	"sparkle/internal/events"
	"sparkle/internal/modules/booking"
	"sparkle/internal/modules/pricing"
	"sparkle/internal/types"
)

var (
	ErrNotFound    = fmt.Errorf("job not found: %w", errorx.ErrNotFound)
	ErrConflict    = fmt.Errorf("job already transitioned: %w", errorx.ErrConflict)
	ErrNotPartner  = fmt.Errorf("job belongs to another partner: %w", errorx.ErrForbidden)
	ErrNotCustomer = fmt.Errorf("job belongs to another customer: %w", errorx.ErrForbidden)
)

type Config struct {
	VerificationTTL time.Duration
}

type Service struct {
	store    Store
	bookings booking.Store
	pub      events.Publisher
	cfg      Config
	log      *zap.Logger
}

func NewService(store Store, bookings booking.Store, pub events.Publisher, cfg Config, log *zap.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.VerificationTTL == 0 {
		cfg.VerificationTTL = 10 * time.Minute
	}
	return &Service{store: store, bookings: bookings, pub: pub, cfg: cfg, log: log}
}

// CreateForAssignment opens the job row when dispatch lands an acceptance.
// Photo requirements are frozen here from the booked service type. Repeats
// for the same partner are no-ops.
func (s *Service) CreateForAssignment(ctx context.Context, bookingID, partnerID types.ID) error {
	if existing, err := s.store.Get(ctx, bookingID); err == nil {
		if existing.PartnerID == partnerID {
			return nil
		}
		return ErrConflict
	}
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	j := &Job{
		BookingID:      bookingID,
		PartnerID:      partnerID,
		CustomerID:     b.CustomerID,
		Status:         booking.StatusAssigned,
		RequiredBefore: pricing.RequiredBeforePhotos(b.Spec.ServiceType),
		RequiredAfter:  pricing.RequiredAfterPhotos(),
		CreatedAt:      time.Now(),
	}
	if err := s.store.Create(ctx, j); err != nil {
		return err
	}
	s.log.Info("job opened",
		zap.String("booking_id", string(bookingID)),
		zap.String("partner_id", string(partnerID)),
		zap.Int("required_before_photos", j.RequiredBefore))
	return nil
}

// Get returns the job to its partner or customer.
func (s *Service) Get(ctx context.Context, bookingID, callerID types.ID) (*Job, error) {
	j, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if callerID != "" && callerID != j.PartnerID && callerID != j.CustomerID {
		return nil, fmt.Errorf("job is visible to its partner and customer only: %w", errorx.ErrForbidden)
	}
	return j, nil
}

func (s *Service) Enroute(ctx context.Context, bookingID, partnerID types.ID) (*Job, error) {
	return s.partnerTransition(ctx, bookingID, partnerID, booking.StatusAssigned, booking.StatusEnroute, nil)
}

func (s *Service) Arrive(ctx context.Context, bookingID, partnerID types.ID) (*Job, error) {
	return s.partnerTransition(ctx, bookingID, partnerID, booking.StatusEnroute, booking.StatusArrived, nil)
}

// StartVerification opens (or reopens) an identity-check session. The first
// call moves the job to verifying; later calls only refresh the session, so
// an expired session is recovered by calling this again.
func (s *Service) StartVerification(ctx context.Context, bookingID, partnerID types.ID, method string) (*Job, error) {
	if !ValidVerifyMethod(method) {
		return nil, fmt.Errorf("unknown verification method %q: %w", method, errorx.ErrInvalidArgument)
	}
	j, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if j.PartnerID != partnerID {
		return nil, ErrNotPartner
	}
	switch j.Status {
	case booking.StatusArrived:
		if _, err := s.partnerTransition(ctx, bookingID, partnerID, booking.StatusArrived, booking.StatusVerifying, nil); err != nil {
			return nil, err
		}
	case booking.StatusVerifying:
	default:
		return nil, ErrConflict
	}
	exp := time.Now().Add(s.cfg.VerificationTTL)
	if err := s.store.SetVerification(ctx, bookingID, Verification{Method: method, ExpiresAt: &exp}); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, bookingID)
}

// CompleteVerification confirms the session before it lapses.
func (s *Service) CompleteVerification(ctx context.Context, bookingID, partnerID types.ID) (*Job, error) {
	j, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if j.PartnerID != partnerID {
		return nil, ErrNotPartner
	}
	if j.Status != booking.StatusVerifying {
		return nil, ErrConflict
	}
	if j.Verification.ExpiresAt == nil {
		return nil, fmt.Errorf("no verification session open: %w", errorx.ErrPreconditionFailed)
	}
	if time.Now().After(*j.Verification.ExpiresAt) {
		return nil, fmt.Errorf("verification session expired, start a new one: %w", errorx.ErrPreconditionFailed)
	}
	v := j.Verification
	v.Verified = true
	if err := s.store.SetVerification(ctx, bookingID, v); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, bookingID)
}

// AddPhotos appends evidence. Before-photos are accepted on site up to the
// start; after-photos once the work is underway.
func (s *Service) AddPhotos(ctx context.Context, bookingID, partnerID types.ID, kind PhotoKind, urls []string) (*Job, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no photo urls given: %w", errorx.ErrInvalidArgument)
	}
	for _, u := range urls {
		if u == "" {
			return nil, fmt.Errorf("empty photo url: %w", errorx.ErrInvalidArgument)
		}
	}
	j, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if j.PartnerID != partnerID {
		return nil, ErrNotPartner
	}
	switch kind {
	case PhotoBefore:
		if j.Status != booking.StatusArrived && j.Status != booking.StatusVerifying {
			return nil, fmt.Errorf("before photos are taken on site before the job starts: %w", errorx.ErrConflict)
		}
	case PhotoAfter:
		if j.Status != booking.StatusInProgress && j.Status != booking.StatusPaused {
			return nil, fmt.Errorf("after photos are taken while the job is underway: %w", errorx.ErrConflict)
		}
	default:
		return nil, fmt.Errorf("unknown photo kind %q: %w", kind, errorx.ErrInvalidArgument)
	}
	if err := s.store.AddPhotos(ctx, bookingID, kind, urls); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, bookingID)
}

// Start begins the work. Both gates must hold: a confirmed identity check and
// the service type's before-photo count.
func (s *Service) Start(ctx context.Context, bookingID, partnerID types.ID) (*Job, error) {
	j, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if j.PartnerID != partnerID {
		return nil, ErrNotPartner
	}
	if j.Status == booking.StatusInProgress {
		return j, nil
	}
	if j.Status != booking.StatusVerifying {
		return nil, ErrConflict
	}
	if !j.Verification.Verified {
		return nil, fmt.Errorf("identity verification incomplete: %w", errorx.ErrPreconditionFailed)
	}
	if len(j.BeforePhotos) < j.RequiredBefore {
		return nil, fmt.Errorf("need %d before photos, have %d: %w",
			j.RequiredBefore, len(j.BeforePhotos), errorx.ErrPreconditionFailed)
	}
	out, err := s.partnerTransition(ctx, bookingID, partnerID, booking.StatusVerifying, booking.StatusInProgress, nil)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.JobStarted, map[string]any{"booking_id": bookingID, "partner_id": partnerID})
	return out, nil
}

func (s *Service) Pause(ctx context.Context, bookingID, partnerID types.ID, reason string) (*Job, error) {
	if reason == "" {
		return nil, fmt.Errorf("missing pause reason: %w", errorx.ErrInvalidArgument)
	}
	return s.partnerTransition(ctx, bookingID, partnerID, booking.StatusInProgress, booking.StatusPaused, &reason)
}

func (s *Service) Resume(ctx context.Context, bookingID, partnerID types.ID) (*Job, error) {
	return s.partnerTransition(ctx, bookingID, partnerID, booking.StatusPaused, booking.StatusInProgress, nil)
}

// Complete hands the job to the customer for review; the after-photo count
// gates it.
func (s *Service) Complete(ctx context.Context, bookingID, partnerID types.ID) (*Job, error) {
	j, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if j.PartnerID != partnerID {
		return nil, ErrNotPartner
	}
	if j.Status == booking.StatusAwaitingReview {
		return j, nil
	}
	if j.Status != booking.StatusInProgress {
		return nil, ErrConflict
	}
	if len(j.AfterPhotos) < j.RequiredAfter {
		return nil, fmt.Errorf("need %d after photos, have %d: %w",
			j.RequiredAfter, len(j.AfterPhotos), errorx.ErrPreconditionFailed)
	}
	return s.partnerTransition(ctx, bookingID, partnerID, booking.StatusInProgress, booking.StatusAwaitingReview, nil)
}

// Approve is the customer signing off; the booking becomes settleable.
func (s *Service) Approve(ctx context.Context, bookingID, customerID types.ID) (*Job, error) {
	j, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if j.CustomerID != customerID {
		return nil, ErrNotCustomer
	}
	if j.Status == booking.StatusCompleted {
		return j, nil
	}
	if j.Status != booking.StatusAwaitingReview {
		return nil, ErrConflict
	}
	out, err := s.casTransition(ctx, j, booking.StatusCompleted, nil, "customer", customerID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.JobCompleted, map[string]any{"booking_id": bookingID, "partner_id": j.PartnerID})
	return out, nil
}

// RaiseIssue disputes the outcome instead of approving it. One dispute per
// booking; the returned ticket reference tracks it downstream.
func (s *Service) RaiseIssue(ctx context.Context, bookingID, customerID types.ID, description string) (*Job, error) {
	if description == "" {
		return nil, fmt.Errorf("missing issue description: %w", errorx.ErrInvalidArgument)
	}
	j, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if j.CustomerID != customerID {
		return nil, ErrNotCustomer
	}
	if j.Status == booking.StatusDisputed {
		return nil, ErrConflict
	}
	if j.Status != booking.StatusAwaitingReview {
		return nil, ErrConflict
	}
	ticket := "tkt_" + uuid.NewString()
	out, err := s.casTransition(ctx, j, booking.StatusDisputed, &ticket, "customer", customerID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.JobDisputed, map[string]any{
		"booking_id": bookingID,
		"ticket":     ticket,
	})
	s.log.Info("job disputed",
		zap.String("booking_id", string(bookingID)),
		zap.String("ticket", ticket))
	return out, nil
}

// partnerTransition is the shared partner-actor path: ownership, single-step
// CAS, booking mirror. Replays of an already-landed step return the job as is.
func (s *Service) partnerTransition(ctx context.Context, bookingID, partnerID types.ID, from, to booking.Status, detail *string) (*Job, error) {
	j, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if j.PartnerID != partnerID {
		return nil, ErrNotPartner
	}
	if j.Status == to {
		return j, nil
	}
	if j.Status != from {
		return nil, ErrConflict
	}
	return s.casTransition(ctx, j, to, detail, "partner", partnerID)
}

func (s *Service) casTransition(ctx context.Context, j *Job, to booking.Status, detail *string, actorType string, actorID types.ID) (*Job, error) {
	ok, err := s.store.UpdateStatus(ctx, j.BookingID, j.Status, to, j.StatusVersion, detail)
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, err := s.store.Get(ctx, j.BookingID)
		if err != nil {
			return nil, err
		}
		if cur.Status == to {
			return cur, nil
		}
		return nil, ErrConflict
	}
	s.mirrorBooking(ctx, j.BookingID, to, actorType, actorID)
	return s.store.Get(ctx, j.BookingID)
}

// mirrorBooking keeps the booking row in step with the job. The job row is
// authoritative for post-assignment state, so a lost mirror is logged and the
// next transition retries from the booking's then-current state.
func (s *Service) mirrorBooking(ctx context.Context, id types.ID, to booking.Status, actorType string, actorID types.ID) {
	for attempt := 0; attempt < 2; attempt++ {
		b, err := s.bookings.Get(ctx, id)
		if err != nil {
			s.log.Error("load booking for mirror", zap.Error(err), zap.String("booking_id", string(id)))
			return
		}
		if b.Status == to {
			return
		}
		if !booking.CanTransition(b.Status, to) {
			s.log.Error("booking cannot follow job state",
				zap.String("booking_id", string(id)),
				zap.String("booking_status", string(b.Status)),
				zap.String("job_status", string(to)))
			return
		}
		ok, err := s.bookings.UpdateStatus(ctx, id, b.Status, to, b.StatusVersion, nil)
		if err != nil {
			s.log.Error("mirror booking status", zap.Error(err), zap.String("booking_id", string(id)))
			return
		}
		if ok {
			aid := actorID
			_ = s.bookings.AppendEvent(ctx, &booking.Event{
				BookingID:  id,
				FromStatus: b.Status,
				ToStatus:   to,
				ActorType:  actorType,
				ActorID:    &aid,
				CreatedAt:  time.Now(),
			})
			return
		}
	}
	s.log.Error("booking mirror lost the cas twice", zap.String("booking_id", string(id)))
}

func (s *Service) publish(ctx context.Context, key string, v any) {
	if err := s.pub.Publish(ctx, key, v); err != nil {
		s.log.Warn("publish event", zap.String("key", key), zap.Error(err))
	}
}
