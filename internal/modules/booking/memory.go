// README: In-memory booking store; mutex CAS mirrors the Postgres semantics.
package booking

import (
	"context"
	"sync"
	"time"

	"sparkle/internal/types"
)

type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[types.ID]*Booking
	events   []*Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookings: make(map[types.ID]*Booking)}
}

func (s *MemoryStore) Create(ctx context.Context, b *Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[b.ID]; ok {
		return ErrConflict
	}
	cp := *b
	s.bookings[b.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id types.ID) (*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) HasActiveByCustomer(ctx context.Context, customerID types.ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bookings {
		if b.CustomerID == customerID && IsActive(b.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, partnerID *types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return false, nil
	}
	if b.Status != from || b.StatusVersion != version {
		return false, nil
	}
	b.Status = to
	b.StatusVersion++
	if partnerID != nil {
		p := *partnerID
		b.PartnerID = &p
	}
	now := time.Now()
	switch to {
	case StatusSearching:
		b.DispatchedAt = &now
	case StatusAssigned:
		b.AssignedAt = &now
	case StatusCompleted:
		b.CompletedAt = &now
	case StatusCancelled:
		b.CancelledAt = &now
	}
	return true, nil
}

func (s *MemoryStore) UpdateCancellation(ctx context.Context, id types.ID, feeCents, refundCreditCents int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return ErrNotFound
	}
	fee := types.USD(feeCents)
	credit := types.USD(refundCreditCents)
	b.CancelFee = &fee
	b.RefundCredit = &credit
	b.CancelReason = &reason
	return nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Booking
	for _, b := range s.bookings {
		if b.Status != status {
			continue
		}
		cp := *b
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	cp.ID = int64(len(s.events) + 1)
	s.events = append(s.events, &cp)
	return nil
}

// Events returns the audit trail for one booking; test helper.
func (s *MemoryStore) Events(bookingID types.ID) []*Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Event
	for _, e := range s.events {
		if e.BookingID == bookingID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}
