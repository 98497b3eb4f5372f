// README: In-memory offer store with the same CAS semantics as the Postgres one.
package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"sparkle/internal/types"
)

type MemoryStore struct {
	mu       sync.RWMutex
	offers   map[types.ID]*Offer
	declines map[types.ID]map[types.ID]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		offers:   make(map[types.ID]*Offer),
		declines: make(map[types.ID]map[types.ID]bool),
	}
}

func cloneOffer(o *Offer) *Offer {
	cp := *o
	if o.TargetPartnerID != nil {
		v := *o.TargetPartnerID
		cp.TargetPartnerID = &v
	}
	if o.AcceptedBy != nil {
		v := *o.AcceptedBy
		cp.AcceptedBy = &v
	}
	if o.ResolvedAt != nil {
		v := *o.ResolvedAt
		cp.ResolvedAt = &v
	}
	return &cp
}

func (m *MemoryStore) Create(ctx context.Context, o *Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.offers[o.ID]; ok {
		return ErrConflict
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	m.offers[o.ID] = cloneOffer(o)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id types.ID) (*Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOffer(o), nil
}

func (m *MemoryStore) LiveByBooking(ctx context.Context, bookingID types.ID) (*Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.offers {
		if o.BookingID == bookingID && Live(o.Status) {
			return cloneOffer(o), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) LatestByBooking(ctx context.Context, bookingID types.ID) (*Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *Offer
	for _, o := range m.offers {
		if o.BookingID != bookingID {
			continue
		}
		if latest == nil || o.Round > latest.Round ||
			(o.Round == latest.Round && o.CreatedAt.After(latest.CreatedAt)) {
			latest = o
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return cloneOffer(latest), nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id types.ID, from, to OfferStatus, version int, acceptedBy *types.ID, idemKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	o.Status = to
	o.StatusVersion++
	if acceptedBy != nil {
		v := *acceptedBy
		o.AcceptedBy = &v
	}
	if idemKey != "" {
		o.IdempotencyKey = idemKey
	}
	if !Live(to) && o.ResolvedAt == nil {
		now := time.Now()
		o.ResolvedAt = &now
	}
	return true, nil
}

func (m *MemoryStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Offer
	for _, o := range m.offers {
		if Live(o.Status) && !o.ExpiresAt.After(now) {
			out = append(out, cloneOffer(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) VoidSiblings(ctx context.Context, bookingID, exceptID types.ID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := time.Now()
	for _, o := range m.offers {
		if o.BookingID != bookingID || o.ID == exceptID || !Live(o.Status) {
			continue
		}
		o.Status = OfferVoid
		o.StatusVersion++
		o.ResolvedAt = &now
		n++
	}
	return n, nil
}

func (m *MemoryStore) RecordDecline(ctx context.Context, offerID, partnerID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.declines[offerID]; !ok {
		m.declines[offerID] = make(map[types.ID]bool)
	}
	m.declines[offerID][partnerID] = true
	return nil
}

func (m *MemoryStore) HasDeclined(ctx context.Context, offerID, partnerID types.ID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.declines[offerID][partnerID], nil
}

func (m *MemoryStore) ListOpenForPartner(ctx context.Context, partnerID types.ID, now time.Time) ([]*Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Offer
	for _, o := range m.offers {
		if !Live(o.Status) || !o.ExpiresAt.After(now) {
			continue
		}
		if o.TargetPartnerID != nil {
			if *o.TargetPartnerID == partnerID {
				out = append(out, cloneOffer(o))
			}
			continue
		}
		if !m.declines[o.ID][partnerID] {
			out = append(out, cloneOffer(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
