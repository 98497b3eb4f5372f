// README: In-memory settlement store; mutex check-and-set mirrors Postgres.
package settlement

import (
	"context"
	"sync"

	"sparkle/internal/types"
)

type ratingKey struct {
	bookingID types.ID
	side      RaterType
}

type MemoryStore struct {
	mu      sync.RWMutex
	ratings map[ratingKey]*Rating
	tips    map[types.ID][]*Tip
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ratings: make(map[ratingKey]*Rating),
		tips:    make(map[types.ID][]*Tip),
	}
}

func (s *MemoryStore) InsertRating(ctx context.Context, r *Rating) (*Rating, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ratingKey{bookingID: r.BookingID, side: r.RaterType}
	if existing, ok := s.ratings[key]; ok {
		return cloneRating(existing), false, nil
	}
	s.ratings[key] = cloneRating(r)
	return cloneRating(r), true, nil
}

func (s *MemoryStore) GetRating(ctx context.Context, bookingID types.ID, side RaterType) (*Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.ratings[ratingKey{bookingID: bookingID, side: side}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRating(r), nil
}

func (s *MemoryStore) InsertTip(ctx context.Context, t *Tip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tips[t.BookingID] = append(s.tips[t.BookingID], &cp)
	return nil
}

func (s *MemoryStore) TipsByBooking(ctx context.Context, bookingID types.ID) ([]*Tip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Tip, 0, len(s.tips[bookingID]))
	for _, t := range s.tips[bookingID] {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func cloneRating(r *Rating) *Rating {
	cp := *r
	if r.Tags != nil {
		cp.Tags = append([]string(nil), r.Tags...)
	}
	return &cp
}
