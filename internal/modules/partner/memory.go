// README: In-memory partner store; haversine search stands in for Redis GEO.
package partner

import (
	"context"
	"sort"
	"sync"
	"time"

	"sparkle/internal/maps"
	"sparkle/internal/types"
)

type MemoryStore struct {
	mu        sync.RWMutex
	partners  map[types.ID]*Partner
	locations map[types.ID]Snapshot
	snapshots []Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		partners:  make(map[types.ID]*Partner),
		locations: make(map[types.ID]Snapshot),
	}
}

func (s *MemoryStore) Create(ctx context.Context, p *Partner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.partners[p.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id types.ID) (*Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.partners[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id types.ID, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partners[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	return nil
}

func (s *MemoryStore) SetLocation(ctx context.Context, id types.ID, pos types.Point, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[id] = Snapshot{PartnerID: id, Position: pos, RecordedAt: at}
	return nil
}

func (s *MemoryStore) LastLocation(ctx context.Context, id types.ID) (types.Point, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.locations[id]
	if !ok || time.Since(loc.RecordedAt) > presenceTTL {
		return types.Point{}, time.Time{}, ErrNoLocation
	}
	return loc.Position, loc.RecordedAt, nil
}

func (s *MemoryStore) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]types.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		id   types.ID
		dist float64
	}
	var hits []hit
	for id, loc := range s.locations {
		if time.Since(loc.RecordedAt) > presenceTTL {
			continue
		}
		d := maps.HaversineKm(p, loc.Position)
		if d <= radiusKm {
			hits = append(hits, hit{id: id, dist: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	ids := make([]types.ID, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.id)
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

func (s *MemoryStore) RemovePresence(ctx context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locations, id)
	return nil
}

func (s *MemoryStore) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.ID = int64(len(s.snapshots) + 1)
	s.snapshots = append(s.snapshots, snap)
	return nil
}

// Snapshots is a test helper.
func (s *MemoryStore) Snapshots() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}
