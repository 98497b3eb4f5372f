// README: Partner service: registry, eligibility gate, and heartbeat presence.
package partner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sparkle/internal/errorx"
	"sparkle/internal/types"
)

var (
	ErrNotFound   = fmt.Errorf("partner not found: %w", errorx.ErrNotFound)
	ErrNoLocation = fmt.Errorf("partner location unknown: %w", errorx.ErrNotFound)
)

// snapshotEvery throttles the durable trail behind high-frequency heartbeats.
const snapshotEvery = time.Minute

type Service struct {
	store Store
	log   *zap.Logger

	mu       sync.Mutex
	lastSnap map[types.ID]time.Time
}

func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log, lastSnap: make(map[types.ID]time.Time)}
}

type RegisterCommand struct {
	Name string
}

func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*Partner, error) {
	if cmd.Name == "" {
		return nil, fmt.Errorf("missing partner name: %w", errorx.ErrInvalidArgument)
	}
	p := &Partner{
		ID:        types.NewID(),
		Name:      cmd.Name,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Partner, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) SetStatus(ctx context.Context, id types.ID, status Status) error {
	if !ValidStatus(status) {
		return fmt.Errorf("unknown partner status %q: %w", status, errorx.ErrInvalidArgument)
	}
	if err := s.store.SetStatus(ctx, id, status); err != nil {
		return err
	}
	// A partner leaving the verified pool also leaves the presence index.
	if status != StatusVerified {
		if err := s.store.RemovePresence(ctx, id); err != nil {
			s.log.Warn("remove presence", zap.String("partner_id", string(id)), zap.Error(err))
		}
	}
	return nil
}

// IsVerified is the dispatch eligibility gate.
func (s *Service) IsVerified(ctx context.Context, id types.ID) (bool, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return p.Status == StatusVerified, nil
}

type UpdateLocationCommand struct {
	PartnerID types.ID
	Position  types.Point
}

func (s *Service) UpdateLocation(ctx context.Context, cmd UpdateLocationCommand) error {
	if cmd.Position.Lat < -90 || cmd.Position.Lat > 90 ||
		cmd.Position.Lng < -180 || cmd.Position.Lng > 180 {
		return fmt.Errorf("coordinates out of range: %w", errorx.ErrInvalidArgument)
	}
	now := time.Now()
	if err := s.store.SetLocation(ctx, cmd.PartnerID, cmd.Position, now); err != nil {
		return err
	}
	if s.shouldSnapshot(cmd.PartnerID, now) {
		snap := Snapshot{PartnerID: cmd.PartnerID, Position: cmd.Position, RecordedAt: now}
		if err := s.store.AppendSnapshot(ctx, snap); err != nil {
			s.log.Warn("append location snapshot", zap.String("partner_id", string(cmd.PartnerID)), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) shouldSnapshot(id types.ID, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSnap[id]; ok && now.Sub(last) < snapshotEvery {
		return false
	}
	s.lastSnap[id] = now
	return true
}

func (s *Service) LastLocation(ctx context.Context, id types.ID) (types.Point, time.Time, error) {
	return s.store.LastLocation(ctx, id)
}

func (s *Service) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]types.ID, error) {
	return s.store.Nearby(ctx, p, radiusKm, limit)
}
