// README: In-memory job store mirroring the Postgres CAS and stamping rules.
package job

import (
	"context"
	"sync"
	"time"

	"sparkle/internal/modules/booking"
	"sparkle/internal/types"
)

type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[types.ID]*Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[types.ID]*Job)}
}

func cloneJob(j *Job) *Job {
	cp := *j
	cp.BeforePhotos = append([]string(nil), j.BeforePhotos...)
	cp.AfterPhotos = append([]string(nil), j.AfterPhotos...)
	if j.PauseReason != nil {
		v := *j.PauseReason
		cp.PauseReason = &v
	}
	if j.DisputeTicket != nil {
		v := *j.DisputeTicket
		cp.DisputeTicket = &v
	}
	if j.Verification.ExpiresAt != nil {
		v := *j.Verification.ExpiresAt
		cp.Verification.ExpiresAt = &v
	}
	if j.EnrouteAt != nil {
		v := *j.EnrouteAt
		cp.EnrouteAt = &v
	}
	if j.ArrivedAt != nil {
		v := *j.ArrivedAt
		cp.ArrivedAt = &v
	}
	if j.StartedAt != nil {
		v := *j.StartedAt
		cp.StartedAt = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		cp.CompletedAt = &v
	}
	return &cp
}

func (m *MemoryStore) Create(ctx context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.BookingID]; ok {
		return ErrConflict
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	m.jobs[j.BookingID] = cloneJob(j)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, bookingID types.ID) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, bookingID types.ID, from, to booking.Status, version int, detail *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[bookingID]
	if !ok {
		return false, ErrNotFound
	}
	if j.Status != from || j.StatusVersion != version {
		return false, nil
	}
	j.Status = to
	j.StatusVersion++
	now := time.Now()
	switch to {
	case booking.StatusEnroute:
		j.EnrouteAt = &now
	case booking.StatusArrived:
		j.ArrivedAt = &now
	case booking.StatusPaused:
		if detail != nil {
			v := *detail
			j.PauseReason = &v
		}
	case booking.StatusInProgress:
		j.PauseReason = nil
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
	case booking.StatusDisputed:
		if detail != nil {
			v := *detail
			j.DisputeTicket = &v
		}
		j.CompletedAt = &now
	case booking.StatusCompleted:
		j.CompletedAt = &now
	}
	return true, nil
}

func (m *MemoryStore) SetVerification(ctx context.Context, bookingID types.ID, v Verification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[bookingID]
	if !ok {
		return ErrNotFound
	}
	cp := v
	if v.ExpiresAt != nil {
		t := *v.ExpiresAt
		cp.ExpiresAt = &t
	}
	j.Verification = cp
	return nil
}

func (m *MemoryStore) AddPhotos(ctx context.Context, bookingID types.ID, kind PhotoKind, urls []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[bookingID]
	if !ok {
		return ErrNotFound
	}
	switch kind {
	case PhotoBefore:
		j.BeforePhotos = append(j.BeforePhotos, urls...)
	case PhotoAfter:
		j.AfterPhotos = append(j.AfterPhotos, urls...)
	}
	return nil
}
