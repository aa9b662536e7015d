package driver

import (
	"context"
	"sync"
	"time"

	"dispatch/internal/types"
)

// MemoryStore keeps driver positions in process.
type MemoryStore struct {
	mu      sync.RWMutex
	drivers map[types.ID]Driver
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drivers: make(map[types.ID]Driver)}
}

func (s *MemoryStore) Get(ctx context.Context, id types.ID) (*Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.Position != nil {
		p := *d.Position
		d.Position = &p
	}
	return &d, nil
}

func (s *MemoryStore) SavePosition(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drivers[id] = Driver{ID: id, Position: &p, UpdatedAt: at}
	return nil
}
