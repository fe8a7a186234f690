package memory

import (
	"context"
	"sync" // For RWMutex to handle concurrent access

	"github.com/holoscene/presence-backend/internal/models"
	"github.com/holoscene/presence-backend/internal/storage"
)

// UserStore keeps user records in a process-local map. State does not survive
// restarts; use the valkey store for that. Records are copied on the way in
// and out so callers cannot mutate internal state.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*models.UserRecord
	order []string // insertion order of ids, so All is deterministic
}

// NewUserStore creates and returns a new in-memory UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		users: make(map[string]*models.UserRecord),
	}
}

// All returns every stored record in insertion order.
func (s *UserStore) All(ctx context.Context) ([]models.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]models.UserRecord, 0, len(s.order))
	for _, id := range s.order {
		records = append(records, *s.users[id])
	}
	return records, nil
}

// Find returns the record for id, or (nil, nil) if none exists.
func (s *UserStore) Find(ctx context.Context, id string) (*models.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	clone := *rec
	return &clone, nil
}

// Insert stores rec, overwriting any existing record with the same id.
func (s *UserStore) Insert(ctx context.Context, rec models.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	clone := rec
	s.users[rec.ID] = &clone
	return nil
}

// Update applies a partial update to the record for id. Updating an unknown
// id is a no-op.
func (s *UserStore) Update(ctx context.Context, id string, upd storage.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok {
		return nil
	}
	upd.Apply(rec)
	return nil
}
