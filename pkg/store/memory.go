package store

import (
	"context"
	"sync"

	"fireshot/models"
)

// Memory keeps records in process memory. Records are cloned on the way in
// and out so callers never share a map with the store.
type Memory struct {
	mu    sync.RWMutex
	users map[int64]models.UserRecord
}

func NewMemory() *Memory {
	return &Memory{users: map[int64]models.UserRecord{}}
}

func (m *Memory) Get(_ context.Context, userID int64) (models.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.users[userID]
	if !ok {
		return models.UserRecord{}, ErrUserNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) Put(_ context.Context, userID int64, rec models.UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = rec.Clone()
	return nil
}

func (m *Memory) Exists(_ context.Context, userID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[userID]
	return ok, nil
}
