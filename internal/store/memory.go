package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ashureev/seven-days-calm/internal/domain"
)

// MemoryStore keeps user records for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{users: make(map[string]*domain.User)}
}

// GetUser returns a copy of the stored record, or nil if none exists.
func (m *MemoryStore) GetUser(_ context.Context, userID string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[userID].Clone(), nil
}

// UpsertUser stores a copy of user.
func (m *MemoryStore) UpsertUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.UserID] = user.Clone()
	return nil
}

// UpdateUser applies fn to a copy of the record under the write lock.
func (m *MemoryStore) UpdateUser(_ context.Context, userID string, fn func(*domain.User) error) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := m.users[userID].Clone()
	created := user == nil
	if created {
		user = domain.NewUser(userID, time.Now())
	}
	if err := fn(user); err != nil {
		if !errors.Is(err, ErrNoChange) {
			return nil, err
		}
		if !created {
			return user, nil
		}
	}
	m.users[userID] = user.Clone()
	return user, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
