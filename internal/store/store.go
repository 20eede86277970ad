// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/seven-days-calm/internal/config"
	"github.com/ashureev/seven-days-calm/internal/domain"
)

// Repository persists user records. Handlers depend only on this contract so
// the volatile default can be swapped for a durable backend.
type Repository interface {
	// GetUser retrieves a user by ID. It returns (nil, nil) when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or replaces a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateUser loads the record for userID, creating it when absent, applies
	// fn and stores the result as one atomic step. Concurrent updates of the
	// same user are serialized. When fn returns an error nothing is written;
	// ErrNoChange skips the write without failing the call.
	UpdateUser(ctx context.Context, userID string, fn func(*domain.User) error) (*domain.User, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// ErrNoChange is returned by an UpdateUser callback that left the record as
// it was.
var ErrNoChange = errors.New("no change")

// New builds the repository selected by cfg.StoreDriver.
func New(cfg *config.Config) (Repository, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory, "":
		return NewMemory(), nil
	case config.StoreSQLite:
		s, err := NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
