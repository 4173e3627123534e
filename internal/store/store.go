// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/compumacy/visolearn-local/internal/domain"
)

// Repository defines the interface for persisting saved sessions.
type Repository interface {
	// SaveSession creates or updates a saved session record.
	SaveSession(ctx context.Context, sess *domain.Session) error

	// GetSession retrieves a saved session by ID. Returns nil when absent.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// ListSessions returns saved sessions, most recently updated first.
	ListSessions(ctx context.Context, limit int) ([]*domain.Session, error)

	// DeleteSession removes a saved session.
	DeleteSession(ctx context.Context, id string) error

	// CleanupExpired removes sessions not updated within ttl and returns
	// how many were deleted.
	CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
