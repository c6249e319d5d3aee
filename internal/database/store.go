// Package database provides storage backends for podcast subscriptions.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/bryan-buckman/podgrab/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// Subscription operations, keyed by feed URL.
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	GetSubscription(ctx context.Context, feedURL string) (model.Subscription, error)
	InsertSubscription(ctx context.Context, channel, feedURL string) error
	UpdateWatermark(ctx context.Context, feedURL string, watermark time.Time) error
	DeleteSubscription(ctx context.Context, feedURL string) error

	// Mail operations
	AddMailAddress(ctx context.Context, address string) error
	DeleteMailAddress(ctx context.Context, address string) error
	MailAddresses(ctx context.Context) ([]string, error)
}
