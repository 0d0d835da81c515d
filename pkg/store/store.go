// Package store persists per-user records: registered accounts and the
// relationship counter.
package store

import (
	"context"
	"errors"

	"fireshot/models"
)

// ErrUserNotFound is returned by Get for users that never ran /start.
var ErrUserNotFound = errors.New("user not found")

// Store reads and writes whole user records. Put always overwrites.
type Store interface {
	Get(ctx context.Context, userID int64) (models.UserRecord, error)
	Put(ctx context.Context, userID int64, rec models.UserRecord) error
	Exists(ctx context.Context, userID int64) (bool, error)
}
