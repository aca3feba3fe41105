package store

import (
	"context"
	"errors"

	"palmreader/pkg/domain"
)

// ErrInvalidUser is returned when a user row would have no platform id.
var ErrInvalidUser = errors.New("user id required")

// Ledger is the append-only record of users, uploads and readings.
// Every method is its own transaction; nothing spans two calls.
type Ledger interface {
	// EnsureSchema creates the tables when absent. Safe to call repeatedly.
	EnsureSchema(ctx context.Context) error
	// EnsureUser inserts the user on first sight and returns its id.
	EnsureUser(ctx context.Context, u domain.User) (int64, error)
	// RecordUpload appends one upload row and returns its generated id.
	RecordUpload(ctx context.Context, up domain.Upload) (int64, error)
	// RecordReading appends one reading row.
	RecordReading(ctx context.Context, r domain.Reading) error
}
