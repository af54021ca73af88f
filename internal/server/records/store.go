// Package records keeps the id -> metadata mapping for uploaded files.
package records

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Store is the metadata backend used by the file service.
// Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (*Record, error)
	IncrementDownloads(ctx context.Context, id string) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
	Name() string
}

// HealthChecker is implemented by stores backed by an external service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
