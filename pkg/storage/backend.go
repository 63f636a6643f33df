// Package storage provides the blob backends behind the artifact cache and
// the deployment record log.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for a missing key, regardless of backend.
var ErrNotFound = errors.New("key not found")

// Store is the abstract blob backend. Writers are append-only at the
// caller level (artifact zips are content-addressed, records are per-unit
// keyed), so concurrent use is safe without coordination here.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}
