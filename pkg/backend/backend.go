// Package backend defines the persistence medium underneath a store. A
// backend is a plain byte-level key-value surface; all entry semantics
// (TTL, priority, quota) live above it.
package backend

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key is not physically present.
var ErrNotFound = errors.New("backend: key not found")

// Backend is the minimal medium surface the store needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Keys lists all physical keys under the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// Usage is a medium-level capacity estimate. TotalBytes may be zero when
// the medium has no fixed ceiling.
type Usage struct {
	TotalBytes int64
	UsedBytes  int64
}

// Estimator is implemented by backends that can report medium-level usage,
// the moral equivalent of a platform storage-estimate API. Backends without
// one leave the quota tracker on its byte-summation fallback.
type Estimator interface {
	Estimate(ctx context.Context) (Usage, error)
}
