package store

import (
	"context"
	"errors"

	"goflare.io/stash/pkg/backend"
	"goflare.io/stash/retrier"
)

// executeWithResilience runs a backend operation through the retrier and
// the store's circuit breaker. A missing key is permanent and never
// retried.
func (s *Store) executeWithResilience(ctx context.Context, fn func() error) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.retrier.Run(ctx, func() error {
			err := fn()
			if errors.Is(err, backend.ErrNotFound) {
				return retrier.Stop(err)
			}
			return err
		})
	})
	return err
}
