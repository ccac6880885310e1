// Package quota answers "how much capacity is available" for one store
// namespace, preferring a medium-level estimate when the backend offers one
// and falling back to the namespace byte summation otherwise.
package quota

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"goflare.io/stash/pkg/backend"
)

// ErrEstimateUnavailable means the medium-level estimate source failed or
// is circuit-broken. It is absorbed internally; callers always receive a
// summation-based snapshot instead.
var ErrEstimateUnavailable = errors.New("quota estimate unavailable")

// snapshotTTL caches a snapshot between mutations. Mutating operations
// invalidate explicitly, so the cache can never mask an imminent breach.
const snapshotTTL = 250 * time.Millisecond

// Snapshot is a point-in-time view of the namespace budget.
type Snapshot struct {
	TotalBytes     int64   `json:"total_bytes"`
	UsedBytes      int64   `json:"used_bytes"`
	AvailableBytes int64   `json:"available_bytes"`
	UsedPercent    float64 `json:"used_percent"`
}

// UsageFunc reports the namespace's live byte sum from the store index.
type UsageFunc func() int64

// Tracker computes capacity snapshots for one store instance.
type Tracker struct {
	maxSize   int64
	usage     UsageFunc
	estimator backend.Estimator
	timeout   time.Duration
	breaker   *gobreaker.CircuitBreaker
	logger    *zap.Logger

	mu       sync.Mutex
	cached   Snapshot
	cachedAt time.Time
}

// New builds a tracker. estimator may be nil.
func New(maxSize int64, usage UsageFunc, estimator backend.Estimator, timeout time.Duration, settings gobreaker.Settings, logger *zap.Logger) *Tracker {
	if settings.Name == "" {
		settings.Name = "quota-estimate"
	}
	return &Tracker{
		maxSize:   maxSize,
		usage:     usage,
		estimator: estimator,
		timeout:   timeout,
		breaker:   gobreaker.NewCircuitBreaker(settings),
		logger:    logger,
	}
}

// Current returns the capacity snapshot, recomputing when the cached one is
// stale or has been invalidated by a mutation.
func (t *Tracker) Current(ctx context.Context) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.cachedAt.IsZero() && time.Since(t.cachedAt) < snapshotTTL {
		return t.cached
	}

	used := t.usage()
	snap := Snapshot{
		TotalBytes:     t.maxSize,
		UsedBytes:      used,
		AvailableBytes: t.maxSize - used,
	}
	if snap.AvailableBytes < 0 {
		snap.AvailableBytes = 0
	}

	// A medium-level estimate can only shrink the available headroom; the
	// namespace budget itself stays authoritative.
	if mediumAvail, err := t.mediumAvailable(ctx); err == nil && mediumAvail >= 0 && mediumAvail < snap.AvailableBytes {
		snap.AvailableBytes = mediumAvail
	}

	if snap.TotalBytes > 0 {
		snap.UsedPercent = float64(snap.UsedBytes) / float64(snap.TotalBytes)
	}

	t.cached = snap
	t.cachedAt = time.Now()
	return snap
}

// Invalidate drops the cached snapshot. Called after every mutation so the
// next set/evict cycle recomputes.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	t.cachedAt = time.Time{}
	t.mu.Unlock()
}

// mediumAvailable queries the backend estimator behind the breaker and a
// defensive timeout. Returns -1 when the medium reports no fixed ceiling.
func (t *Tracker) mediumAvailable(ctx context.Context) (int64, error) {
	if t.estimator == nil {
		return 0, ErrEstimateUnavailable
	}

	result, err := t.breaker.Execute(func() (any, error) {
		estimateCtx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()
		return t.estimator.Estimate(estimateCtx)
	})
	if err != nil {
		t.logger.Debug("quota estimate unavailable, using byte summation",
			zap.Error(err))
		return 0, ErrEstimateUnavailable
	}

	usage := result.(backend.Usage)
	if usage.TotalBytes <= 0 {
		return -1, nil
	}
	avail := usage.TotalBytes - usage.UsedBytes
	if avail < 0 {
		avail = 0
	}
	return avail, nil
}
