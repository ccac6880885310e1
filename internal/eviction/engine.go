// Package eviction frees space in a store namespace by removing entries in
// policy order, sweeping expired entries first and touching
// critical-priority entries only as a last resort.
package eviction

import (
	"context"
	"sort"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"goflare.io/stash/config"
	"goflare.io/stash/internal/entry"
)

// criticalGuardFactor bounds emergency eviction: critical entries may only
// be evicted when, after exhausting every non-critical entry, freed bytes
// remain below this fraction of the outstanding requirement.
const criticalGuardFactor = 0.8

// Source is the store surface the engine works against.
type Source interface {
	// Available returns the namespace headroom in bytes.
	Available(ctx context.Context) int64

	// Live returns metadata of all non-expired entries.
	Live(now time.Time) []*entry.Entry

	// SweepExpired physically removes expired (and corrupt) entries,
	// returning the count removed and bytes freed.
	SweepExpired(ctx context.Context) (int, int64)

	// Evict removes one entry, returning the bytes freed.
	Evict(ctx context.Context, key string) (int64, error)
}

// Engine orders and removes entries until a requested byte budget is free.
type Engine struct {
	less      Comparator
	evictions *atomic.Int64
	logger    *zap.Logger
}

// New builds an engine for the configured policy.
func New(policy config.Policy, logger *zap.Logger) (*Engine, error) {
	less, err := ComparatorFor(policy)
	if err != nil {
		return nil, err
	}
	return &Engine{
		less:      less,
		evictions: atomic.NewInt64(0),
		logger:    logger,
	}, nil
}

// Evictions returns the number of entries evicted since construction.
func (e *Engine) Evictions() int64 {
	return e.evictions.Load()
}

// EnsureSpace makes at least required bytes available in src, sweeping
// expired entries first and then evicting live entries in policy order.
// It returns false when the requirement cannot be met even after emergency
// critical-priority eviction; that is a capacity condition, not an error.
func (e *Engine) EnsureSpace(ctx context.Context, src Source, required int64) bool {
	if required <= 0 || src.Available(ctx) >= required {
		return true
	}

	// Expired entries go first; whatever they free counts toward the
	// requirement before any live entry is touched.
	if removed, freed := src.SweepExpired(ctx); removed > 0 {
		e.logger.Debug("expiry sweep before eviction",
			zap.Int("removed", removed), zap.Int64("freed_bytes", freed))
	}

	available := src.Available(ctx)
	if available >= required {
		return true
	}
	shortfall := required - available

	nonCritical, critical := e.partition(src.Live(time.Now()))

	freed := e.evictInOrder(ctx, src, nonCritical, shortfall)
	if freed >= shortfall {
		return true
	}

	// Non-critical entries are exhausted. Critical entries stay untouched
	// unless the freed bytes are still below the guard fraction of the
	// requirement.
	if freed >= int64(criticalGuardFactor*float64(shortfall)) {
		return false
	}

	e.logger.Warn("evicting critical-priority entries as a last resort",
		zap.Int64("shortfall_bytes", shortfall-freed))
	freed += e.evictInOrder(ctx, src, critical, shortfall-freed)
	return freed >= shortfall
}

func (e *Engine) partition(live []*entry.Entry) (nonCritical, critical []*entry.Entry) {
	for _, ent := range live {
		if ent.Priority == entry.PriorityCritical {
			critical = append(critical, ent)
		} else {
			nonCritical = append(nonCritical, ent)
		}
	}
	return nonCritical, critical
}

func (e *Engine) evictInOrder(ctx context.Context, src Source, victims []*entry.Entry, needed int64) int64 {
	sort.SliceStable(victims, func(i, j int) bool {
		return e.less(victims[i], victims[j])
	})

	var freed int64
	for _, victim := range victims {
		if freed >= needed {
			break
		}
		bytes, err := src.Evict(ctx, victim.Key)
		if err != nil {
			e.logger.Warn("eviction failed",
				zap.String("key", victim.Key), zap.Error(err))
			continue
		}
		freed += bytes
		e.evictions.Inc()
		e.logger.Debug("evicted entry",
			zap.String("key", victim.Key),
			zap.Int64("freed_bytes", bytes),
			zap.String("priority", victim.Priority.String()))
	}
	return freed
}
