package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// minCompressionGain is the fraction of the raw size a background
// compression pass must save before the compressed form is persisted.
const minCompressionGain = 0.20

// SweepExpired physically removes all expired entries of the namespace and
// returns the count removed and bytes freed.
func (s *Store) SweepExpired(ctx context.Context) (int, int64, error) {
	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, 0, ErrClosed
	}
	removed, freed := s.sweepExpiredLocked(ctx)
	return removed, freed, nil
}

func (s *Store) sweepExpiredLocked(ctx context.Context) (int, int64) {
	var removed int
	var freed int64
	for _, key := range s.index.expiredKeys(time.Now()) {
		freed += s.removePhysical(ctx, key)
		removed++
	}
	return removed, freed
}

// StartMaintenance launches the background maintenance loop. It is stopped
// by Close or by cancelling ctx.
func (s *Store) StartMaintenance(ctx context.Context) {
	if s.cfg.MaintenanceInterval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.stopMaintenance = cancel
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.cfg.MaintenanceInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.RunMaintenance(ctx); err != nil {
					s.logger.Warn("maintenance pass failed", zap.Error(err))
				}
			}
		}
	}()
}

// RunMaintenance executes one maintenance pass: expiry sweep, quota-driven
// forced eviction or opportunistic compression, dirty-metadata flush and a
// bloom rebuild. A pass that fires while another is still running is
// skipped, never run in parallel.
func (s *Store) RunMaintenance(ctx context.Context) error {
	if !s.maintenanceBusy.CompareAndSwap(false, true) {
		s.logger.Debug("maintenance already running, skipping")
		return nil
	}
	defer s.maintenanceBusy.Store(false)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	removed, freed := s.sweepExpiredLocked(ctx)

	snap := s.tracker.Current(ctx)
	switch {
	case snap.UsedPercent >= s.cfg.QuotaCriticalThreshold:
		// Force usage back under the warning threshold.
		target := int64(float64(s.cfg.MaxSize) * (1 - s.cfg.QuotaWarningThreshold))
		if !s.engine.EnsureSpace(ctx, (*evictionSource)(s), target) {
			s.logger.Warn("critical-quota eviction could not reach the warning threshold",
				zap.Float64("used_percent", snap.UsedPercent))
		}
	case snap.UsedPercent >= s.cfg.QuotaWarningThreshold:
		s.compressionPassLocked(ctx)
	}

	flushed := s.flushDirty(ctx)
	s.filter.rebuild(s.index.liveKeys(time.Now()))

	s.logger.Debug("maintenance pass complete",
		zap.String("namespace", s.cfg.KeyPrefix),
		zap.Int("expired_removed", removed),
		zap.Int64("expired_freed_bytes", freed),
		zap.Int("metadata_flushed", flushed),
		zap.Float64("used_percent", snap.UsedPercent))
	return nil
}

// compressionPassLocked recompresses uncompressed entries above the
// configured threshold, persisting only transforms that save at least
// minCompressionGain of the raw size.
func (s *Store) compressionPassLocked(ctx context.Context) {
	now := time.Now()
	var compacted int
	for _, meta := range s.index.live(now) {
		if meta.Compressed || meta.RawSize <= s.cfg.Compression.Threshold {
			continue
		}

		raw, err := s.loadPayload(ctx, meta.Key)
		if err != nil {
			continue
		}
		out, ok := s.codec.Recompress(raw, minCompressionGain)
		if !ok {
			continue
		}

		full := *meta
		full.Payload = out
		full.Size = int64(len(out))
		full.Compressed = true
		envelope, err := full.Marshal()
		if err != nil {
			continue
		}
		if err := s.executeWithResilience(ctx, func() error {
			return s.backend.Put(ctx, s.nsKey(meta.Key), envelope)
		}); err != nil {
			s.logger.Warn("failed to persist recompressed entry",
				zap.String("key", meta.Key), zap.Error(err))
			continue
		}

		meta.Payload = nil
		meta.Size = full.Size
		meta.Compressed = true
		s.frontSet(meta.Key, out)
		compacted++
	}
	if compacted > 0 {
		s.tracker.Invalidate()
		s.logger.Debug("compression pass complete", zap.Int("entries", compacted))
	}
}

// flushDirty persists access bookkeeping accumulated in the index since
// the last pass. Losing a flush only costs access-recency fidelity, never
// data.
func (s *Store) flushDirty(ctx context.Context) int {
	var flushed int
	for _, key := range s.index.takeDirty() {
		meta, ok := s.index.get(key)
		if !ok {
			continue
		}
		raw, err := s.loadPayload(ctx, key)
		if err != nil {
			continue
		}

		full := *meta
		full.Payload = raw
		envelope, err := full.Marshal()
		if err != nil {
			continue
		}
		if err := s.executeWithResilience(ctx, func() error {
			return s.backend.Put(ctx, s.nsKey(key), envelope)
		}); err != nil {
			s.logger.Warn("failed to flush entry metadata",
				zap.String("key", key), zap.Error(err))
			continue
		}
		flushed++
	}
	return flushed
}
