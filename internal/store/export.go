package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"goflare.io/stash/internal/codec"
)

// Export returns every live entry's serialized (decompressed) value plus
// the metadata Import preserves. Unreadable entries are skipped.
func (s *Store) Export(ctx context.Context) ([]Exported, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	now := time.Now()
	out := make([]Exported, 0, s.index.len())
	for _, key := range s.index.liveKeys(now) {
		meta, ok := s.index.get(key)
		if !ok {
			continue
		}
		raw, err := s.exportValueLocked(ctx, meta.Key, meta.Compressed)
		if err != nil {
			s.logger.Warn("skipping unreadable entry during export",
				zap.String("key", key), zap.Error(err))
			continue
		}
		out = append(out, Exported{
			Key:            meta.Key,
			Value:          raw,
			TTL:            meta.TTL,
			Priority:       meta.Priority,
			CreatedAt:      meta.CreatedAt,
			LastAccessedAt: meta.LastAccessedAt,
			AccessCount:    meta.AccessCount,
		})
	}
	return out, nil
}

func (s *Store) exportValueLocked(ctx context.Context, key string, compressed bool) ([]byte, error) {
	payload, err := s.loadPayload(ctx, key)
	if err != nil {
		return nil, err
	}
	if !compressed {
		return payload, nil
	}
	raw, err := s.codec.Decompress(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", codec.ErrDeserialization, err)
	}
	return raw, nil
}

// Import replays exported entries through the regular write path: each one
// is re-encoded, quota-checked and may trigger eviction exactly like Set.
// Entries it cannot place (already expired, or no space even after
// eviction) are skipped. Returns the number of entries imported.
func (s *Store) Import(ctx context.Context, entries []Exported) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	var imported int
	now := time.Now()
	for _, exp := range entries {
		if exp.TTL > 0 && now.Sub(exp.CreatedAt) > exp.TTL {
			continue
		}
		if s.importOneLocked(ctx, exp) {
			imported++
		}
	}
	return imported, nil
}

func (s *Store) importOneLocked(ctx context.Context, exp Exported) bool {
	ent := s.codec.EncodeRaw(exp.Key, exp.Value, codec.Options{
		TTL:      exp.TTL,
		Priority: exp.Priority,
	})
	if !exp.CreatedAt.IsZero() {
		ent.CreatedAt = exp.CreatedAt
	}
	if !exp.LastAccessedAt.IsZero() {
		ent.LastAccessedAt = exp.LastAccessedAt
	}
	ent.AccessCount = exp.AccessCount

	if ent.Size > s.cfg.MaxSize {
		return false
	}

	required := ent.Size
	if old, ok := s.index.get(exp.Key); ok && !old.IsExpired(time.Now()) {
		required -= old.Size
	}
	if !s.engine.EnsureSpace(ctx, (*evictionSource)(s), required) {
		s.logger.Warn("import skipped entry: could not free enough space",
			zap.String("key", exp.Key))
		return false
	}

	envelope, err := ent.Marshal()
	if err != nil {
		return false
	}
	if err := s.executeWithResilience(ctx, func() error {
		return s.backend.Put(ctx, s.nsKey(exp.Key), envelope)
	}); err != nil {
		s.logger.Error("backend write failed during import",
			zap.String("key", exp.Key), zap.Error(err))
		return false
	}

	s.index.put(ent.Meta())
	s.filter.add(exp.Key)
	s.frontSet(exp.Key, ent.Payload)
	s.tracker.Invalidate()
	return true
}
