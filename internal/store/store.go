// Package store implements the storage engine behind the public facade:
// a namespaced, quota-bounded entry store over a pluggable persistence
// medium, with a bounded in-memory payload overlay, a negative-lookup
// filter and policy-driven eviction.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ristretto "github.com/dgraph-io/ristretto/v2"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"goflare.io/stash/config"
	"goflare.io/stash/internal/codec"
	"goflare.io/stash/internal/entry"
	"goflare.io/stash/internal/eviction"
	"goflare.io/stash/internal/quota"
	"goflare.io/stash/pkg/backend"
	"goflare.io/stash/pkg/compress"
	"goflare.io/stash/retrier"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// nsSeparator joins the key prefix and the logical key in the medium.
const nsSeparator = ":"

// Statistics is the derived, on-demand view of one store instance. It is
// recomputed from the index and counters, never persisted.
type Statistics struct {
	Entries          int            `json:"entries"`
	TotalBytes       int64          `json:"total_bytes"`
	CompressionRatio float64        `json:"compression_ratio"`
	HitRate          float64        `json:"hit_rate"`
	Evictions        int64          `json:"evictions"`
	OldestEntry      time.Time      `json:"oldest_entry"`
	NewestEntry      time.Time      `json:"newest_entry"`
	Quota            quota.Snapshot `json:"quota"`
}

// Exported is the bulk round-trip form of one entry: its serialized
// (decompressed) value plus the metadata import preserves.
type Exported struct {
	Key            string         `json:"key"`
	Value          []byte         `json:"value"`
	TTL            time.Duration  `json:"ttl"`
	Priority       entry.Priority `json:"priority"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	AccessCount    int64          `json:"access_count"`
}

// Store is the single-writer engine for one namespace. A mutex serializes
// all operations, preserving the strict same-key ordering the design
// assumes.
type Store struct {
	cfg     *config.Config
	logger  *zap.Logger
	backend backend.Backend
	codec   *codec.Codec
	index   *index
	tracker *quota.Tracker
	engine  *eviction.Engine
	metrics *Metrics
	filter  *negativeFilter
	front   *ristretto.Cache[string, []byte]
	breaker *gobreaker.CircuitBreaker
	retrier *retrier.Retrier
	tracer  trace.Tracer
	sf      singleflight.Group

	mu     sync.Mutex
	closed bool

	maintenanceBusy atomic.Bool
	stopMaintenance context.CancelFunc
}

// Open builds a store over cfg.Backend, loads the namespace index from the
// medium (deleting corrupt envelopes on the way) and runs an opportunistic
// maintenance pass.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	var compressor compress.Compressor
	if cfg.Compression.Enabled {
		var err error
		compressor, err = compress.ByName(cfg.Compression.Algorithm)
		if err != nil {
			return nil, err
		}
	}

	engine, err := eviction.New(cfg.EvictionPolicy, cfg.Logger)
	if err != nil {
		return nil, err
	}

	med := cfg.Backend
	if med == nil {
		med = backend.NewMemory(0)
	}

	s := &Store{
		cfg:     cfg,
		logger:  cfg.Logger,
		backend: med,
		codec: codec.New(cfg.Serialization.Codec, compressor,
			cfg.Compression.Enabled, cfg.Compression.Threshold, cfg.DefaultTTL, cfg.Logger),
		index:   newIndex(),
		engine:  engine,
		metrics: NewMetrics(),
		filter:  newNegativeFilter(cfg.BloomFilter.ExpectedItems, cfg.BloomFilter.FalsePositiveRate),
		breaker: gobreaker.NewCircuitBreaker(cfg.Resilience.Breaker),
		retrier: retrier.FromBackoff(cfg.Resilience.RetrierBackoff),
		tracer:  otel.Tracer("stash"),
	}

	var estimator backend.Estimator
	if est, ok := med.(backend.Estimator); ok {
		estimator = est
	}
	s.tracker = quota.New(cfg.MaxSize, s.namespaceUsage, estimator,
		cfg.EstimateTimeout, cfg.Resilience.Breaker, cfg.Logger)

	if cfg.FrontCacheSize > 0 {
		front, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
			NumCounters: 10 * 1024,
			MaxCost:     cfg.FrontCacheSize,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create front cache: %w", err)
		}
		s.front = front
	}

	if err := s.loadIndex(ctx); err != nil {
		return nil, err
	}

	if err := s.RunMaintenance(ctx); err != nil {
		s.logger.Warn("initial maintenance pass failed", zap.Error(err))
	}

	return s, nil
}

// namespaceUsage is the quota tracker's summation source: live bytes per
// the index.
func (s *Store) namespaceUsage() int64 {
	return s.index.liveBytes(time.Now())
}

func (s *Store) nsKey(key string) string {
	return s.cfg.KeyPrefix + nsSeparator + key
}

func (s *Store) logicalKey(nsKey string) string {
	return nsKey[len(s.cfg.KeyPrefix)+len(nsSeparator):]
}

// loadIndex scans the namespace on the medium and rebuilds the metadata
// index. Corrupt envelopes are deleted rather than surfaced.
func (s *Store) loadIndex(ctx context.Context) error {
	prefix := s.cfg.KeyPrefix + nsSeparator
	keys, err := s.backend.Keys(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to scan namespace %q: %w", s.cfg.KeyPrefix, err)
	}

	for _, nk := range keys {
		raw, err := s.backend.Get(ctx, nk)
		if err != nil {
			s.logger.Warn("failed to read entry during index load",
				zap.String("key", nk), zap.Error(err))
			continue
		}
		ent, err := entry.Unmarshal(raw)
		if err != nil {
			s.logger.Warn("deleting corrupt entry found during index load",
				zap.String("key", nk), zap.Error(err))
			_ = s.backend.Delete(ctx, nk)
			continue
		}
		ent.Key = s.logicalKey(nk)
		s.index.put(ent.Meta())
		s.filter.add(ent.Key)
	}

	s.logger.Debug("namespace index loaded",
		zap.String("namespace", s.cfg.KeyPrefix),
		zap.Int("entries", s.index.len()))
	return nil
}

// Set encodes and persists a value. It returns false without persisting
// anything when the required space cannot be freed; the only error surface
// is a value that cannot be serialized.
func (s *Store) Set(ctx context.Context, key string, value any, opts codec.Options) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	ctx, span := s.tracer.Start(ctx, "Store.Set", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	ent, err := s.codec.Encode(key, value, opts)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	if ent.Size > s.cfg.MaxSize {
		s.logger.Warn("entry larger than the namespace budget",
			zap.String("key", key), zap.Int64("size_bytes", ent.Size))
		return false, nil
	}

	// Replacing a key releases its old bytes in the same write, so only
	// the delta needs headroom.
	required := ent.Size
	if old, ok := s.index.get(key); ok && !old.IsExpired(time.Now()) {
		required -= old.Size
	}

	if !s.engine.EnsureSpace(ctx, (*evictionSource)(s), required) {
		s.logger.Warn("set rejected: could not free enough space",
			zap.String("key", key), zap.Int64("required_bytes", required))
		return false, nil
	}

	envelope, err := ent.Marshal()
	if err != nil {
		return false, fmt.Errorf("%w: %v", codec.ErrSerialization, err)
	}

	if err := s.executeWithResilience(ctx, func() error {
		return s.backend.Put(ctx, s.nsKey(key), envelope)
	}); err != nil {
		s.logger.Error("backend write failed", zap.String("key", key), zap.Error(err))
		return false, nil
	}

	s.index.put(ent.Meta())
	s.filter.add(key)
	s.frontSet(key, ent.Payload)
	s.tracker.Invalidate()
	return true, nil
}

// Get fetches and decodes a value into dest. Misses cover absence, expiry
// and corruption; the latter two lazily delete the entry. A hit bumps the
// entry's access bookkeeping.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	ctx, span := s.tracer.Start(ctx, "Store.Get", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	if !s.filter.mayContain(key) {
		s.metrics.Misses.Inc()
		return false, nil
	}

	meta, ok := s.index.get(key)
	if !ok {
		s.metrics.Misses.Inc()
		return false, nil
	}

	now := time.Now()
	if meta.IsExpired(now) {
		s.removePhysical(ctx, key)
		s.metrics.Misses.Inc()
		return false, nil
	}

	payload, err := s.loadPayload(ctx, key)
	if err != nil {
		s.logger.Warn("deleting unreadable entry", zap.String("key", key), zap.Error(err))
		s.removePhysical(ctx, key)
		s.metrics.Misses.Inc()
		return false, nil
	}

	full := *meta
	full.Payload = payload
	if err := s.codec.Decode(&full, dest); err != nil {
		s.logger.Warn("deleting corrupt entry", zap.String("key", key), zap.Error(err))
		s.removePhysical(ctx, key)
		s.metrics.Misses.Inc()
		return false, nil
	}

	meta.Touch(now)
	s.index.markDirty(key)
	s.frontSet(key, payload)
	s.metrics.Hits.Inc()
	return true, nil
}

// Has reports whether a live entry exists under key, lazily deleting it
// when expired. It never updates access bookkeeping.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	meta, ok := s.index.get(key)
	if !ok {
		return false, nil
	}
	if meta.IsExpired(time.Now()) {
		s.removePhysical(ctx, key)
		return false, nil
	}
	return true, nil
}

// Keys returns the live logical keys of the namespace, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
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
	return s.index.liveKeys(time.Now()), nil
}

// Remove deletes an entry, reporting whether a live entry existed.
func (s *Store) Remove(ctx context.Context, key string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	ctx, span := s.tracer.Start(ctx, "Store.Remove", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	meta, ok := s.index.get(key)
	if !ok {
		return false, nil
	}
	expired := meta.IsExpired(time.Now())
	s.removePhysical(ctx, key)
	return !expired, nil
}

// Clear removes every entry of the namespace unconditionally. Calling it
// on an empty namespace is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	ctx, span := s.tracer.Start(ctx, "Store.Clear")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	keys, err := s.backend.Keys(ctx, s.cfg.KeyPrefix+nsSeparator)
	if err != nil {
		return fmt.Errorf("failed to scan namespace for clear: %w", err)
	}
	for _, nk := range keys {
		if err := s.backend.Delete(ctx, nk); err != nil {
			s.logger.Warn("failed to delete entry during clear",
				zap.String("key", nk), zap.Error(err))
		}
	}

	s.index.clear()
	s.filter.reset()
	s.frontClear()
	s.tracker.Invalidate()
	return nil
}

// Stats recomputes the derived statistics view.
func (s *Store) Stats(ctx context.Context) (*Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	return s.statsLocked(ctx), nil
}

func (s *Store) statsLocked(ctx context.Context) *Statistics {
	now := time.Now()
	oldest, newest := s.index.bounds(now)

	live := s.index.live(now)
	var storedBytes, rawBytes int64
	for _, meta := range live {
		storedBytes += meta.Size
		rawBytes += meta.RawSize
	}
	ratio := 1.0
	if storedBytes > 0 && rawBytes > 0 {
		ratio = float64(rawBytes) / float64(storedBytes)
	}

	return &Statistics{
		Entries:          len(live),
		TotalBytes:       storedBytes,
		CompressionRatio: ratio,
		HitRate:          s.metrics.HitRate(),
		Evictions:        s.engine.Evictions(),
		OldestEntry:      oldest,
		NewestEntry:      newest,
		Quota:            s.tracker.Current(ctx),
	}
}

// Quota returns the current capacity snapshot.
func (s *Store) Quota(ctx context.Context) (quota.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return quota.Snapshot{}, ErrClosed
	}
	return s.tracker.Current(ctx), nil
}

// Close stops background maintenance, flushes dirty access metadata and
// releases the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.stopMaintenance != nil {
		s.stopMaintenance()
	}
	s.flushDirty(context.Background())
	if s.front != nil {
		s.front.Close()
	}
	return s.backend.Close()
}

// loadPayload returns the payload bytes for a key, serving from the front
// cache when possible and collapsing concurrent medium reads.
func (s *Store) loadPayload(ctx context.Context, key string) ([]byte, error) {
	nk := s.nsKey(key)
	if s.front != nil {
		if payload, ok := s.front.Get(nk); ok {
			return payload, nil
		}
	}

	v, err, _ := s.sf.Do(nk, func() (any, error) {
		var raw []byte
		err := s.executeWithResilience(ctx, func() error {
			var err error
			raw, err = s.backend.Get(ctx, nk)
			return err
		})
		if err != nil {
			return nil, err
		}
		ent, err := entry.Unmarshal(raw)
		if err != nil {
			return nil, err
		}
		return ent.Payload, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// removePhysical deletes an entry from the medium, the index and the front
// cache; the bloom filter stays stale-positive until the next rebuild.
// Returns the freed payload bytes.
func (s *Store) removePhysical(ctx context.Context, key string) int64 {
	if err := s.backend.Delete(ctx, s.nsKey(key)); err != nil {
		s.logger.Warn("backend delete failed", zap.String("key", key), zap.Error(err))
	}
	meta, ok := s.index.remove(key)
	s.frontDel(key)
	s.tracker.Invalidate()
	if !ok {
		return 0
	}
	return meta.Size
}

func (s *Store) frontSet(key string, payload []byte) {
	if s.front != nil {
		s.front.Set(s.nsKey(key), payload, int64(len(payload)))
	}
}

func (s *Store) frontDel(key string) {
	if s.front != nil {
		s.front.Del(s.nsKey(key))
	}
}

func (s *Store) frontClear() {
	if s.front != nil {
		s.front.Clear()
	}
}

// evictionSource adapts the store to the eviction engine; engine calls
// happen while the store mutex is already held.
type evictionSource Store

func (es *evictionSource) Available(ctx context.Context) int64 {
	s := (*Store)(es)
	return s.tracker.Current(ctx).AvailableBytes
}

func (es *evictionSource) Live(now time.Time) []*entry.Entry {
	return (*Store)(es).index.live(now)
}

func (es *evictionSource) SweepExpired(ctx context.Context) (int, int64) {
	return (*Store)(es).sweepExpiredLocked(ctx)
}

func (es *evictionSource) Evict(ctx context.Context, key string) (int64, error) {
	s := (*Store)(es)
	if _, ok := s.index.get(key); !ok {
		return 0, fmt.Errorf("entry %q vanished before eviction", key)
	}
	return s.removePhysical(ctx, key), nil
}
