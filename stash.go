// Package stash is a quota-aware, namespaced key-value persistence layer:
// entries carry TTLs, priorities and access statistics, payloads are
// transparently compressed, and a policy-driven eviction engine keeps each
// namespace under its byte budget. Multiple stores share one backing
// medium, isolated by key prefix.
package stash

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"goflare.io/stash/config"
	"goflare.io/stash/internal/codec"
	"goflare.io/stash/internal/entry"
	"goflare.io/stash/internal/quota"
	"goflare.io/stash/internal/store"
	"goflare.io/stash/pkg/backend"
	"goflare.io/stash/pkg/serialization"
)

// Priority is the eviction-resistance weight of an entry.
type Priority = entry.Priority

const (
	PriorityLow      = entry.PriorityLow
	PriorityMedium   = entry.PriorityMedium
	PriorityHigh     = entry.PriorityHigh
	PriorityCritical = entry.PriorityCritical
)

// Statistics is the derived, on-demand view of one store instance.
type Statistics = store.Statistics

// QuotaSnapshot reports the byte budget of one store instance.
type QuotaSnapshot = quota.Snapshot

// ExportedEntry is the bulk round-trip form of one entry.
type ExportedEntry = store.Exported

// Option configures a store at construction.
type Option func(*config.Config) error

// WithLogger sets the logger; the default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *config.Config) error {
		cfg.Logger = logger
		return nil
	}
}

// WithBackend sets the persistence medium; the default is in-memory.
func WithBackend(b backend.Backend) Option {
	return func(cfg *config.Config) error {
		cfg.Backend = b
		return nil
	}
}

// WithMaxSize sets the namespace byte budget.
func WithMaxSize(maxSize int64) Option {
	return func(cfg *config.Config) error {
		cfg.MaxSize = maxSize
		return nil
	}
}

// WithDefaultTTL sets the TTL applied to writes without an explicit one.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(cfg *config.Config) error {
		cfg.DefaultTTL = ttl
		return nil
	}
}

// WithKeyPrefix namespaces this instance on the shared medium.
func WithKeyPrefix(prefix string) Option {
	return func(cfg *config.Config) error {
		cfg.KeyPrefix = prefix
		return nil
	}
}

// WithEvictionPolicy selects the victim ordering under space pressure.
func WithEvictionPolicy(policy config.Policy) Option {
	return func(cfg *config.Config) error {
		if !policy.Valid() {
			return fmt.Errorf("unknown eviction policy %q", policy)
		}
		cfg.EvictionPolicy = policy
		return nil
	}
}

// WithQuotaThresholds sets the warning and critical used-fraction levels.
func WithQuotaThresholds(warning, critical float64) Option {
	return func(cfg *config.Config) error {
		cfg.QuotaWarningThreshold = warning
		cfg.QuotaCriticalThreshold = critical
		return nil
	}
}

// WithCompression enables or disables transparent payload compression.
func WithCompression(enabled bool) Option {
	return func(cfg *config.Config) error {
		cfg.Compression.Enabled = enabled
		return nil
	}
}

// WithCompressionAlgorithm selects the transform (zstd, gzip or br).
func WithCompressionAlgorithm(algorithm string) Option {
	return func(cfg *config.Config) error {
		cfg.Compression.Algorithm = algorithm
		return nil
	}
}

// WithCompressionThreshold sets the raw payload size above which
// compression kicks in.
func WithCompressionThreshold(bytes int64) Option {
	return func(cfg *config.Config) error {
		cfg.Compression.Threshold = bytes
		return nil
	}
}

// WithSerialization selects the value codec by name (json or gob).
func WithSerialization(serializer string) Option {
	return func(cfg *config.Config) error {
		c, err := serialization.ByType(serializer)
		if err != nil {
			return err
		}
		cfg.Serialization = config.SerializationConfig{Type: serializer, Codec: c}
		return nil
	}
}

// WithMaintenanceInterval sets the background maintenance cadence; zero
// disables the timer.
func WithMaintenanceInterval(interval time.Duration) Option {
	return func(cfg *config.Config) error {
		cfg.MaintenanceInterval = interval
		return nil
	}
}

// WithFrontCacheSize bounds the in-memory payload overlay; zero disables
// it.
func WithFrontCacheSize(bytes int64) Option {
	return func(cfg *config.Config) error {
		cfg.FrontCacheSize = bytes
		return nil
	}
}

// SetOption configures a single write.
type SetOption func(*codec.Options)

// WithTTL overrides the default TTL for this entry.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *codec.Options) {
		o.TTL = ttl
	}
}

// WithPriority sets the entry's eviction-resistance weight.
func WithPriority(p Priority) SetOption {
	return func(o *codec.Options) {
		o.Priority = p
	}
}

// WithForcedCompression forces compression on or off for this entry,
// bypassing the configured threshold.
func WithForcedCompression(on bool) SetOption {
	return func(o *codec.Options) {
		o.Compress = &on
	}
}

// Store is a handle to one namespaced store instance.
type Store struct {
	inner *store.Store
	cfg   *config.Config
}

// New builds a store, loads its namespace from the backing medium, runs an
// opportunistic maintenance pass and starts the maintenance timer.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	cfg := config.New()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	inner, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	inner.StartMaintenance(ctx)

	return &Store{inner: inner, cfg: cfg}, nil
}

// Set persists a value under key. It returns false when the entry could
// not be stored within the namespace budget even after eviction; the only
// error case is a value that cannot be serialized.
func (s *Store) Set(ctx context.Context, key string, value any, opts ...SetOption) (bool, error) {
	options := codec.Options{Priority: PriorityMedium}
	for _, opt := range opts {
		opt(&options)
	}
	return s.inner.Set(ctx, key, value, options)
}

// Get retrieves the value under key into dest. A miss covers absence,
// expiry and corruption.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	return s.inner.Get(ctx, key, dest)
}

// Has reports whether a live entry exists under key.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	return s.inner.Has(ctx, key)
}

// Remove deletes the entry under key, reporting whether it existed.
func (s *Store) Remove(ctx context.Context, key string) (bool, error) {
	return s.inner.Remove(ctx, key)
}

// Keys returns the live keys of this namespace, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	return s.inner.Keys(ctx)
}

// Clear removes every entry of this namespace.
func (s *Store) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}

// Export returns all live entries with their metadata for backup or
// migration.
func (s *Store) Export(ctx context.Context) ([]ExportedEntry, error) {
	return s.inner.Export(ctx)
}

// Import replays exported entries through regular set semantics, subject
// to the same quota and eviction rules. Returns the number imported.
func (s *Store) Import(ctx context.Context, entries []ExportedEntry) (int, error) {
	return s.inner.Import(ctx, entries)
}

// Stats recomputes the statistics view.
func (s *Store) Stats(ctx context.Context) (*Statistics, error) {
	return s.inner.Stats(ctx)
}

// Quota returns the current capacity snapshot.
func (s *Store) Quota(ctx context.Context) (QuotaSnapshot, error) {
	return s.inner.Quota(ctx)
}

// SweepExpired removes all expired entries now instead of waiting for the
// next maintenance pass.
func (s *Store) SweepExpired(ctx context.Context) (removed int, freedBytes int64, err error) {
	return s.inner.SweepExpired(ctx)
}

// RunMaintenance executes one maintenance pass on demand.
func (s *Store) RunMaintenance(ctx context.Context) error {
	return s.inner.RunMaintenance(ctx)
}

// Close stops maintenance, flushes pending metadata and releases the
// backing medium.
func (s *Store) Close() error {
	return s.inner.Close()
}
