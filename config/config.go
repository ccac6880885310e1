// Package config holds the construction-time configuration of a store
// instance. A Config is immutable once the store is built.
package config

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"goflare.io/stash/pkg/backend"
	"goflare.io/stash/pkg/compress"
	"goflare.io/stash/pkg/serialization"
)

// Policy selects the eviction ordering used when space must be reclaimed.
type Policy string

const (
	PolicyLRU          Policy = "lru"
	PolicyLFU          Policy = "lfu"
	PolicyPriority     Policy = "priority"
	PolicyTTLProximity Policy = "ttl"
)

// Valid reports whether the policy is one of the supported orderings.
func (p Policy) Valid() bool {
	switch p {
	case PolicyLRU, PolicyLFU, PolicyPriority, PolicyTTLProximity:
		return true
	}
	return false
}

// CompressionConfig controls the transparent payload compression applied by
// the entry codec and the maintenance compression pass.
type CompressionConfig struct {
	Enabled   bool
	Algorithm string // zstd, gzip or br
	Threshold int64  // raw payload bytes above which compression kicks in
}

// SerializationConfig selects the value codec.
type SerializationConfig struct {
	Type  string
	Codec serialization.Codec
}

// BloomFilterConfig sizes the negative-lookup filter.
type BloomFilterConfig struct {
	ExpectedItems     uint
	FalsePositiveRate float64
}

// ResilienceConfig configures retries and the circuit breaker wrapped
// around backend I/O and quota estimation.
type ResilienceConfig struct {
	Breaker        gobreaker.Settings
	RetrierBackoff []time.Duration
}

// Config is the full configuration of one store instance.
type Config struct {
	// MaxSize is the soft byte budget for live entries in this namespace.
	MaxSize int64

	// DefaultTTL applies to entries written without an explicit TTL.
	DefaultTTL time.Duration

	// EvictionPolicy orders victims under space pressure.
	EvictionPolicy Policy

	// KeyPrefix namespaces this instance on the shared medium.
	KeyPrefix string

	// QuotaWarningThreshold / QuotaCriticalThreshold are used-fraction
	// levels (0..1) at which maintenance and the monitor react.
	QuotaWarningThreshold  float64
	QuotaCriticalThreshold float64

	// MaintenanceInterval drives the background sweep/eviction/compression
	// pass; zero disables the timer (maintenance still runs at
	// construction and on demand).
	MaintenanceInterval time.Duration

	// EstimateTimeout bounds a single medium usage-estimate call before the
	// tracker falls back to byte summation.
	EstimateTimeout time.Duration

	// FrontCacheSize bounds the in-memory payload overlay in bytes; zero
	// disables it.
	FrontCacheSize int64

	Compression   CompressionConfig
	Serialization SerializationConfig
	BloomFilter   BloomFilterConfig
	Resilience    ResilienceConfig

	// Backend is the persistence medium. Defaults to an in-memory backend.
	Backend backend.Backend

	Logger *zap.Logger
}

// New returns a Config with the defaults a dashboard-sized store wants.
func New() *Config {
	return &Config{
		MaxSize:                64 * 1024 * 1024, // 64MB
		DefaultTTL:             24 * time.Hour,
		EvictionPolicy:         PolicyLRU,
		KeyPrefix:              "stash",
		QuotaWarningThreshold:  0.8,
		QuotaCriticalThreshold: 0.95,
		MaintenanceInterval:    5 * time.Minute,
		EstimateTimeout:        500 * time.Millisecond,
		FrontCacheSize:         8 * 1024 * 1024,
		Compression: CompressionConfig{
			Enabled:   true,
			Algorithm: compress.Zstd,
			Threshold: 1024,
		},
		Serialization: SerializationConfig{
			Type:  serialization.JSONType,
			Codec: serialization.JSON{},
		},
		BloomFilter: BloomFilterConfig{
			ExpectedItems:     10_000,
			FalsePositiveRate: 0.01,
		},
		Resilience: ResilienceConfig{
			Breaker: gobreaker.Settings{Name: "stash-backend"},
			RetrierBackoff: []time.Duration{
				50 * time.Millisecond,
				100 * time.Millisecond,
				200 * time.Millisecond,
			},
		},
		Logger: zap.NewNop(),
	}
}

// Validate checks the configuration for construction.
func (c *Config) Validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("max size must be positive, got %d", c.MaxSize)
	}
	if !c.EvictionPolicy.Valid() {
		return fmt.Errorf("unknown eviction policy %q", c.EvictionPolicy)
	}
	if c.KeyPrefix == "" {
		return fmt.Errorf("key prefix must not be empty")
	}
	if c.QuotaWarningThreshold <= 0 || c.QuotaWarningThreshold > 1 {
		return fmt.Errorf("quota warning threshold must be in (0,1], got %v", c.QuotaWarningThreshold)
	}
	if c.QuotaCriticalThreshold < c.QuotaWarningThreshold || c.QuotaCriticalThreshold > 1 {
		return fmt.Errorf("quota critical threshold must be in [warning,1], got %v", c.QuotaCriticalThreshold)
	}
	if c.Serialization.Codec == nil {
		return fmt.Errorf("serialization codec must be set")
	}
	return nil
}
