// Package codec turns typed values into persistable entries and back,
// applying best-effort compression on the way in.
package codec

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"goflare.io/stash/internal/entry"
	"goflare.io/stash/pkg/compress"
	"goflare.io/stash/pkg/serialization"
)

var (
	// ErrSerialization means the input value itself could not be encoded.
	// This is the one codec failure surfaced to callers.
	ErrSerialization = errors.New("failed to serialize value")

	// ErrDeserialization means the stored bytes are unparseable or failed
	// to decompress. The store treats it as a corrupt entry, never as a
	// fatal error.
	ErrDeserialization = errors.New("failed to deserialize value")
)

// Options carries the per-write knobs of Encode.
type Options struct {
	TTL      time.Duration
	Priority entry.Priority

	// Compress forces compression on or off for this write; nil defers to
	// the configured threshold.
	Compress *bool
}

// Codec composes a value serializer with an optional payload compressor.
type Codec struct {
	serializer serialization.Codec
	compressor compress.Compressor
	enabled    bool
	threshold  int64
	defaultTTL time.Duration
	logger     *zap.Logger
}

// New builds a codec. compressor may be nil, in which case compression is
// skipped entirely rather than replaced by a size-expanding stand-in.
func New(serializer serialization.Codec, compressor compress.Compressor, enabled bool, threshold int64, defaultTTL time.Duration, logger *zap.Logger) *Codec {
	return &Codec{
		serializer: serializer,
		compressor: compressor,
		enabled:    enabled,
		threshold:  threshold,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// Encode serializes value and wraps it into an Entry, compressing the
// payload when the options or the configured threshold ask for it.
// Compression is best-effort: a failed or non-shrinking transform falls
// back to the raw bytes.
func (c *Codec) Encode(key string, value any, opts Options) (*entry.Entry, error) {
	raw, err := c.serializer.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	payload := raw
	compressed := false
	if c.shouldCompress(int64(len(raw)), opts.Compress) {
		payload, compressed = c.tryCompress(key, raw)
	}

	return entry.New(key, payload, int64(len(raw)), ttl, opts.Priority, compressed), nil
}

// EncodeRaw wraps an already-serialized value into an Entry, applying the
// same compression decision as Encode. Used by import, whose values went
// through the serializer when they were exported.
func (c *Codec) EncodeRaw(key string, raw []byte, opts Options) *entry.Entry {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	payload := raw
	compressed := false
	if c.shouldCompress(int64(len(raw)), opts.Compress) {
		payload, compressed = c.tryCompress(key, raw)
	}
	return entry.New(key, payload, int64(len(raw)), ttl, opts.Priority, compressed)
}

// Decompress reverses the payload transform without deserializing.
func (c *Codec) Decompress(payload []byte) ([]byte, error) {
	if c.compressor == nil {
		return nil, fmt.Errorf("%w: no compressor configured", ErrDeserialization)
	}
	return c.compressor.Decompress(payload)
}

// Decode reverses compression and deserializes the payload into dest.
func (c *Codec) Decode(e *entry.Entry, dest any) error {
	payload := e.Payload
	if e.Compressed {
		if c.compressor == nil {
			return fmt.Errorf("%w: entry is compressed but no compressor is configured", ErrDeserialization)
		}
		raw, err := c.compressor.Decompress(payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDeserialization, err)
		}
		payload = raw
	}
	if err := c.serializer.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	return nil
}

// Recompress attempts to compress an uncompressed payload, returning the
// compressed form and true only when it shrinks by at least minGain
// (a fraction of the raw size). Used by the maintenance compression pass.
func (c *Codec) Recompress(raw []byte, minGain float64) ([]byte, bool) {
	if c.compressor == nil {
		return nil, false
	}
	out, err := c.compressor.Compress(raw)
	if err != nil {
		return nil, false
	}
	if float64(len(raw)-len(out)) < minGain*float64(len(raw)) {
		return nil, false
	}
	return out, true
}

func (c *Codec) shouldCompress(rawSize int64, force *bool) bool {
	if c.compressor == nil {
		return false
	}
	if force != nil {
		return *force
	}
	return c.enabled && rawSize > c.threshold
}

func (c *Codec) tryCompress(key string, raw []byte) ([]byte, bool) {
	out, err := c.compressor.Compress(raw)
	if err != nil {
		c.logger.Warn("compression failed, storing raw payload",
			zap.String("key", key), zap.Error(err))
		return raw, false
	}
	if len(out) >= len(raw) {
		return raw, false
	}
	return out, true
}
