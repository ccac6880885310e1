package stash

import (
	"goflare.io/stash/internal/codec"
	"goflare.io/stash/internal/quota"
	"goflare.io/stash/internal/store"
)

var (
	// ErrSerialization means the input value could not be encoded. It is
	// the only storage fault Set surfaces; capacity failures are reported
	// as a false result instead.
	ErrSerialization = codec.ErrSerialization

	// ErrDeserialization means stored bytes were unparseable. It is
	// handled internally by lazy deletion and surfaced as a miss; exposed
	// here for callers inspecting logs or wrapped errors.
	ErrDeserialization = codec.ErrDeserialization

	// ErrEstimateUnavailable means the medium-level quota estimate failed;
	// the tracker silently falls back to byte summation.
	ErrEstimateUnavailable = quota.ErrEstimateUnavailable

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = store.ErrClosed
)
