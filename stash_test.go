package stash

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goflare.io/stash/config"
	"goflare.io/stash/pkg/backend"
)

type traceReport struct {
	TraceID string `json:"trace_id"`
	Spans   int    `json:"spans"`
}

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	base := []Option{
		WithBackend(backend.NewMemory(0)),
		WithMaintenanceInterval(0),
		WithFrontCacheSize(0),
	}
	s, err := New(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ok, err := s.Set(ctx, "trace:1", traceReport{TraceID: "0xabc", Spans: 12},
		WithTTL(time.Hour), WithPriority(PriorityHigh))
	require.NoError(t, err)
	require.True(t, ok)

	var got traceReport
	found, err := s.Get(ctx, "trace:1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0xabc", got.TraceID)
	assert.Equal(t, 12, got.Spans)

	has, err := s.Has(ctx, "trace:1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestOptionValidation(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, WithEvictionPolicy(config.Policy("fifo")))
	assert.Error(t, err)

	_, err = New(ctx, WithSerialization("xml"))
	assert.Error(t, err)

	_, err = New(ctx, WithMaxSize(-1))
	assert.Error(t, err)
}

func TestGobSerialization(t *testing.T) {
	s := newStore(t, WithSerialization("gob"))
	ctx := context.Background()

	ok, err := s.Set(ctx, "r", traceReport{TraceID: "0xdef", Spans: 3})
	require.NoError(t, err)
	require.True(t, ok)

	var got traceReport
	found, err := s.Get(ctx, "r", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0xdef", got.TraceID)
}

func TestForcedCompressionViaFacade(t *testing.T) {
	s := newStore(t, WithCompression(true), WithCompressionThreshold(1<<20))
	ctx := context.Background()

	value := strings.Repeat("span data ", 500)
	ok, err := s.Set(ctx, "big", value, WithForcedCompression(true))
	require.NoError(t, err)
	require.True(t, ok)

	var got string
	found, err := s.Get(ctx, "big", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, value, got)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Greater(t, stats.CompressionRatio, 1.0)
}

func TestDefaultTTLApplies(t *testing.T) {
	s := newStore(t, WithDefaultTTL(20*time.Millisecond))
	ctx := context.Background()

	ok, err := s.Set(ctx, "ephemeral", "v")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	var got string
	found, err := s.Get(ctx, "ephemeral", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNamespaceIsolationOnSharedMedium(t *testing.T) {
	med := backend.NewMemory(0)
	ctx := context.Background()

	s1 := newStore(t, WithBackend(med), WithKeyPrefix("alpha"))
	s2 := newStore(t, WithBackend(med), WithKeyPrefix("beta"))

	ok, err := s1.Set(ctx, "shared-key", "from-alpha")
	require.NoError(t, err)
	require.True(t, ok)

	var got string
	found, err := s2.Get(ctx, "shared-key", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s2.Clear(ctx))
	found, err = s1.Get(ctx, "shared-key", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "from-alpha", got)
}

func TestReopenRecoversNamespace(t *testing.T) {
	med := backend.NewMemory(0)
	ctx := context.Background()

	s1, err := New(ctx,
		WithBackend(med), WithKeyPrefix("persist"),
		WithMaintenanceInterval(0), WithFrontCacheSize(0))
	require.NoError(t, err)

	ok, err := s1.Set(ctx, "k", traceReport{TraceID: "0x1", Spans: 1})
	require.NoError(t, err)
	require.True(t, ok)

	// Memory backend Close drops its data, so flush and reopen over the
	// same live instance instead of closing.
	s2, err := New(ctx,
		WithBackend(med), WithKeyPrefix("persist"),
		WithMaintenanceInterval(0), WithFrontCacheSize(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })

	var got traceReport
	found, err := s2.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0x1", got.TraceID)

	_ = s1.Close()
}

func TestExportImportAcrossStores(t *testing.T) {
	ctx := context.Background()
	src := newStore(t, WithKeyPrefix("src"))
	dst := newStore(t, WithKeyPrefix("dst"))

	ok, err := src.Set(ctx, "a", "alpha", WithPriority(PriorityCritical))
	require.NoError(t, err)
	require.True(t, ok)

	exported, err := src.Export(ctx)
	require.NoError(t, err)
	require.Len(t, exported, 1)

	imported, err := dst.Import(ctx, exported)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)

	var got string
	found, err := dst.Get(ctx, "a", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alpha", got)
}
