package stash

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fill writes one entry whose JSON payload occupies exactly size bytes.
func fill(t *testing.T, s *Store, key string, size int) {
	t.Helper()
	ok, err := s.Set(context.Background(), key, strings.Repeat("x", size-2))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMonitorStatusOK(t *testing.T) {
	s := newStore(t, WithMaxSize(1000))
	fill(t, s, "k", 100)

	m := NewMonitor(time.Minute, nil)
	m.Register("traces", s)

	status, err := m.Status(context.Background(), "traces")
	require.NoError(t, err)
	assert.Equal(t, HealthOK, status.Level)
	assert.NotEmpty(t, status.Message)
	assert.Empty(t, status.Recommendations)
}

func TestMonitorStatusWarning(t *testing.T) {
	s := newStore(t, WithMaxSize(1000), WithQuotaThresholds(0.8, 0.95))
	fill(t, s, "k", 850)

	m := NewMonitor(time.Minute, nil)
	m.Register("traces", s)

	status, err := m.Status(context.Background(), "traces")
	require.NoError(t, err)
	assert.Equal(t, HealthWarning, status.Level)
	assert.Contains(t, status.Message, "85.0%")
	assert.NotEmpty(t, status.Recommendations)
}

func TestMonitorStatusCritical(t *testing.T) {
	s := newStore(t, WithMaxSize(1000), WithQuotaThresholds(0.5, 0.7))
	fill(t, s, "k", 750)

	m := NewMonitor(time.Minute, nil)
	m.Register("traces", s)

	status, err := m.Status(context.Background(), "traces")
	require.NoError(t, err)
	assert.Equal(t, HealthCritical, status.Level)
	assert.NotEmpty(t, status.Recommendations)
}

func TestMonitorUnknownStore(t *testing.T) {
	m := NewMonitor(time.Minute, nil)

	_, err := m.Status(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestMonitorAggregate(t *testing.T) {
	ctx := context.Background()
	s1 := newStore(t, WithMaxSize(1000), WithKeyPrefix("one"))
	s2 := newStore(t, WithMaxSize(1000), WithKeyPrefix("two"))
	fill(t, s1, "a", 200)
	fill(t, s2, "b", 500)

	// One hit on s1, nothing read on s2.
	var out string
	found, err := s1.Get(ctx, "a", &out)
	require.NoError(t, err)
	require.True(t, found)

	m := NewMonitor(time.Minute, nil)
	m.Register("one", s1)
	m.Register("two", s2)

	agg := m.Aggregate(ctx)
	assert.Equal(t, 2, agg.TotalItems)
	assert.Equal(t, int64(700), agg.TotalBytes)
	assert.InDelta(t, 0.5, agg.AverageHitRate, 0.001)
	assert.InDelta(t, 0.5, agg.MaxQuotaUsage, 0.001)
}

func TestMonitorAggregateSkipsFailingStores(t *testing.T) {
	ctx := context.Background()
	healthy := newStore(t, WithMaxSize(1000), WithKeyPrefix("healthy"))
	fill(t, healthy, "a", 300)

	broken := newStore(t, WithKeyPrefix("broken"))
	require.NoError(t, broken.Close())

	m := NewMonitor(time.Minute, nil)
	m.Register("healthy", healthy)
	m.Register("broken", broken)

	agg := m.Aggregate(ctx)
	assert.Equal(t, 1, agg.TotalItems)
	assert.Equal(t, int64(300), agg.TotalBytes)
}

func TestMonitorUnregister(t *testing.T) {
	s := newStore(t)
	m := NewMonitor(time.Minute, nil)
	m.Register("s", s)
	m.Unregister("s")

	_, err := m.Status(context.Background(), "s")
	assert.Error(t, err)
}

func TestCollectorExportsPerStoreMetrics(t *testing.T) {
	s := newStore(t, WithMaxSize(1000), WithKeyPrefix("metrics"))
	fill(t, s, "a", 100)

	m := NewMonitor(time.Minute, nil)
	m.Register("metrics", s)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(m)))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	for _, want := range []string{
		"stash_entries",
		"stash_bytes",
		"stash_quota_used_ratio",
		"stash_hit_rate",
		"stash_evictions_total",
	} {
		assert.True(t, names[want], "missing metric family %s", want)
	}
}
