package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"goflare.io/stash/pkg/backend"
)

type stubEstimator struct {
	usage backend.Usage
	err   error
	calls int
}

func (s *stubEstimator) Estimate(context.Context) (backend.Usage, error) {
	s.calls++
	return s.usage, s.err
}

func TestCurrentFallsBackToSummation(t *testing.T) {
	used := int64(300)
	tracker := New(1000, func() int64 { return used }, nil, time.Second, gobreaker.Settings{}, zap.NewNop())

	snap := tracker.Current(context.Background())

	assert.Equal(t, int64(1000), snap.TotalBytes)
	assert.Equal(t, int64(300), snap.UsedBytes)
	assert.Equal(t, int64(700), snap.AvailableBytes)
	assert.InDelta(t, 0.3, snap.UsedPercent, 0.001)
}

func TestCurrentClampsOverCommit(t *testing.T) {
	tracker := New(1000, func() int64 { return 1500 }, nil, time.Second, gobreaker.Settings{}, zap.NewNop())

	snap := tracker.Current(context.Background())

	assert.Equal(t, int64(0), snap.AvailableBytes)
	assert.InDelta(t, 1.5, snap.UsedPercent, 0.001)
}

func TestEstimatorShrinksAvailable(t *testing.T) {
	est := &stubEstimator{usage: backend.Usage{TotalBytes: 500, UsedBytes: 400}}
	tracker := New(1000, func() int64 { return 100 }, est, time.Second, gobreaker.Settings{}, zap.NewNop())

	snap := tracker.Current(context.Background())

	// Namespace summation alone would report 900 available; the medium
	// says only 100 remain.
	assert.Equal(t, int64(100), snap.AvailableBytes)
	assert.Equal(t, int64(100), snap.UsedBytes)
}

func TestEstimatorNeverGrowsAvailable(t *testing.T) {
	est := &stubEstimator{usage: backend.Usage{TotalBytes: 1 << 40, UsedBytes: 0}}
	tracker := New(1000, func() int64 { return 600 }, est, time.Second, gobreaker.Settings{}, zap.NewNop())

	snap := tracker.Current(context.Background())

	assert.Equal(t, int64(400), snap.AvailableBytes)
}

func TestEstimatorFailureIsAbsorbed(t *testing.T) {
	est := &stubEstimator{err: errors.New("medium offline")}
	tracker := New(1000, func() int64 { return 250 }, est, time.Second, gobreaker.Settings{}, zap.NewNop())

	snap := tracker.Current(context.Background())

	assert.Equal(t, int64(750), snap.AvailableBytes)
}

func TestEstimatorUnknownCeilingIsIgnored(t *testing.T) {
	est := &stubEstimator{usage: backend.Usage{TotalBytes: 0, UsedBytes: 0}}
	tracker := New(1000, func() int64 { return 200 }, est, time.Second, gobreaker.Settings{}, zap.NewNop())

	snap := tracker.Current(context.Background())

	assert.Equal(t, int64(800), snap.AvailableBytes)
}

func TestSnapshotCachingAndInvalidation(t *testing.T) {
	used := int64(100)
	tracker := New(1000, func() int64 { return used }, nil, time.Second, gobreaker.Settings{}, zap.NewNop())

	first := tracker.Current(context.Background())
	assert.Equal(t, int64(100), first.UsedBytes)

	// The cached snapshot hides the new usage until invalidated.
	used = 900
	cached := tracker.Current(context.Background())
	assert.Equal(t, int64(100), cached.UsedBytes)

	tracker.Invalidate()
	fresh := tracker.Current(context.Background())
	assert.Equal(t, int64(900), fresh.UsedBytes)
}
