package stash

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// HealthLevel classifies a store's quota pressure.
type HealthLevel string

const (
	HealthOK       HealthLevel = "ok"
	HealthWarning  HealthLevel = "warning"
	HealthCritical HealthLevel = "critical"
)

// HealthStatus is the monitor's verdict on one store.
type HealthStatus struct {
	Level           HealthLevel `json:"level"`
	Message         string      `json:"message"`
	Recommendations []string    `json:"recommendations"`
}

// AggregateStats summarizes all registered stores.
type AggregateStats struct {
	TotalItems     int     `json:"total_items"`
	TotalBytes     int64   `json:"total_bytes"`
	AverageHitRate float64 `json:"average_hit_rate"`
	MaxQuotaUsage  float64 `json:"max_quota_usage"`
}

// Monitor watches a set of named store instances: it periodically drives
// each store's maintenance, reports per-store health and aggregates
// statistics. One store's failure never aborts the loop for the others.
type Monitor struct {
	interval time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	stores map[string]*Store
	cancel context.CancelFunc
}

// NewMonitor creates a monitor with the given check cadence.
func NewMonitor(interval time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		interval: interval,
		logger:   logger,
		stores:   make(map[string]*Store),
	}
}

// Register adds a store under a name, replacing any previous registration.
func (m *Monitor) Register(name string, s *Store) {
	m.mu.Lock()
	m.stores[name] = s
	m.mu.Unlock()
}

// Unregister removes a store from the monitor.
func (m *Monitor) Unregister(name string) {
	m.mu.Lock()
	delete(m.stores, name)
	m.mu.Unlock()
}

// Start launches the monitor loop; it stops when ctx is cancelled or Stop
// is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkAll(ctx)
			}
		}
	}()
}

// Stop halts the monitor loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()
}

// Status computes the health verdict for one registered store.
func (m *Monitor) Status(ctx context.Context, name string) (*HealthStatus, error) {
	m.mu.RLock()
	s, ok := m.stores[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no store registered under %q", name)
	}
	return m.statusFor(ctx, s)
}

// Aggregate combines statistics across all registered stores. Stores that
// fail to report are skipped.
func (m *Monitor) Aggregate(ctx context.Context) *AggregateStats {
	agg := &AggregateStats{}
	var hitRates []float64
	for name, s := range m.snapshot() {
		stats, err := s.Stats(ctx)
		if err != nil {
			m.logger.Warn("store failed to report statistics",
				zap.String("store", name), zap.Error(err))
			continue
		}
		agg.TotalItems += stats.Entries
		agg.TotalBytes += stats.TotalBytes
		hitRates = append(hitRates, stats.HitRate)
		if stats.Quota.UsedPercent > agg.MaxQuotaUsage {
			agg.MaxQuotaUsage = stats.Quota.UsedPercent
		}
	}
	for _, rate := range hitRates {
		agg.AverageHitRate += rate
	}
	if len(hitRates) > 0 {
		agg.AverageHitRate /= float64(len(hitRates))
	}
	return agg
}

func (m *Monitor) snapshot() map[string]*Store {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*Store, len(m.stores))
	for name, s := range m.stores {
		out[name] = s
	}
	return out
}

// checkAll runs one monitor pass: maintenance plus a health check per
// store, with per-store error isolation.
func (m *Monitor) checkAll(ctx context.Context) {
	for name, s := range m.snapshot() {
		if err := s.RunMaintenance(ctx); err != nil {
			m.logger.Warn("store maintenance failed",
				zap.String("store", name), zap.Error(err))
		}
		status, err := m.statusFor(ctx, s)
		if err != nil {
			m.logger.Warn("store health check failed",
				zap.String("store", name), zap.Error(err))
			continue
		}
		switch status.Level {
		case HealthCritical:
			m.logger.Error("store quota critical",
				zap.String("store", name), zap.String("message", status.Message))
		case HealthWarning:
			m.logger.Warn("store quota warning",
				zap.String("store", name), zap.String("message", status.Message))
		}
	}
}

func (m *Monitor) statusFor(ctx context.Context, s *Store) (*HealthStatus, error) {
	snap, err := s.Quota(ctx)
	if err != nil {
		return nil, err
	}

	used := humanize.Bytes(uint64(snap.UsedBytes))
	total := humanize.Bytes(uint64(snap.TotalBytes))
	message := fmt.Sprintf("using %s of %s (%.1f%%)", used, total, snap.UsedPercent*100)

	switch {
	case snap.UsedPercent >= s.cfg.QuotaCriticalThreshold:
		return &HealthStatus{
			Level:   HealthCritical,
			Message: message,
			Recommendations: []string{
				fmt.Sprintf("usage is past the critical threshold (%.0f%%); eviction is being forced", s.cfg.QuotaCriticalThreshold*100),
				"increase the namespace budget or clear stale entries",
				"lower entry priorities so eviction can reclaim space sooner",
			},
		}, nil
	case snap.UsedPercent >= s.cfg.QuotaWarningThreshold:
		return &HealthStatus{
			Level:   HealthWarning,
			Message: message,
			Recommendations: []string{
				fmt.Sprintf("usage is past the warning threshold (%.0f%%)", s.cfg.QuotaWarningThreshold*100),
				"shorten TTLs or enable compression for large payloads",
			},
		}, nil
	default:
		return &HealthStatus{Level: HealthOK, Message: message}, nil
	}
}
