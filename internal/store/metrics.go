package store

import "go.uber.org/atomic"

// Metrics stores hit/miss counters for one store instance.
type Metrics struct {
	Hits   *atomic.Int64
	Misses *atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		Hits:   atomic.NewInt64(0),
		Misses: atomic.NewInt64(0),
	}
}

// HitRate returns hits/(hits+misses), or zero before any read.
func (m *Metrics) HitRate() float64 {
	hits := m.Hits.Load()
	total := hits + m.Misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
