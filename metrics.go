package stash

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Collector exposes the monitor's registered stores as Prometheus metrics.
// Register it with a prometheus.Registerer to scrape per-store entry
// counts, byte usage, quota pressure, hit rates and eviction totals.
type Collector struct {
	monitor *Monitor

	entries   *prometheus.Desc
	bytes     *prometheus.Desc
	usedRatio *prometheus.Desc
	hitRate   *prometheus.Desc
	evictions *prometheus.Desc
}

// NewCollector builds a collector over the monitor's registry.
func NewCollector(m *Monitor) *Collector {
	labels := []string{"store"}
	return &Collector{
		monitor: m,
		entries: prometheus.NewDesc("stash_entries",
			"Number of live entries in the store.", labels, nil),
		bytes: prometheus.NewDesc("stash_bytes",
			"Total persisted bytes of live entries.", labels, nil),
		usedRatio: prometheus.NewDesc("stash_quota_used_ratio",
			"Fraction of the namespace byte budget in use.", labels, nil),
		hitRate: prometheus.NewDesc("stash_hit_rate",
			"Fraction of reads served as hits.", labels, nil),
		evictions: prometheus.NewDesc("stash_evictions_total",
			"Entries evicted under space pressure since startup.", labels, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.bytes
	ch <- c.usedRatio
	ch <- c.hitRate
	ch <- c.evictions
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx := context.Background()
	for name, s := range c.monitor.snapshot() {
		stats, err := s.Stats(ctx)
		if err != nil {
			c.monitor.logger.Warn("skipping store during metrics collection",
				zap.String("store", name), zap.Error(err))
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue,
			float64(stats.Entries), name)
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue,
			float64(stats.TotalBytes), name)
		ch <- prometheus.MustNewConstMetric(c.usedRatio, prometheus.GaugeValue,
			stats.Quota.UsedPercent, name)
		ch <- prometheus.MustNewConstMetric(c.hitRate, prometheus.GaugeValue,
			stats.HitRate, name)
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue,
			float64(stats.Evictions), name)
	}
}
