// Package metrics exports connection pool statistics to Prometheus.
package metrics

import (
	"github.com/koustreak/jobqueue/internal/database"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "jobqueue_pool"

// StatsSource is anything that can snapshot its pool usage.
type StatsSource interface {
	Stats() database.PoolStats
}

// PoolCollector reads a fresh PoolStats on every scrape.
type PoolCollector struct {
	source StatsSource

	maxConns       *prometheus.Desc
	totalConns     *prometheus.Desc
	idleConns      *prometheus.Desc
	inUseConns     *prometheus.Desc
	acquires       *prometheus.Desc
	waits          *prometheus.Desc
	canceled       *prometheus.Desc
	waitSeconds    *prometheus.Desc
	idleClosed     *prometheus.Desc
	lifetimeClosed *prometheus.Desc
}

// NewPoolCollector returns a collector for source labelled pool=name.
func NewPoolCollector(name string, source StatsSource) *PoolCollector {
	labels := prometheus.Labels{"pool": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", metric), help, nil, labels)
	}

	return &PoolCollector{
		source:         source,
		maxConns:       desc("max_connections", "Maximum size of the pool"),
		totalConns:     desc("connections", "Open connections, idle and in use"),
		idleConns:      desc("idle_connections", "Idle connections"),
		inUseConns:     desc("in_use_connections", "Connections currently acquired"),
		acquires:       desc("acquires_total", "Successful acquires"),
		waits:          desc("waits_total", "Acquires that had to wait for a connection"),
		canceled:       desc("canceled_acquires_total", "Acquires canceled by their context"),
		waitSeconds:    desc("acquire_wait_seconds_total", "Cumulative time spent acquiring"),
		idleClosed:     desc("idle_closed_total", "Connections closed for exceeding the idle timeout"),
		lifetimeClosed: desc("lifetime_closed_total", "Connections closed for exceeding the max lifetime"),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxConns
	ch <- c.totalConns
	ch <- c.idleConns
	ch <- c.inUseConns
	ch <- c.acquires
	ch <- c.waits
	ch <- c.canceled
	ch <- c.waitSeconds
	ch <- c.idleClosed
	ch <- c.lifetimeClosed
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()

	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}

	gauge(c.maxConns, float64(s.MaxConns))
	gauge(c.totalConns, float64(s.TotalConns))
	gauge(c.idleConns, float64(s.IdleConns))
	gauge(c.inUseConns, float64(s.InUseConns))
	counter(c.acquires, float64(s.AcquireCount))
	counter(c.waits, float64(s.WaitCount))
	counter(c.canceled, float64(s.CanceledAcquireCount))
	counter(c.waitSeconds, s.WaitDuration.Seconds())
	counter(c.idleClosed, float64(s.IdleClosed))
	counter(c.lifetimeClosed, float64(s.LifetimeClosed))
}
