package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStatsCollector exports pgxpool statistics on every scrape.
type PoolStatsCollector struct {
	pool    *pgxpool.Pool
	service string

	acquiredConns    *prometheus.Desc
	idleConns        *prometheus.Desc
	totalConns       *prometheus.Desc
	maxConns         *prometheus.Desc
	acquireCount     *prometheus.Desc
	acquireDuration  *prometheus.Desc
	emptyAcquires    *prometheus.Desc
	canceledAcquires *prometheus.Desc
}

// NewPoolStatsCollector creates a collector for pool labelled with service.
func NewPoolStatsCollector(pool *pgxpool.Pool, service string) *PoolStatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("db_pool_"+name, help, nil, prometheus.Labels{"service": service})
	}
	return &PoolStatsCollector{
		pool:             pool,
		service:          service,
		acquiredConns:    desc("acquired_connections", "Number of currently acquired connections"),
		idleConns:        desc("idle_connections", "Number of currently idle connections"),
		totalConns:       desc("total_connections", "Total number of connections in the pool"),
		maxConns:         desc("max_connections", "Maximum number of connections allowed"),
		acquireCount:     desc("acquire_count_total", "Total number of connection acquires"),
		acquireDuration:  desc("acquire_duration_seconds_total", "Total time spent acquiring connections"),
		emptyAcquires:    desc("empty_acquire_count_total", "Acquires that had to wait for a connection"),
		canceledAcquires: desc("canceled_acquire_count_total", "Acquires canceled by their context"),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredConns
	ch <- c.idleConns
	ch <- c.totalConns
	ch <- c.maxConns
	ch <- c.acquireCount
	ch <- c.acquireDuration
	ch <- c.emptyAcquires
	ch <- c.canceledAcquires
}

// Collect implements prometheus.Collector.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stat()

	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}

	gauge(c.acquiredConns, float64(stat.AcquiredConns()))
	gauge(c.idleConns, float64(stat.IdleConns()))
	gauge(c.totalConns, float64(stat.TotalConns()))
	gauge(c.maxConns, float64(stat.MaxConns()))
	counter(c.acquireCount, float64(stat.AcquireCount()))
	counter(c.acquireDuration, stat.AcquireDuration().Seconds())
	counter(c.emptyAcquires, float64(stat.EmptyAcquireCount()))
	counter(c.canceledAcquires, float64(stat.CanceledAcquireCount()))
}

// RegisterPoolMetrics registers a PoolStatsCollector for pool with reg.
func RegisterPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool, service string) error {
	return reg.Register(NewPoolStatsCollector(pool, service))
}
