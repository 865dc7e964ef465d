package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// StatSource is implemented by *pgxpool.Pool.
type StatSource interface {
	Stat() *pgxpool.Stat
}

// PoolStatsCollector exports pgxpool statistics as Prometheus metrics.
type PoolStatsCollector struct {
	pool    StatSource
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

func poolDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc("db_pool_"+name, help, []string{"service"}, nil)
}

// NewPoolStatsCollector creates a collector reading from pool on every scrape.
func NewPoolStatsCollector(pool StatSource, service string) *PoolStatsCollector {
	return &PoolStatsCollector{
		pool:             pool,
		service:          service,
		acquiredConns:    poolDesc("acquired_connections", "Number of currently acquired connections"),
		idleConns:        poolDesc("idle_connections", "Number of currently idle connections"),
		totalConns:       poolDesc("total_connections", "Total number of connections in the pool"),
		maxConns:         poolDesc("max_connections", "Maximum number of connections allowed"),
		acquireCount:     poolDesc("acquire_count_total", "Total number of connection acquires"),
		acquireDuration:  poolDesc("acquire_duration_seconds_total", "Total time spent acquiring connections in seconds"),
		emptyAcquires:    poolDesc("empty_acquire_count_total", "Total number of acquires that had to wait for a connection"),
		canceledAcquires: poolDesc("canceled_acquire_count_total", "Total number of canceled connection acquires"),
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
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, c.service)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, c.service)
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

// RegisterPoolMetrics registers a pool collector with reg.
func RegisterPoolMetrics(reg prometheus.Registerer, pool StatSource, service string) error {
	return reg.Register(NewPoolStatsCollector(pool, service))
}
