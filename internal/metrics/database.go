package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query instrumentation, fed by the postgres repositories on the read
// paths the semantic interface hammers.
var (
	DBQueryDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_errors_total",
			Help:      "Total number of database errors",
		},
		[]string{"operation", "error_type"},
	)
)

// RecordQuery observes one query's duration and counts its failure, if
// any. Call it right after the query returns:
//
//	start := time.Now()
//	rows, err := pool.Query(ctx, sql, args...)
//	metrics.RecordQuery("search_meetings", start, err)
func RecordQuery(operation string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}
	kind := "query_error"
	switch {
	case errors.Is(err, context.Canceled):
		kind = "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		kind = "timeout"
	}
	DBErrors.WithLabelValues(operation, kind).Inc()
}

// PoolStatsCollector exports pgx pool statistics at scrape time, so the
// gauges are exactly as fresh as the scrape reading them and no ticker
// runs between scrapes.
type PoolStatsCollector struct {
	pool *pgxpool.Pool

	open     *prometheus.Desc
	acquired *prometheus.Desc
	idle     *prometheus.Desc
	max      *prometheus.Desc
}

// NewPoolStatsCollector builds the collector. A nil pool yields no
// samples, which keeps tests and tools that run without a database off
// the failure path.
func NewPoolStatsCollector(pool *pgxpool.Pool) *PoolStatsCollector {
	return &PoolStatsCollector{
		pool:     pool,
		open:     prometheus.NewDesc(namespace+"_db_connections_open", "Open connections in the pool", nil, nil),
		acquired: prometheus.NewDesc(namespace+"_db_connections_in_use", "Connections currently acquired", nil, nil),
		idle:     prometheus.NewDesc(namespace+"_db_connections_idle", "Idle connections in the pool", nil, nil),
		max:      prometheus.NewDesc(namespace+"_db_connections_max_open", "Pool connection limit", nil, nil),
	}
}

func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.open
	ch <- c.acquired
	ch <- c.idle
	ch <- c.max
}

func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.pool == nil {
		return
	}
	stat := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(stat.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(stat.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(stat.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(stat.MaxConns()))
}

// RegisterPool attaches the pool statistics collector to the registry.
func RegisterPool(pool *pgxpool.Pool) {
	Registry.MustRegister(NewPoolStatsCollector(pool))
}
