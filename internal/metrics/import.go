package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Import metrics
var (
	// ImportRunsTotal counts full import runs by result
	ImportRunsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_runs_total",
			Help:      "Total number of root server import runs",
		},
		[]string{"result"}, // result: success|error
	)

	// ImportRunDuration records the duration of a full import run
	ImportRunDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_run_duration_seconds",
			Help:      "Duration of a full root server import run in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	// RootServersImported counts per-root import outcomes
	RootServersImported = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "root_servers_imported_total",
			Help:      "Total number of per-root-server import attempts",
		},
		[]string{"result"}, // result: success|skipped|error
	)

	// ImportProblemsTotal counts rows recorded in import_problems
	ImportProblemsTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_problems_total",
			Help:      "Total number of per-record import problems recorded",
		},
	)

	// MeetingsTotal reports the number of published meetings after the
	// latest import, labelled by root server URL.
	MeetingsTotal = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "meetings_total",
			Help:      "Number of published meetings per root server after the latest import",
		},
		[]string{"root_server"},
	)

	// UpstreamRequestsTotal tracks HTTP requests to root servers
	UpstreamRequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of HTTP requests to root servers",
		},
		[]string{"endpoint", "status"}, // endpoint: server_info|service_bodies|formats|meetings|naws_dump|discovery
	)

	// UpstreamRequestLatency tracks root server request latency
	UpstreamRequestLatency = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_latency_seconds",
			Help:      "Root server HTTP request latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint"},
	)
)
