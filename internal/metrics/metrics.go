package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all tomato metrics
const namespace = "tomato"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// SemanticQueriesTotal counts semantic interface queries by switcher and format
var SemanticQueriesTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "semantic_queries_total",
		Help:      "Total number of semantic interface queries",
	},
	[]string{"switcher", "format"},
)

// Geocoding metrics

// GeocodingRequestsTotal tracks Google geocoding requests by outcome
var GeocodingRequestsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geocoding_requests_total",
		Help:      "Total number of Google geocoding API requests",
	},
	[]string{"status"}, // status: ok|zero_results|error
)

// GeocodingLatency tracks Google geocoding request latency
var GeocodingLatency = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "geocoding_latency_seconds",
		Help:      "Google geocoding API request latency in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
)

// Init initializes the metrics registry and sets version information
func Init(version, commit, buildDate string) {
	// Register default Go metrics (memory, goroutines, GC, etc.)
	Registry.MustRegister(collectors.NewGoCollector())

	// Register process metrics (CPU, memory, file descriptors)
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
