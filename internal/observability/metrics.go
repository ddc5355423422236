package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "heritage",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "heritage",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	contributions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "heritage",
			Subsystem: "contributions",
			Name:      "total",
			Help:      "Contributions accepted or rejected, by kind.",
		},
		[]string{"kind", "accepted"},
	)
	uploadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "heritage",
			Subsystem: "media",
			Name:      "upload_bytes_total",
			Help:      "Bytes of artifact media written.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, contributions, uploadBytes)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordContribution(kind string, accepted bool) {
	RegisterMetrics()
	contributions.WithLabelValues(kind, strconv.FormatBool(accepted)).Inc()
}

func RecordUpload(bytes int64) {
	RegisterMetrics()
	if bytes > 0 {
		uploadBytes.Add(float64(bytes))
	}
}
