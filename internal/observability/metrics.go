package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

var (
	registerOnce sync.Once

	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sockwrap",
			Subsystem: "frame",
			Name:      "frames_total",
			Help:      "Frames and raw streams moved over the socket.",
		},
		[]string{"direction"},
	)
	frameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sockwrap",
			Subsystem: "frame",
			Name:      "bytes_total",
			Help:      "Bytes moved over the socket, including length prefixes.",
		},
		[]string{"direction"},
	)
	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sockwrap",
			Subsystem: "wire",
			Name:      "messages_total",
			Help:      "Logical messages by envelope tag.",
		},
		[]string{"direction", "tag"},
	)
	streamPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sockwrap",
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Streaming client loop events.",
		},
		[]string{"event"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sockwrap",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests served by the metrics listener.",
		},
		[]string{"app", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sockwrap",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Metrics listener request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"app", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}

// Collectors returns the package collectors for callers using their own registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{frames, frameBytes, messages, streamPolls, httpRequests, httpDuration}
}

func RecordFrame(dir Direction, n int64) {
	frames.WithLabelValues(string(dir)).Inc()
	frameBytes.WithLabelValues(string(dir)).Add(float64(n))
}

func RecordMessage(dir Direction, tag string) {
	messages.WithLabelValues(string(dir), tag).Inc()
}

// RecordStreamEvent counts poll, resize, stop and fault events of a streaming client.
func RecordStreamEvent(event string) {
	streamPolls.WithLabelValues(event).Inc()
}

func RecordHTTPRequest(app, method, path string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(app, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(app, method, path, statusLabel).Observe(duration.Seconds())
}
