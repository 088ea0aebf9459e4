package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codesync",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "codesync",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codesync",
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	})

	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codesync",
		Name:      "ws_connections",
		Help:      "Currently open collaboration websocket connections",
	})

	roomJoins = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codesync",
		Name:      "room_joins_total",
		Help:      "Successful room joins",
	})

	ghostsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codesync",
		Name:      "ghosts_purged_total",
		Help:      "Participants removed because their connection no longer exists",
	})

	roomsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codesync",
		Name:      "rooms_ended_total",
		Help:      "Rooms torn down, by reason",
	}, []string{"reason"})

	executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codesync",
		Name:      "executions_total",
		Help:      "Code executions by provider and outcome",
	}, []string{"provider", "outcome"})

	graceTimers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codesync",
		Name:      "grace_timers_pending",
		Help:      "Rooms waiting for their interviewer to come back",
	})
)

func ConnectionOpened() { wsConnections.Inc() }
func ConnectionClosed() { wsConnections.Dec() }
func RoomJoined() { roomJoins.Inc() }
func GhostsPurged(n int) { ghostsPurged.Add(float64(n)) }

func RoomEnded(reason string) { roomsEnded.WithLabelValues(reason).Inc() }

func ObserveExecution(provider, outcome string) {
	executions.WithLabelValues(provider, outcome).Inc()
}

func SetPendingGraceTimers(n int) { graceTimers.Set(float64(n)) }

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// websocket upgrades need the underlying connection
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"path":   routePattern(r),
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

// route patterns keep room and question ids out of label values
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
