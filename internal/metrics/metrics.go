// Package metrics owns the process-wide prometheus collectors.
package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "calplan"

var initOnce sync.Once

var (
	tokenRefreshTotal *prometheus.CounterVec
	syncItemsTotal    *prometheus.CounterVec
	syncFailuresTotal *prometheus.CounterVec
	syncDuration      *prometheus.HistogramVec
	providerCalls     *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
)

func registerCounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		slog.Warn("prometheus counter register failed", "error", err)
	}
	return c
}

func registerHistogramVec(c *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
		slog.Warn("prometheus histogram register failed", "error", err)
	}
	return c
}

// Init registers every collector. It is safe to call repeatedly.
func Init() {
	initOnce.Do(func() {
		tokenRefreshTotal = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "refresh_total",
			Help:      "Access token refresh attempts by result.",
		}, []string{"result"}))

		syncItemsTotal = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "items_total",
			Help:      "Calendars and events reconciled.",
		}, []string{"kind", "outcome"}))

		syncFailuresTotal = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "failures_total",
			Help:      "Isolated sync failures by unit (account, calendar, event).",
		}, []string{"unit"}))

		syncDuration = registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of sync passes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scope", "result"}))

		providerCalls = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Remote calendar API calls by operation and result.",
		}, []string{"operation", "result"}))

		httpRequestsTotal = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}))

		httpDuration = registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}))
	})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// TokenRefresh records one refresh attempt.
func TokenRefresh(err error) {
	Init()
	tokenRefreshTotal.WithLabelValues(result(err)).Inc()
}

// SyncItems adds n reconciled items of kind ("calendar", "event") with
// the given outcome ("inserted", "updated", "unchanged", "skipped").
func SyncItems(kind, outcome string, n int) {
	if n <= 0 {
		return
	}
	Init()
	syncItemsTotal.WithLabelValues(kind, outcome).Add(float64(n))
}

// SyncFailure counts one isolated failure.
func SyncFailure(unit string) {
	Init()
	syncFailuresTotal.WithLabelValues(unit).Inc()
}

// ObserveSync records the duration of a sync pass.
func ObserveSync(scope string, started time.Time, err error) {
	Init()
	syncDuration.WithLabelValues(scope, result(err)).Observe(time.Since(started).Seconds())
}

// ProviderCall counts one remote API call.
func ProviderCall(operation string, err error) {
	Init()
	providerCalls.WithLabelValues(operation, result(err)).Inc()
}

// ObserveHTTP records a served request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}
