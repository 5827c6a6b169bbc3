package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors exported on /metrics. A nil *Metrics records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	loginAttempts   *prometheus.CounterVec
	lockouts        prometheus.Counter
	registrations   prometheus.Counter
	sessionsCreated prometheus.Counter
	sessionsEnded   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_server_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_server_requests_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		loginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_login_attempts_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"}, // success, invalid, locked, invalid_input, error
		),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_lockouts_total",
			Help: "Number of times a client key crossed the failed-login threshold",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Successful user registrations",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_sessions_created_total",
			Help: "Sessions issued",
		}),
		sessionsEnded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_sessions_ended_total",
				Help: "Sessions removed by reason",
			},
			[]string{"reason"}, // logout, expired, orphaned
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.httpRequests,
		m.httpDuration,
		m.loginAttempts,
		m.lockouts,
		m.registrations,
		m.sessionsCreated,
		m.sessionsEnded,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

func (m *Metrics) Registration() {
	if m == nil {
		return
	}
	m.registrations.Inc()
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

func (m *Metrics) SessionsEnded(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsEnded.WithLabelValues(reason).Add(float64(n))
}
