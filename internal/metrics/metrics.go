// Package metrics provides Prometheus metrics for the portal.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portal"

var (
	// RequestsTotal counts HTTP requests served by the portal.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration measures how long the portal took to answer.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// AccessDecisions counts access gate outcomes.
	AccessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_decisions_total",
			Help:      "Access gate decisions by outcome",
		},
		[]string{"outcome"},
	)

	// RefreshTotal counts token refresh attempts against the remote service.
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Token refresh attempts by result",
		},
		[]string{"result"},
	)

	// ForcedLogouts counts sessions ended by the API client.
	ForcedLogouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_logouts_total",
			Help:      "Sessions logged out by the API client",
		},
		[]string{"reason"},
	)

	// BrowserSessions tracks live browser sessions.
	BrowserSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_sessions",
			Help:      "Browser sessions held in memory",
		},
	)
)

// RecordRequest records a served request.
func RecordRequest(method string, status int, seconds float64) {
	RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method).Observe(seconds)
}

// RecordDecision records an access gate outcome.
func RecordDecision(outcome string) {
	AccessDecisions.WithLabelValues(outcome).Inc()
}

// RecordRefresh records a refresh that succeeded or failed.
func RecordRefresh(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	RefreshTotal.WithLabelValues(result).Inc()
}

// RecordForcedLogout records a session the API client ended.
func RecordForcedLogout(reason string) {
	ForcedLogouts.WithLabelValues(reason).Inc()
}

// SetBrowserSessions sets the live browser session count.
func SetBrowserSessions(n int) {
	BrowserSessions.Set(float64(n))
}
