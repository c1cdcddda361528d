// Package metrics holds the Prometheus collectors exported by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for monitoring.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// OAuth2 metrics
	OAuth2TokensIssued  *prometheus.CounterVec
	OAuth2TokensRevoked *prometheus.CounterVec
	OAuth2AuthRequests  *prometheus.CounterVec
	OAuth2Errors        *prometheus.CounterVec

	// Rate limiter and flood guard decisions
	RateLimitDecisions *prometheus.CounterVec

	// Audit pipeline
	AuditEvents *prometheus.CounterVec

	// Background sweeps
	SweptRecords *prometheus.CounterVec

	// Health metrics
	HealthChecksTotal     *prometheus.CounterVec
	ComponentHealthStatus *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sso_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sso_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sso_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{0, 100, 500, 1000, 5000, 10000, 50000},
			},
			[]string{"method", "path"},
		),
		OAuth2TokensIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sso_oauth2_tokens_issued_total",
				Help: "Total number of OAuth2 tokens issued",
			},
			[]string{"grant_type", "client_id"},
		),
		OAuth2TokensRevoked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sso_oauth2_tokens_revoked_total",
				Help: "Total number of OAuth2 tokens revoked",
			},
			[]string{"token_type", "client_id"},
		),
		OAuth2AuthRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sso_oauth2_authorization_requests_total",
				Help: "Total number of OAuth2 authorization requests",
			},
			[]string{"client_id", "status"},
		),
		OAuth2Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sso_oauth2_errors_total",
				Help: "Total number of OAuth2 errors",
			},
			[]string{"error_code", "endpoint"},
		),
		RateLimitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sso_rate_limit_decisions_total",
				Help: "Rate limiter decisions by preset and outcome",
			},
			[]string{"preset", "outcome"},
		),
		AuditEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sso_audit_events_total",
				Help: "Audit events by type and delivery outcome",
			},
			[]string{"type", "outcome"},
		),
		SweptRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sso_swept_records_total",
				Help: "Expired records removed by the background sweeper",
			},
			[]string{"kind"},
		),
		HealthChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sso_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"endpoint", "status"},
		),
		ComponentHealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sso_component_health_status",
				Help: "Health status of service components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.HTTPResponseSize,
			m.OAuth2TokensIssued,
			m.OAuth2TokensRevoked,
			m.OAuth2AuthRequests,
			m.OAuth2Errors,
			m.RateLimitDecisions,
			m.AuditEvents,
			m.SweptRecords,
			m.HealthChecksTotal,
			m.ComponentHealthStatus,
		)
	}
	return m
}
