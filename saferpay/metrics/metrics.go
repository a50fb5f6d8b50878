// Package metrics provides Prometheus metrics for Saferpay calls and payment
// status changes. Labels are kept low-cardinality (no tokens or ids).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeOK         = "ok"
	OutcomeHTTPError  = "http_error"
	OutcomeTransport  = "transport_error"
	OutcomeInvalid    = "invalid_response"
	OutcomeIDMismatch = "request_id_mismatch"
)

var (
	// RequestsTotal counts Saferpay API calls by operation and outcome.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saferpay_requests_total",
		Help: "Total number of Saferpay API calls, by operation and outcome.",
	}, []string{"operation", "outcome"})

	// RequestDuration observes the latency of one logical call including retries.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saferpay_request_duration_seconds",
		Help:    "Latency of Saferpay API calls including retries, by operation.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"operation"})

	// RetriesTotal counts repeated attempts (RetryIndicator > 0).
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saferpay_request_retries_total",
		Help: "Total number of retried Saferpay API attempts, by operation.",
	}, []string{"operation"})

	// PaymentStatusTotal counts payment status transitions made by the provider.
	PaymentStatusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saferpay_payment_status_total",
		Help: "Total number of payment status changes, by new status.",
	}, []string{"status"})
)

// ObserveRequest records one finished call.
func ObserveRequest(operation, outcome string, took time.Duration) {
	RequestsTotal.WithLabelValues(operation, outcome).Inc()
	RequestDuration.WithLabelValues(operation).Observe(took.Seconds())
}

func IncRetry(operation string) {
	RetriesTotal.WithLabelValues(operation).Inc()
}

func IncPaymentStatus(status string) {
	PaymentStatusTotal.WithLabelValues(status).Inc()
}
