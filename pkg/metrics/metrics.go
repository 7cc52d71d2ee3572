// Package metrics exposes Prometheus instruments for the installment ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// ─── Ledger ─────────────────────────────────────────────────────────────────

// OperationsCreated counts operations opened.
var OperationsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "terme",
	Name:      "operations_created_total",
	Help:      "Installment operations created.",
})

// OperationStatusChanges counts transitions between open and closed.
var OperationStatusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "terme",
	Name:      "operation_status_changes_total",
	Help:      "Operation status transitions, labelled by the new status.",
}, []string{"status"})

// PaymentsRecorded counts journal entries by payment kind.
var PaymentsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "terme",
	Name:      "payments_recorded_total",
	Help:      "Payments appended to the journal.",
}, []string{"kind"})

// PaymentsAmount sums recorded payment amounts by kind.
var PaymentsAmount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "terme",
	Name:      "payments_amount_total",
	Help:      "Sum of recorded payment amounts.",
}, []string{"kind"})

// PaymentsRejected counts refused payments by reason.
var PaymentsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "terme",
	Name:      "payments_rejected_total",
	Help:      "Payments refused by the journal.",
}, []string{"reason"})

// ─── Notifier ───────────────────────────────────────────────────────────────

// OverdueOperations is the number of overdue operations found by the last scan.
var OverdueOperations = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "terme",
	Name:      "overdue_operations",
	Help:      "Overdue operations found by the last scan.",
})

// NoticesPublished counts overdue notices by outcome.
var NoticesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "terme",
	Name:      "overdue_notices_total",
	Help:      "Overdue notices handed to the publisher.",
}, []string{"result"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequests counts API requests by route and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "terme",
	Name:      "http_requests_total",
	Help:      "API requests served.",
}, []string{"method", "route", "code"})

// HTTPLatency observes API request durations.
var HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "terme",
	Name:      "http_request_duration_seconds",
	Help:      "API request latency.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

// ObservePayment records a successful payment.
func ObservePayment(kind string, amount decimal.Decimal) {
	PaymentsRecorded.WithLabelValues(kind).Inc()
	PaymentsAmount.WithLabelValues(kind).Add(amount.InexactFloat64())
}
