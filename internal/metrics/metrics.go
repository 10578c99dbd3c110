// Package metrics holds the Prometheus counters for sessions, bookings and the store.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry all rentals metrics are registered with.
var Registry = prometheus.NewRegistry()

var (
	SessionsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rentals",
		Subsystem: "sessions",
		Name:      "issued_total",
		Help:      "Session tokens issued",
	})

	SessionVerifyFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rentals",
		Subsystem: "session",
		Name:      "verify_failures_total",
		Help:      "Session token verifications that failed, by reason",
	}, []string{"reason"})

	BookingTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rentals",
		Subsystem: "booking",
		Name:      "transitions_total",
		Help:      "Booking requests moved into a status",
	}, []string{"status"})

	BookingConfirmConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rentals",
		Subsystem: "booking",
		Name:      "confirm_conflicts_total",
		Help:      "Confirm attempts rejected because the booking was no longer pending",
	})

	StoreRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rentals",
		Subsystem: "store",
		Name:      "retries_total",
		Help:      "Store operations retried after a transient failure",
	})
)

func init() {
	Registry.MustRegister(
		SessionsIssued,
		SessionVerifyFailures,
		BookingTransitions,
		BookingConfirmConflicts,
		StoreRetries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
