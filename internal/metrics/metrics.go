// Package metrics defines the Prometheus instrumentation for the agent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicketsProcessed counts intake pipeline runs by outcome.
	TicketsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email2snow_tickets_processed_total",
			Help: "Total number of tickets processed by the intake pipeline",
		},
		[]string{"status"},
	)

	// ServiceNowRequests counts calls to the ServiceNow Table API.
	ServiceNowRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email2snow_servicenow_requests_total",
			Help: "Total number of requests to ServiceNow",
		},
		[]string{"operation", "status"},
	)

	// TrackedTickets gauges how many tickets the tracker is watching.
	TrackedTickets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "email2snow_tracked_tickets",
			Help: "Number of tickets currently tracked for status changes",
		},
	)
)
