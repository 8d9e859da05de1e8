package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "hubboard"
)

var (
	fetchDurationBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

	// Fetch Metrics
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Time taken for a connector metric fetch to complete.",
		Buckets:   fetchDurationBuckets,
	}, []string{"connector_kind", "metric_id"})

	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetches_total",
		Help:      "Count of connector metric fetches.",
	}, []string{"connector_kind", "metric_id", "status"})

	FetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_failures_total",
		Help:      "Count of classified fetch failures.",
	}, []string{"connector_kind", "failure_kind"})

	// Probe Metrics
	ConnectorUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connector_up",
		Help:      "Whether the last background probe of the connector succeeded.",
	}, []string{"connector_kind"})

	ProbeLastSuccessTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "probe_last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful probe.",
	}, []string{"connector_kind"})

	// PIN Flow Metrics
	LinkFlowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "link_flows_total",
		Help:      "Count of device-link flows by outcome.",
	}, []string{"vendor", "outcome"})
)
