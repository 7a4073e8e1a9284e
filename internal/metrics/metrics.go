// Package metrics holds the process's Prometheus collectors. One package
// var block per component, registered once at startup (mirrors the
// teacher's internal/metrics/metrics.go shape).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CommandQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpkivalidator_command_queue_depth",
			Help: "Current number of items waiting in the command queue.",
		},
	)

	DispatchMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpkivalidator_dispatch_messages_total",
			Help: "Messages dispatched, by protocol message type.",
		},
		[]string{"type"},
	)

	DispatchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpkivalidator_dispatch_errors_total",
			Help: "Protocol errors sent to clients, by error code.",
		},
		[]string{"code"},
	)

	ValidatorOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpkivalidator_validator_outcomes_total",
			Help: "Validation outcomes computed, by trust axis and outcome.",
		},
		[]string{"axis", "outcome"},
	)

	ValidatorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpkivalidator_validator_duration_seconds",
			Help:    "Time spent running a single trust-axis validator.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"axis"},
	)

	UpdateCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpkivalidator_update_cache_entries",
			Help: "Current number of entries in the update cache.",
		},
	)

	PathCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpkivalidator_path_cache_entries",
			Help: "Current number of entries in the AS-path cache.",
		},
	)

	ASPAObjectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpkivalidator_aspa_objects_total",
			Help: "Current number of ASPA objects held in the trust store.",
		},
	)

	ClientMapActiveSlots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpkivalidator_client_map_active_slots",
			Help: "Current number of active client/proxy slots.",
		},
	)

	NotificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpkivalidator_notifications_sent_total",
			Help: "VERIFY_NOTIFICATION sends, by outcome (delivered, failed).",
		},
		[]string{"outcome"},
	)

	TrustFeedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpkivalidator_trustfeed_records_total",
			Help: "Trust-data feed records consumed, by topic and action (apply, flush).",
		},
		[]string{"topic", "action"},
	)

	TrustFeedLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpkivalidator_trustfeed_load_duration_seconds",
			Help:    "Time to load or reload the ASPA seed table from Postgres.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	ParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpkivalidator_parse_errors_total",
			Help: "Malformed wire-protocol payloads, by packet type.",
		},
		[]string{"type"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(registerAll)
}

func registerAll() {
	prometheus.MustRegister(
		CommandQueueDepth,
		DispatchMessagesTotal,
		DispatchErrorsTotal,
		ValidatorOutcomesTotal,
		ValidatorDuration,
		UpdateCacheSize,
		PathCacheSize,
		ASPAObjectsTotal,
		ClientMapActiveSlots,
		NotificationsSentTotal,
		TrustFeedRecordsTotal,
		TrustFeedLoadDuration,
		ParseErrorsTotal,
	)
}
