// Package metrics registers the process-wide Prometheus collectors. Labels
// are kept low-cardinality: format and response-kind names only, never ids.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrun_mails_sent_total",
			Help: "Messages handed to the transport and accepted, by format.",
		},
		[]string{"format"},
	)

	MailsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailrun_mails_failed_total",
			Help: "Messages the transport reported as undeliverable.",
		},
	)

	MailsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailrun_mails_skipped_total",
			Help: "Recipients logged as attempted without a send (no content or personalization failure).",
		},
	)

	ResponsesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrun_responses_recorded_total",
			Help: "Asynchronous response events matched to a dispatch-log row, by kind.",
		},
		[]string{"kind"},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailrun_tick_duration_seconds",
			Help:    "Wall time of one dispatch tick.",
			Buckets: prometheus.DefBuckets,
		},
	)

	TickBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailrun_tick_batch_size",
			Help:    "Recipients processed per dispatch tick.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)
