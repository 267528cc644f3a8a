// Package metrics exposes prometheus collectors for the conversion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTerminal counts jobs reaching a terminal state, by outcome.
	JobsTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapcode",
		Name:      "jobs_terminal_total",
		Help:      "Jobs reaching a terminal state, labelled by status and failure kind.",
	}, []string{"status", "failure_kind"})

	// JobDuration observes end-to-end processing time for succeeded jobs.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "snapcode",
		Name:      "job_duration_seconds",
		Help:      "End-to-end processing time for succeeded jobs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// JobRetries counts requeues caused by retryable failures.
	JobRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "snapcode",
		Name:      "job_retries_total",
		Help:      "Jobs returned to the queue for a retry.",
	})

	// ProviderCalls counts upstream model invocations by provider and outcome.
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapcode",
		Name:      "provider_calls_total",
		Help:      "Upstream provider invocations, labelled by provider and outcome.",
	}, []string{"provider", "outcome"})

	// ProviderLatency observes upstream call latency per provider.
	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "snapcode",
		Name:      "provider_latency_seconds",
		Help:      "Upstream provider call latency.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"provider"})

	// CreditsMoved counts ledger entries by kind.
	CreditsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapcode",
		Name:      "credit_entries_total",
		Help:      "Credit ledger entries appended, labelled by kind.",
	}, []string{"kind"})

	// QueueDepth tracks the number of queued jobs as last observed.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "snapcode",
		Name:      "queue_depth",
		Help:      "Queued jobs awaiting a worker, as last sampled.",
	})
)
