// Package metrics holds the prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riverbank_requests_total",
		Help: "Total number of HTTP requests served.",
	}, []string{"method", "code"})

	SnapshotOpenDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "riverbank_snapshot_open_seconds",
		Help:    "Duration of delta log replays per table open.",
		Buckets: prometheus.DefBuckets,
	})

	SnapshotOpenFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "riverbank_snapshot_open_failures_total",
		Help: "Total number of failed table opens.",
	})

	FilesSigned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "riverbank_files_signed_total",
		Help: "Total number of data files vended as presigned URLs.",
	})

	SignFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "riverbank_sign_failures_total",
		Help: "Total number of failed presign calls.",
	})

	TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "riverbank_tokens_issued_total",
		Help: "Total number of bearer tokens generated.",
	})
)
