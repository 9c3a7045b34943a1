package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesSampled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "copyscan",
		Name:      "frames_sampled_total",
		Help:      "Total number of frames sampled from media",
	}, []string{"side"})

	SignalFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "copyscan",
		Name:      "signal_failures_total",
		Help:      "Signal extractions that degraded to an empty value",
	}, []string{"signal"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "copyscan",
		Name:      "inference_duration_seconds",
		Help:      "Duration of signal extraction stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	ScansCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "copyscan",
		Name:      "scans_total",
		Help:      "Completed scans by outcome",
	}, []string{"outcome"})

	SimilarityScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "copyscan",
		Name:      "similarity_score",
		Help:      "Distribution of match similarity scores",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	ActionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "copyscan",
		Name:      "actions_total",
		Help:      "Recorded enforcement actions",
	}, []string{"type", "status"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "copyscan",
		Name:      "queue_depth",
		Help:      "Number of pending scheduler jobs",
	})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "copyscan",
		Name:      "jobs_processed_total",
		Help:      "Scheduler jobs by kind and outcome",
	}, []string{"kind", "outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "copyscan",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "copyscan",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
