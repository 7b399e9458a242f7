package langfuse

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the client's Prometheus collectors.
type Metrics struct {
	EventsEnqueued *prometheus.CounterVec
	EventsSent     prometheus.Counter
	EventsFailed   prometheus.Counter
	FlushDuration  prometheus.Histogram
	PromptCache    *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "langfuse",
			Name:      "events_enqueued_total",
			Help:      "Ingestion events queued for delivery, by event type.",
		}, []string{"type"}),
		EventsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: "langfuse",
			Name:      "events_sent_total",
			Help:      "Ingestion events accepted by the API.",
		}),
		EventsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "langfuse",
			Name:      "events_failed_total",
			Help:      "Ingestion events rejected by the API or lost to transport errors.",
		}),
		FlushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "langfuse",
			Name:      "flush_duration_seconds",
			Help:      "Time spent sending one ingestion batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		PromptCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "langfuse",
			Name:      "prompt_cache_total",
			Help:      "Prompt cache lookups, by result.",
		}, []string{"result"}),
	}
}
