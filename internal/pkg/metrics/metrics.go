package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels: type (job type), status (completed, failed, retried)
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saaskit",
		Name:      "jobs_total",
		Help:      "Background jobs by type and final status",
	}, []string{"type", "status"})

	// Labels: protocol, outcome (answered, failed, forbidden)
	agentQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saaskit",
		Name:      "agent_queries_total",
		Help:      "Agent queries by data source protocol and outcome",
	}, []string{"protocol", "outcome"})

	agentQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "saaskit",
		Name:      "agent_query_duration_seconds",
		Help:      "Wall time of a single agent query",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	// Labels: type (provider event type), result (processed, duplicate, invalid_signature, error)
	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saaskit",
		Name:      "webhook_events_total",
		Help:      "Billing webhook deliveries by event type and result",
	}, []string{"type", "result"})
)

func RecordJob(jobType, status string) {
	jobsTotal.WithLabelValues(jobType, status).Inc()
}

func RecordAgentQuery(protocol, outcome string, took time.Duration) {
	agentQueries.WithLabelValues(protocol, outcome).Inc()
	agentQueryDuration.Observe(took.Seconds())
}

func RecordWebhook(eventType, result string) {
	webhookEvents.WithLabelValues(eventType, result).Inc()
}
