// Prometheus metrics for the decision and execution pipeline, served at
// /metrics in text exposition format.
//
//   - pipeline_decisions_total{outcome}        – decisions by consensus outcome
//   - pipeline_agent_verdicts_total{agent,approved} – verdicts per agent
//   - pipeline_executions_total{status}        – execution attempts by final status
//   - pipeline_circuit_breaker_opens_total     – breaker trips
//   - pipeline_telemetry_events_total{source,severity} – raw event volume
//   - pipeline_decision_latency_seconds        – end-to-end decision latency

package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_decisions_total",
			Help: "Decisions by consensus outcome",
		},
		[]string{"outcome"},
	)

	mtxVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_agent_verdicts_total",
			Help: "Agent verdicts by agent and approval",
		},
		[]string{"agent", "approved"},
	)

	mtxExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_executions_total",
			Help: "Execution attempts by final order status",
		},
		[]string{"status"},
	)

	mtxBreakerOpens = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_circuit_breaker_opens_total",
			Help: "Circuit breaker trips",
		},
	)

	mtxEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_telemetry_events_total",
			Help: "Telemetry events by source and severity",
		},
		[]string{"source", "severity"},
	)

	mtxDecisionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_decision_latency_seconds",
			Help:    "End-to-end decision workflow latency",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(mtxDecisions, mtxVerdicts, mtxExecutions)
	prometheus.MustRegister(mtxBreakerOpens, mtxEvents, mtxDecisionLatency)
}

func RecordDecision(outcome string) { mtxDecisions.WithLabelValues(outcome).Inc() }

func RecordVerdict(agent string, approved bool) {
	label := "false"
	if approved {
		label = "true"
	}
	mtxVerdicts.WithLabelValues(agent, label).Inc()
}

func RecordExecution(status string) { mtxExecutions.WithLabelValues(status).Inc() }

func RecordBreakerOpen() { mtxBreakerOpens.Inc() }

func RecordEvent(source, severity string) { mtxEvents.WithLabelValues(source, severity).Inc() }

func ObserveDecisionLatency(seconds float64) { mtxDecisionLatency.Observe(seconds) }
