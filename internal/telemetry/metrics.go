// Package telemetry holds Prometheus metrics for workflow stages and collaborator calls.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the orchestrator's Prometheus collectors.
type Metrics struct {
	StagesTotal   *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	CollaboratorCallsTotal   *prometheus.CounterVec
	CollaboratorCallDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the metrics once per process.
//
// Metrics:
//   - cognicare_workflow_stage_total{stage,outcome}
//   - cognicare_workflow_stage_duration_seconds{stage}
//   - cognicare_collaborator_calls_total{collaborator,outcome}
//   - cognicare_collaborator_call_duration_seconds{collaborator}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			StagesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cognicare_workflow_stage_total",
					Help: "Total workflow stage invocations by outcome",
				},
				[]string{"stage", "outcome"}, // outcome is "ok" or an error kind
			),
			StageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "cognicare_workflow_stage_duration_seconds",
					Help:    "Duration of workflow stages in seconds",
					Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
				},
				[]string{"stage"},
			),
			CollaboratorCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cognicare_collaborator_calls_total",
					Help: "Total collaborator calls by outcome",
				},
				[]string{"collaborator", "outcome"},
			),
			CollaboratorCallDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "cognicare_collaborator_call_duration_seconds",
					Help:    "Duration of collaborator calls in seconds",
					Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
				},
				[]string{"collaborator"},
			),
		}
	})
	return globalMetrics
}
