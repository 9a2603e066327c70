// Package metrics exposes pipeline and generator counters to Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"docpipe/internal/services"
	"docpipe/internal/state"
	"docpipe/internal/workflow"
)

var (
	// RunsStarted counts runs entering the driver, by mode.
	RunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpipe_runs_started_total",
			Help: "Total number of pipeline runs started",
		},
		[]string{"mode"},
	)

	// RunsFinished counts terminal run outcomes.
	RunsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpipe_runs_finished_total",
			Help: "Total number of pipeline runs finished",
		},
		[]string{"mode", "outcome"},
	)

	// RunsActive tracks runs currently in progress.
	RunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docpipe_runs_active",
			Help: "Number of pipeline runs in progress",
		},
	)

	// StageAttempts counts stage attempts by outcome.
	StageAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpipe_stage_attempts_total",
			Help: "Total number of stage attempts",
		},
		[]string{"stage", "outcome"},
	)

	// StageLatency tracks stage attempt duration.
	StageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docpipe_stage_attempt_seconds",
			Help:    "Stage attempt latency in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// GeneratorRequests counts generator exchanges by model and outcome.
	GeneratorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpipe_generator_requests_total",
			Help: "Total number of generator exchanges",
		},
		[]string{"model", "outcome"},
	)

	// GeneratorLatency tracks generator exchange latency.
	GeneratorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docpipe_generator_latency_seconds",
			Help:    "Generator exchange latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
)

// Recorder feeds generator client observations into the collectors.
type Recorder struct{}

func (Recorder) ObserveRequest(model, outcome string, elapsed time.Duration) {
	GeneratorRequests.WithLabelValues(model, outcome).Inc()
	GeneratorLatency.WithLabelValues(model).Observe(elapsed.Seconds())
}

// Observer feeds workflow lifecycle events into the collectors.
type Observer struct{}

func (Observer) RunStarted(_ context.Context, run workflow.RunInfo, _ state.Summary) {
	RunsStarted.WithLabelValues(string(run.Mode)).Inc()
	RunsActive.Inc()
}

func (Observer) StageAttempted(_ context.Context, _ workflow.RunInfo, attempt workflow.StageAttempt) {
	outcome := "success"
	if attempt.Err != nil {
		outcome = services.Kind(attempt.Err)
	}
	StageAttempts.WithLabelValues(string(attempt.Stage), outcome).Inc()
	StageLatency.WithLabelValues(string(attempt.Stage)).Observe(attempt.Elapsed.Seconds())
}

func (Observer) RunFinished(_ context.Context, run workflow.RunInfo, result workflow.Result) {
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	RunsFinished.WithLabelValues(string(run.Mode), outcome).Inc()
	RunsActive.Dec()
}
