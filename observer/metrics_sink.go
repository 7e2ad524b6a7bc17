package observer

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dcshock/reviewpipe/pipeline"
)

// Run outcomes reported on reviewpipe_pipeline_runs_total.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeAborted   = "aborted"
)

// MetricsSink records Prometheus metrics from executor events.
type MetricsSink struct {
	runs      *prometheus.CounterVec
	stages    *prometheus.CounterVec
	durations *prometheus.HistogramVec

	mu       sync.Mutex
	outcomes map[string]string // pipeline id -> outcome, until pipeline.finished
}

// NewMetricsSink registers the pipeline collectors on reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	f := promauto.With(reg)
	return &MetricsSink{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewpipe_pipeline_runs_total",
			Help: "Pipeline runs by name and outcome.",
		}, []string{"pipeline", "outcome"}),
		stages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewpipe_stage_executions_total",
			Help: "Stage executions by pipeline, stage and result.",
		}, []string{"pipeline", "stage", "result"}),
		durations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reviewpipe_stage_duration_seconds",
			Help:    "Stage execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pipeline", "stage"}),
		outcomes: make(map[string]string),
	}
}

// Log implements pipeline.Sink.
func (m *MetricsSink) Log(_ context.Context, ev pipeline.Event) { m.observe(ev) }

// Warn implements pipeline.Sink.
func (m *MetricsSink) Warn(_ context.Context, ev pipeline.Event) { m.observe(ev) }

// Error implements pipeline.Sink.
func (m *MetricsSink) Error(_ context.Context, ev pipeline.Event) { m.observe(ev) }

func (m *MetricsSink) observe(ev pipeline.Event) {
	name := ev.Metadata.PipelineName
	switch ev.Kind {
	case pipeline.EventStageCompleted:
		m.stages.WithLabelValues(name, ev.Stage, "ok").Inc()
		m.durations.WithLabelValues(name, ev.Stage).Observe(ev.Duration.Seconds())
	case pipeline.EventStageFailed:
		m.stages.WithLabelValues(name, ev.Stage, "error").Inc()
		m.durations.WithLabelValues(name, ev.Stage).Observe(ev.Duration.Seconds())
	case pipeline.EventPipelineSkipped:
		m.setOutcome(ev.Metadata.PipelineID, OutcomeSkipped)
	case pipeline.EventPipelineAborted:
		m.setOutcome(ev.Metadata.PipelineID, OutcomeAborted)
	case pipeline.EventPipelineFinished:
		m.runs.WithLabelValues(name, m.takeOutcome(ev.Metadata.PipelineID)).Inc()
	}
}

func (m *MetricsSink) setOutcome(id, outcome string) {
	m.mu.Lock()
	m.outcomes[id] = outcome
	m.mu.Unlock()
}

func (m *MetricsSink) takeOutcome(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, ok := m.outcomes[id]
	if !ok {
		return OutcomeCompleted
	}
	delete(m.outcomes, id)
	return out
}

var _ pipeline.Sink = (*MetricsSink)(nil)
