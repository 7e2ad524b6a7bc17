package pipeline

import (
	"context"
	"time"
)

// EventKind classifies an executor lifecycle event.
type EventKind string

const (
	EventPipelineStarted    EventKind = "pipeline.started"
	EventStageCompleted     EventKind = "stage.completed"
	EventStageFailed        EventKind = "stage.failed"
	EventPipelineContinuing EventKind = "pipeline.continuing"
	EventPipelineSkipped    EventKind = "pipeline.skipped"
	EventPipelineAborted    EventKind = "pipeline.aborted"
	EventPipelineFinished   EventKind = "pipeline.finished"
)

// EventSource is the source tag on every event emitted by Executor.
const EventSource = "PipelineExecutor"

// Event is a structured trace record for one point in a pipeline run.
type Event struct {
	Kind     EventKind
	Message  string
	Source   string
	Stage    string        // empty for pipeline-level events
	Duration time.Duration // set on stage.completed and stage.failed
	Err      error         // set on stage.failed and pipeline.aborted
	Metadata Metadata
	Fields   map[string]any // from LogFielder contexts
}

// Sink receives executor events. Calls are fire-and-forget: the executor
// ignores anything a sink does, including panics.
type Sink interface {
	Log(ctx context.Context, ev Event)
	Warn(ctx context.Context, ev Event)
	Error(ctx context.Context, ev Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Log(context.Context, Event)   {}
func (NopSink) Warn(context.Context, Event)  {}
func (NopSink) Error(context.Context, Event) {}

// MultiSink fans each event out to every sink in order. A panicking sink does
// not prevent the others from receiving the event.
func MultiSink(sinks ...Sink) Sink {
	list := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			list = append(list, s)
		}
	}
	return multiSink(list)
}

type multiSink []Sink

func (m multiSink) Log(ctx context.Context, ev Event) {
	for _, s := range m {
		deliver(ctx, s.Log, ev)
	}
}

func (m multiSink) Warn(ctx context.Context, ev Event) {
	for _, s := range m {
		deliver(ctx, s.Warn, ev)
	}
}

func (m multiSink) Error(ctx context.Context, ev Event) {
	for _, s := range m {
		deliver(ctx, s.Error, ev)
	}
}

// deliver calls fn and swallows any panic from it.
func deliver(ctx context.Context, fn func(context.Context, Event), ev Event) {
	defer func() { _ = recover() }()
	fn(ctx, ev)
}
