package observer

import (
	"context"
	"slices"
	"sync"

	"github.com/dcshock/reviewpipe/pipeline"
)

// Level is the sink method an event was delivered through.
type Level string

const (
	LevelLog   Level = "log"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Record is one event captured by a Recorder.
type Record struct {
	Level Level
	pipeline.Event
}

// Recorder is a concurrency-safe in-memory sink.
type Recorder struct {
	mu      sync.Mutex
	records []Record
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Log implements pipeline.Sink.
func (r *Recorder) Log(_ context.Context, ev pipeline.Event) { r.add(LevelLog, ev) }

// Warn implements pipeline.Sink.
func (r *Recorder) Warn(_ context.Context, ev pipeline.Event) { r.add(LevelWarn, ev) }

// Error implements pipeline.Sink.
func (r *Recorder) Error(_ context.Context, ev pipeline.Event) { r.add(LevelError, ev) }

func (r *Recorder) add(level Level, ev pipeline.Event) {
	r.mu.Lock()
	r.records = append(r.records, Record{Level: level, Event: ev})
	r.mu.Unlock()
}

// Records returns a copy of everything recorded so far, in delivery order.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.records)
}

// Kind returns the recorded events of the given kind.
func (r *Recorder) Kind(kind pipeline.EventKind) []pipeline.Event {
	var out []pipeline.Event
	for _, rec := range r.Records() {
		if rec.Kind == kind {
			out = append(out, rec.Event)
		}
	}
	return out
}

// Failures returns the stage.failed events, optionally limited to one run.
func (r *Recorder) Failures(pipelineID string) []pipeline.Event {
	var out []pipeline.Event
	for _, ev := range r.Kind(pipeline.EventStageFailed) {
		if pipelineID == "" || ev.Metadata.PipelineID == pipelineID {
			out = append(out, ev)
		}
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.records = nil
	r.mu.Unlock()
}

var _ pipeline.Sink = (*Recorder)(nil)
