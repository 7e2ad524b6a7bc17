package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dcshock/reviewpipe/pipeline"

// ErrNilContext is the stage failure recorded when a stage returns a nil
// context without an error.
var ErrNilContext = errors.New("stage returned nil context")

// PanicError is the stage failure recorded when a stage panics.
type PanicError struct {
	Stage string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("stage %q panicked: %v", e.Stage, e.Value)
}

// Option configures an Executor.
type Option func(*executorOptions)

type executorOptions struct {
	sink   Sink
	tracer trace.Tracer
	newID  func() string
	now    func() time.Time
}

// WithSink sets the observability sink. The default discards events.
func WithSink(s Sink) Option {
	return func(o *executorOptions) {
		if s != nil {
			o.sink = s
		}
	}
}

// WithTracer sets the OpenTelemetry tracer used for pipeline and stage spans.
// The default is the global tracer, a no-op until a provider is installed.
func WithTracer(t trace.Tracer) Option {
	return func(o *executorOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithIDGenerator replaces the pipeline id source (uuid.NewString by default).
func WithIDGenerator(fn func() string) Option {
	return func(o *executorOptions) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithClock replaces time.Now for stage timing.
func WithClock(now func() time.Time) Option {
	return func(o *executorOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// RunOption configures a single Execute call.
type RunOption func(*runOptions)

type runOptions struct {
	name     string
	parentID string
	rootID   string
}

// Named sets the human-readable pipeline name (DefaultPipelineName if unset).
func Named(name string) RunOption {
	return func(o *runOptions) { o.name = name }
}

// WithParent records the id of the pipeline that started this one.
func WithParent(id string) RunOption {
	return func(o *runOptions) { o.parentID = id }
}

// WithRoot sets the root pipeline id inherited from the top of the chain.
func WithRoot(id string) RunOption {
	return func(o *runOptions) { o.rootID = id }
}

// ChildOf links the run to the pipeline described by md: its id becomes the
// parent and its root is inherited.
func ChildOf(md Metadata) RunOption {
	return func(o *runOptions) {
		o.parentID = md.PipelineID
		o.rootID = md.RootPipelineID
		if o.rootID == "" {
			o.rootID = md.PipelineID
		}
	}
}

// Executor runs ordered stages against one context per call. It holds no
// per-run state, so a single Executor may serve concurrent Execute calls.
type Executor[C Context] struct {
	opts executorOptions
}

// NewExecutor returns an executor for contexts of type C.
func NewExecutor[C Context](opts ...Option) *Executor[C] {
	o := executorOptions{
		sink:   NopSink{},
		tracer: otel.Tracer(tracerName),
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Executor[C]{opts: o}
}

type outcome string

const (
	outcomeExhausted outcome = "exhausted"
	outcomeSkipped   outcome = "skipped"
	outcomeAborted   outcome = "aborted"
)

// Execute runs stages in order against pc and returns the final context.
//
// A fresh pipeline id is stamped into pc's metadata before the first stage.
// Before every stage the context is checked for SKIP; once set, no further
// stage runs. A failing stage is logged and skipped over: the next stage
// receives the context as it was before the failure. Only stages wrapped with
// Critical stop the run on failure. Execute never returns an error; stage
// failures are reported to the sink only. pc must not be nil.
func (e *Executor[C]) Execute(ctx context.Context, pc C, stages []Stage[C], opts ...RunOption) C {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.name == "" {
		ro.name = DefaultPipelineName
	}

	pipelineID := e.opts.newID()
	md := pc.PipelineMetadata()
	md.PipelineID = pipelineID
	md.ParentPipelineID = ro.parentID
	md.RootPipelineID = ro.rootID
	if md.RootPipelineID == "" {
		md.RootPipelineID = pipelineID
	}
	md.PipelineName = ro.name
	pc.SetPipelineMetadata(md)

	ctx, span := e.opts.tracer.Start(ctx, "pipeline.execute", trace.WithAttributes(
		attribute.String("pipeline.id", md.PipelineID),
		attribute.String("pipeline.name", md.PipelineName),
		attribute.String("pipeline.parent_id", md.ParentPipelineID),
		attribute.String("pipeline.root_id", md.RootPipelineID),
		attribute.Int("stages.count", len(stages)),
	))
	defer span.End()

	e.log(ctx, pc, Event{
		Kind:    EventPipelineStarted,
		Message: fmt.Sprintf("Starting pipeline: %s (ID: %s)", ro.name, pipelineID),
	})

	result := outcomeExhausted
	for _, stage := range stages {
		if pc.ShouldSkip() {
			e.log(ctx, pc, Event{
				Kind:    EventPipelineSkipped,
				Stage:   stage.Name(),
				Message: fmt.Sprintf("Pipeline '%s' skipped due to SKIP status %s", ro.name, pipelineID),
			})
			result = outcomeSkipped
			break
		}

		next, elapsed, err := e.runStage(ctx, stage, pc)
		if err != nil {
			e.error(ctx, pc, Event{
				Kind:     EventStageFailed,
				Stage:    stage.Name(),
				Duration: elapsed,
				Err:      err,
				Message:  fmt.Sprintf("Stage '%s' failed: %v", stage.Name(), err),
			})
			if isCritical(stage) {
				e.error(ctx, pc, Event{
					Kind:    EventPipelineAborted,
					Stage:   stage.Name(),
					Err:     err,
					Message: fmt.Sprintf("Pipeline '%s:%s' aborted by critical stage '%s'", ro.name, pipelineID, stage.Name()),
				})
				result = outcomeAborted
				break
			}
			e.warn(ctx, pc, Event{
				Kind:    EventPipelineContinuing,
				Stage:   stage.Name(),
				Message: fmt.Sprintf("Pipeline '%s:%s' continuing despite error in stage '%s'", ro.name, pipelineID, stage.Name()),
			})
			continue
		}

		// A stage may hand back a brand-new value; identity stays fixed for the run.
		restamp(next, md)
		pc = next
		e.log(ctx, pc, Event{
			Kind:     EventStageCompleted,
			Stage:    stage.Name(),
			Duration: elapsed,
			Message:  fmt.Sprintf("Stage '%s' completed in %dms: %s", stage.Name(), elapsed.Milliseconds(), pipelineID),
		})
	}

	span.SetAttributes(attribute.String("pipeline.outcome", string(result)))
	if result == outcomeAborted {
		span.SetStatus(codes.Error, "pipeline aborted")
	}
	e.log(ctx, pc, Event{
		Kind:    EventPipelineFinished,
		Message: fmt.Sprintf("Finished pipeline: %s (ID: %s)", ro.name, pipelineID),
	})
	return pc
}

func (e *Executor[C]) runStage(ctx context.Context, stage Stage[C], pc C) (C, time.Duration, error) {
	ctx, span := e.opts.tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.String("stage.name", stage.Name()),
	))
	defer span.End()

	in := pc
	if c, ok := any(pc).(Cloner[C]); ok {
		in = c.Clone()
	}

	start := e.opts.now()
	next, err := invoke(ctx, stage, in)
	elapsed := e.opts.now().Sub(start)
	if err == nil && isNil(next) {
		err = ErrNilContext
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage failed")
		var zero C
		return zero, elapsed, err
	}
	return next, elapsed, nil
}

func invoke[C Context](ctx context.Context, stage Stage[C], in C) (out C, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Stage: stage.Name(), Value: r, Stack: debug.Stack()}
		}
	}()
	return stage.Execute(ctx, in)
}

func restamp[C Context](pc C, md Metadata) {
	cur := pc.PipelineMetadata()
	if cur.PipelineID == md.PipelineID && cur.RootPipelineID == md.RootPipelineID &&
		cur.ParentPipelineID == md.ParentPipelineID && cur.PipelineName == md.PipelineName {
		return
	}
	cur.PipelineID = md.PipelineID
	cur.ParentPipelineID = md.ParentPipelineID
	cur.RootPipelineID = md.RootPipelineID
	cur.PipelineName = md.PipelineName
	pc.SetPipelineMetadata(cur)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func (e *Executor[C]) log(ctx context.Context, pc C, ev Event) {
	deliver(ctx, e.opts.sink.Log, decorate(pc, ev))
}

func (e *Executor[C]) warn(ctx context.Context, pc C, ev Event) {
	deliver(ctx, e.opts.sink.Warn, decorate(pc, ev))
}

func (e *Executor[C]) error(ctx context.Context, pc C, ev Event) {
	deliver(ctx, e.opts.sink.Error, decorate(pc, ev))
}

func decorate[C Context](pc C, ev Event) Event {
	ev.Source = EventSource
	ev.Metadata = pc.PipelineMetadata()
	ev.Fields = logFields(pc)
	return ev
}

func logFields(pc any) (fields map[string]any) {
	f, ok := pc.(LogFielder)
	if !ok {
		return nil
	}
	defer func() {
		if recover() != nil {
			fields = nil
		}
	}()
	return f.LogFields()
}
