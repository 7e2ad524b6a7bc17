// Package pipeline provides a resilient, generic stage pipeline. An Executor
// runs an ordered list of named stages over one shared context value and
// returns the final context. Stages run strictly one after another.
//
// The context type is chosen by the caller. Embed State in a struct and use a
// pointer to it:
//
//	type ReviewRun struct {
//	    pipeline.State
//	    Comments []Comment
//	}
//
//	exec := pipeline.NewExecutor[*ReviewRun](pipeline.WithSink(sink))
//	out := exec.Execute(ctx, &ReviewRun{}, []pipeline.Stage[*ReviewRun]{fetch, post},
//	    pipeline.Named("review"))
//
// # Failure isolation
//
// A stage that returns an error (or panics) is reported to the Sink at error
// level, followed by a warning that the run continues. The next stage receives
// the context exactly as it was before the failing stage. Contexts that
// implement Cloner get this even for in-place writes: every stage works on a
// clone that is only adopted on success. Execute itself never fails. Wrap a
// stage with Critical when later stages cannot run without it.
//
// # Skipping
//
// A stage calls State.SkipRemaining to stop the run. The executor checks the
// flag before every stage, emits a skip event and finishes. The flag is a
// control signal only; domain status belongs in the caller's own fields.
//
// # Lineage
//
// Every Execute call gets a new pipeline id. Runs started from inside a stage
// pass ChildOf(pc.PipelineMetadata()) (or WithParent and WithRoot) so the
// nested run records its parent and shares the root id of the top-level run.
// Subpipeline wraps that pattern as a stage.
//
// # Observability
//
// Lifecycle events (start, stage completed with duration, stage failed,
// continuing, skipped, finished) go to the Sink given with WithSink. Sink calls
// are fire-and-forget and a panicking sink is ignored. Each run and stage also
// gets an OpenTelemetry span from the tracer given with WithTracer, or the
// global tracer otherwise.
package pipeline
