// Package observer provides pipeline.Sink implementations.
//
//   - LogSink: writes every executor event as a structured log/slog record
//     carrying the run's pipeline_id, parent_pipeline_id, root_pipeline_id and
//     pipeline_name plus any fields supplied by the context.
//   - MetricsSink: counts runs and stage executions and records stage durations
//     in Prometheus collectors registered on a caller-supplied Registerer.
//   - Recorder: keeps events in memory so a caller (or a test) can inspect stage
//     failures after a run.
//
// Combine them with pipeline.MultiSink:
//
//	sink := pipeline.MultiSink(observer.NewLogSink(logger), metrics, rec)
//	exec := pipeline.NewExecutor[*MyRun](pipeline.WithSink(sink))
package observer
