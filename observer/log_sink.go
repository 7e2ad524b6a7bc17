package observer

import (
	"context"
	"log/slog"
	"sort"

	"github.com/dcshock/reviewpipe/pipeline"
)

// LogSink writes executor events to a slog.Logger. Log maps to Info, Warn to
// Warn and Error to Error.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink writing to logger (slog.Default() when nil).
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Log implements pipeline.Sink.
func (s *LogSink) Log(ctx context.Context, ev pipeline.Event) {
	s.write(ctx, slog.LevelInfo, ev)
}

// Warn implements pipeline.Sink.
func (s *LogSink) Warn(ctx context.Context, ev pipeline.Event) {
	s.write(ctx, slog.LevelWarn, ev)
}

// Error implements pipeline.Sink.
func (s *LogSink) Error(ctx context.Context, ev pipeline.Event) {
	s.write(ctx, slog.LevelError, ev)
}

func (s *LogSink) write(ctx context.Context, level slog.Level, ev pipeline.Event) {
	if !s.logger.Enabled(ctx, level) {
		return
	}
	s.logger.LogAttrs(ctx, level, ev.Message, eventAttrs(ev)...)
}

func eventAttrs(ev pipeline.Event) []slog.Attr {
	md := ev.Metadata
	attrs := []slog.Attr{
		slog.String("source", ev.Source),
		slog.String("event", string(ev.Kind)),
		slog.String("pipeline_id", md.PipelineID),
		slog.String("root_pipeline_id", md.RootPipelineID),
		slog.String("pipeline_name", md.PipelineName),
	}
	if md.ParentPipelineID != "" {
		attrs = append(attrs, slog.String("parent_pipeline_id", md.ParentPipelineID))
	}
	if ev.Stage != "" {
		attrs = append(attrs, slog.String("stage", ev.Stage))
	}
	if ev.Duration > 0 {
		attrs = append(attrs, slog.Int64("duration_ms", ev.Duration.Milliseconds()))
	}
	if ev.Err != nil {
		attrs = append(attrs, slog.String("error", ev.Err.Error()))
	}
	if len(ev.Fields) > 0 {
		keys := make([]string, 0, len(ev.Fields))
		for k := range ev.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		group := make([]any, 0, len(keys))
		for _, k := range keys {
			group = append(group, slog.Any(k, ev.Fields[k]))
		}
		attrs = append(attrs, slog.Group("fields", group...))
	}
	return attrs
}

var _ pipeline.Sink = (*LogSink)(nil)
