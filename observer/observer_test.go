package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dcshock/reviewpipe/pipeline"
)

type run struct {
	pipeline.State
	N    int
	Team string
}

func (r *run) LogFields() map[string]any { return map[string]any{"teamId": r.Team} }

func inc(name string) pipeline.Stage[*run] {
	return pipeline.NewStage(name, func(ctx context.Context, r *run) (*run, error) {
		r.N++
		return r, nil
	})
}

var failing = pipeline.NewStage("failing", func(ctx context.Context, r *run) (*run, error) {
	return r, errors.New("upstream unavailable")
})

var skip = pipeline.NewStage("skip", func(ctx context.Context, r *run) (*run, error) {
	r.SkipRemaining()
	return r, nil
})

func TestLogSink(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	exec := pipeline.NewExecutor[*run](pipeline.WithSink(NewLogSink(logger)))

	out := exec.Execute(ctx, &run{Team: "t-1"}, []pipeline.Stage[*run]{inc("a"), failing}, pipeline.Named("logged"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 records, got %d:\n%s", len(lines), buf.String())
	}
	var failed map[string]any
	for _, line := range lines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad json %q: %v", line, err)
		}
		if rec["pipeline_id"] != out.Metadata.PipelineID {
			t.Errorf("pipeline_id: got %v", rec["pipeline_id"])
		}
		if rec["source"] != pipeline.EventSource {
			t.Errorf("source: got %v", rec["source"])
		}
		fields, _ := rec["fields"].(map[string]any)
		if fields["teamId"] != "t-1" {
			t.Errorf("fields: got %v", rec["fields"])
		}
		if rec["event"] == string(pipeline.EventStageFailed) {
			failed = rec
		}
	}
	if failed == nil {
		t.Fatal("no stage.failed record")
	}
	if failed["level"] != "ERROR" || failed["stage"] != "failing" || failed["error"] != "upstream unavailable" {
		t.Errorf("failed record: %v", failed)
	}
	if !strings.Contains(lines[3], `"level":"WARN"`) {
		t.Errorf("expected continuing warning, got %s", lines[3])
	}
}

func TestLogSink_RespectsLevel(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}))
	exec := pipeline.NewExecutor[*run](pipeline.WithSink(NewLogSink(logger)))
	exec.Execute(ctx, &run{}, []pipeline.Stage[*run]{inc("a")})
	if buf.Len() != 0 {
		t.Errorf("info events should be filtered, got %s", buf.String())
	}
}

func TestMetricsSink(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetricsSink(reg)
	exec := pipeline.NewExecutor[*run](pipeline.WithSink(m))

	exec.Execute(ctx, &run{}, []pipeline.Stage[*run]{inc("a"), failing, inc("b")}, pipeline.Named("p"))
	exec.Execute(ctx, &run{}, []pipeline.Stage[*run]{inc("a"), skip, inc("b")}, pipeline.Named("p"))
	exec.Execute(ctx, &run{}, []pipeline.Stage[*run]{pipeline.Critical(failing)}, pipeline.Named("p"))

	cases := []struct {
		labels []string
		want   float64
	}{
		{[]string{"p", OutcomeCompleted}, 1},
		{[]string{"p", OutcomeSkipped}, 1},
		{[]string{"p", OutcomeAborted}, 1},
	}
	for _, tc := range cases {
		if got := testutil.ToFloat64(m.runs.WithLabelValues(tc.labels...)); got != tc.want {
			t.Errorf("runs%v: got %v, want %v", tc.labels, got, tc.want)
		}
	}
	if got := testutil.ToFloat64(m.stages.WithLabelValues("p", "a", "ok")); got != 2 {
		t.Errorf("stage a ok: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.stages.WithLabelValues("p", "failing", "error")); got != 2 {
		t.Errorf("stage failing error: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.stages.WithLabelValues("p", "b", "ok")); got != 1 {
		t.Errorf("stage b ok: got %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.durations); n != 4 {
		t.Errorf("duration series: got %d, want 4", n)
	}
	if len(m.outcomes) != 0 {
		t.Errorf("outcomes should be drained, got %v", m.outcomes)
	}
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()
	exec := pipeline.NewExecutor[*run](pipeline.WithSink(rec))

	first := exec.Execute(ctx, &run{}, []pipeline.Stage[*run]{failing, inc("a")})
	exec.Execute(ctx, &run{}, []pipeline.Stage[*run]{failing})

	if n := len(rec.Failures("")); n != 2 {
		t.Errorf("all failures: got %d, want 2", n)
	}
	f := rec.Failures(first.Metadata.PipelineID)
	if len(f) != 1 || f[0].Stage != "failing" {
		t.Errorf("failures for first run: %+v", f)
	}
	var levels []Level
	for _, r := range rec.Records() {
		if r.Metadata.PipelineID == first.Metadata.PipelineID {
			levels = append(levels, r.Level)
		}
	}
	want := []Level{LevelLog, LevelError, LevelWarn, LevelLog, LevelLog}
	if len(levels) != len(want) {
		t.Fatalf("levels: got %v, want %v", levels, want)
	}
	for i := range want {
		if levels[i] != want[i] {
			t.Errorf("level %d: got %s, want %s", i, levels[i], want[i])
		}
	}
	rec.Reset()
	if len(rec.Records()) != 0 {
		t.Error("Reset must clear records")
	}
}

func TestMultiSink_AllReceive(t *testing.T) {
	ctx := context.Background()
	a, b := NewRecorder(), NewRecorder()
	exec := pipeline.NewExecutor[*run](pipeline.WithSink(pipeline.MultiSink(a, nil, b)))
	exec.Execute(ctx, &run{}, []pipeline.Stage[*run]{inc("a")})
	if len(a.Records()) != 3 || len(b.Records()) != 3 {
		t.Errorf("got %d and %d records, want 3 each", len(a.Records()), len(b.Records()))
	}
}
