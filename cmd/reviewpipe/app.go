package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"

	"github.com/dcshock/reviewpipe/internal/approval"
	"github.com/dcshock/reviewpipe/internal/codehost"
	"github.com/dcshock/reviewpipe/internal/settings"
	"github.com/dcshock/reviewpipe/internal/store/postgres"
	"github.com/dcshock/reviewpipe/internal/telemetry"
	"github.com/dcshock/reviewpipe/observer"
	"github.com/dcshock/reviewpipe/pipeline"
)

// app holds everything a subcommand needs. close releases it.
type app struct {
	settings *settings.Settings
	logger   *slog.Logger
	registry *prometheus.Registry
	checker  *approval.Checker

	pool            *pgxpool.Pool
	shutdownTracing func(context.Context) error
}

func newLogger(s *settings.Settings, w io.Writer) (*slog.Logger, error) {
	logger, err := telemetry.NewLogger(w, s.Log.Level, s.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

func loadSettings(path string) (*settings.Settings, *slog.Logger, error) {
	settings.LoadEnv(slog.Default())
	s, err := settings.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(s, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return s, logger, nil
}

// pipelineDefinitions returns the configured override file, or nil for the
// built-in definitions.
func pipelineDefinitions(s *settings.Settings) ([]byte, error) {
	if s.Pipelines.File == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.Pipelines.File)
	if err != nil {
		return nil, fmt.Errorf("read pipeline definitions: %w", err)
	}
	return data, nil
}

func newApp(ctx context.Context, s *settings.Settings, logger *slog.Logger) (*app, error) {
	if s.Database.DSN == "" {
		return nil, errors.New("database.dsn is required (REVIEWPIPE_DATABASE__DSN)")
	}
	if s.CodeHost.BaseURL == "" {
		return nil, errors.New("codehost.base_url is required (REVIEWPIPE_CODEHOST__BASE_URL)")
	}

	shutdownTracing, err := telemetry.InitTracer(s.Tracing.ServiceName, s.Tracing.Exporter, logger)
	if err != nil {
		return nil, err
	}
	a := &app{settings: s, logger: logger, shutdownTracing: shutdownTracing}

	a.pool, err = postgres.Connect(ctx, s.Database.DSN)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	store := postgres.New(a.pool)
	if err := store.Migrate(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []approval.Option{
		approval.WithLogger(logger),
		approval.WithConcurrency(s.Approval.Concurrency),
		approval.WithTracer(otel.Tracer("github.com/dcshock/reviewpipe")),
		approval.WithSink(pipeline.MultiSink(
			observer.NewLogSink(logger),
			observer.NewMetricsSink(a.registry),
		)),
	}
	defs, err := pipelineDefinitions(s)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	if defs != nil {
		opts = append(opts, approval.WithDefinitions(defs))
	}

	code := codehost.New(s.CodeHost.BaseURL, s.CodeHost.Timeout, codehost.WithToken(s.CodeHost.Token))
	a.checker, err = approval.NewChecker(approval.Deps{
		Teams:          store,
		Configs:        store,
		PullRequests:   store,
		CodeManagement: code,
	}, opts...)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			a.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}
}
