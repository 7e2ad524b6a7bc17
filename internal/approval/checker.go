package approval

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/dcshock/reviewpipe/config"
	"github.com/dcshock/reviewpipe/pipeline"
)

// Pipeline names as used in pipeline definition files.
const (
	TeamPipelineName        = "check-team-approvals"
	PullRequestPipelineName = "check-pr-approval"
)

// ErrTeamNotFound is returned by CheckTeamByID for unknown or inactive teams.
var ErrTeamNotFound = errors.New("team not found")

//go:embed pipelines.yaml
var defaultDefinitions []byte

// DefaultDefinitions returns the built-in pipeline definitions file.
func DefaultDefinitions() []byte {
	out := make([]byte, len(defaultDefinitions))
	copy(out, defaultDefinitions)
	return out
}

// Deps are the ports a Checker works against.
type Deps struct {
	Teams          TeamSource
	Configs        ConfigSource
	PullRequests   PullRequestSource
	CodeManagement CodeManagement
}

func (d Deps) validate() error {
	switch {
	case d.Teams == nil:
		return errors.New("approval: Teams is required")
	case d.Configs == nil:
		return errors.New("approval: Configs is required")
	case d.PullRequests == nil:
		return errors.New("approval: PullRequests is required")
	case d.CodeManagement == nil:
		return errors.New("approval: CodeManagement is required")
	}
	return nil
}

// Option configures a Checker.
type Option func(*Checker)

// WithSink sets the sink both pipelines report to.
func WithSink(s pipeline.Sink) Option {
	return func(c *Checker) { c.sink = s }
}

// WithTracer sets the tracer used for pipeline spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Checker) { c.tracer = t }
}

// WithLogger sets the logger for checker-level messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithConcurrency bounds how many pull requests of one team are checked at
// once. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithDefinitions replaces the built-in pipeline definitions with a YAML
// file in the config package format. It must define both pipelines.
func WithDefinitions(data []byte) Option {
	return func(c *Checker) { c.definitions = data }
}

// Checker runs the approval check.
type Checker struct {
	teams        TeamSource
	configs      ConfigSource
	pullRequests PullRequestSource
	code         CodeManagement

	logger      *slog.Logger
	sink        pipeline.Sink
	tracer      trace.Tracer
	concurrency int
	definitions []byte

	teamExec     *pipeline.Executor[*TeamRun]
	prExec       *pipeline.Executor[*PullRequestRun]
	teamPipeline *pipeline.Pipeline[*TeamRun]
	prPipeline   *pipeline.Pipeline[*PullRequestRun]
}

// NewChecker returns a Checker over deps.
func NewChecker(deps Deps, opts ...Option) (*Checker, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	c := newChecker(opts...)
	c.teams = deps.Teams
	c.configs = deps.Configs
	c.pullRequests = deps.PullRequests
	c.code = deps.CodeManagement
	if err := c.build(); err != nil {
		return nil, err
	}
	return c, nil
}

func newChecker(opts ...Option) *Checker {
	c := &Checker{
		logger:      slog.Default(),
		concurrency: 4,
		definitions: defaultDefinitions,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateDefinitions reports whether data defines both approval pipelines
// using only known stages.
func ValidateDefinitions(data []byte) error {
	return newChecker(WithDefinitions(data)).build()
}

func (c *Checker) build() error {
	execOpts := []pipeline.Option{pipeline.WithSink(c.sink), pipeline.WithTracer(c.tracer)}
	c.teamExec = pipeline.NewExecutor[*TeamRun](execOpts...)
	c.prExec = pipeline.NewExecutor[*PullRequestRun](execOpts...)

	multi, err := config.ParseMultiPipelineConfig(c.definitions)
	if err != nil {
		return fmt.Errorf("parse pipeline definitions: %w", err)
	}

	teamReg := config.NewRegistry[*TeamRun]()
	teamReg.RegisterStages(c.teamStages()...)
	c.teamPipeline, err = buildNamed(teamReg, multi, TeamPipelineName, c.teamExec)
	if err != nil {
		return err
	}

	prReg := config.NewRegistry[*PullRequestRun]()
	prReg.RegisterStages(c.pullRequestStages()...)
	c.prPipeline, err = buildNamed(prReg, multi, PullRequestPipelineName, c.prExec)
	return err
}

func buildNamed[C pipeline.Nestable](reg *config.Registry[C], multi *config.MultiPipelineConfig, name string, exec *pipeline.Executor[C]) (*pipeline.Pipeline[C], error) {
	cfg, ok := multi.Pipelines[name]
	if !ok {
		return nil, fmt.Errorf("pipeline definitions: %q not defined", name)
	}
	cfg.Name = name
	p, err := config.BuildPipeline(reg, &cfg, &config.BuildOptions[C]{Executor: exec})
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", name, err)
	}
	return p, nil
}

// TeamReport is the result of checking one team.
type TeamReport struct {
	Team       Team     `json:"team"`
	PipelineID string   `json:"pipelineId"`
	StopReason string   `json:"stopReason,omitempty"`
	Results    []Result `json:"results"`
}

// Summary aggregates a full check.
type Summary struct {
	Teams               int          `json:"teams"`
	PullRequestsChecked int          `json:"pullRequestsChecked"`
	Approved            int          `json:"approved"`
	Failed              int          `json:"failed"`
	Reports             []TeamReport `json:"reports"`
}

func (s *Summary) add(r TeamReport) {
	s.Teams++
	s.Reports = append(s.Reports, r)
	for _, res := range r.Results {
		s.PullRequestsChecked++
		switch res.Outcome {
		case OutcomeApproved:
			s.Approved++
		case OutcomeFailed:
			s.Failed++
		}
	}
}

// Run checks every team with a configured code management integration, one
// team after another. Per-team and per-pull-request failures are logged and
// reflected in the summary; only a failure to list teams or a canceled ctx
// is returned as an error.
func (c *Checker) Run(ctx context.Context) (Summary, error) {
	c.logger.InfoContext(ctx, "Check if PR can be approved cron started")

	var sum Summary
	teams, err := c.teams.FindTeamsWithCodeManagement(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "Error checking if PR can be approved generator cron", slog.Any("error", err))
		return sum, fmt.Errorf("find teams: %w", err)
	}
	if len(teams) == 0 {
		c.logger.InfoContext(ctx, "No teams found")
		return sum, nil
	}
	for _, team := range teams {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.add(c.CheckTeam(ctx, team))
	}
	c.logger.InfoContext(ctx, "Check if PR can be approved cron finished",
		slog.Int("teams", sum.Teams),
		slog.Int("pullRequests", sum.PullRequestsChecked),
		slog.Int("approved", sum.Approved),
	)
	return sum, nil
}

// CheckTeam runs the team pipeline for team.
func (c *Checker) CheckTeam(ctx context.Context, team Team) TeamReport {
	out := c.teamPipeline.Run(ctx, c.teamExec, &TeamRun{Team: team})
	return TeamReport{
		Team:       team,
		PipelineID: out.Metadata.PipelineID,
		StopReason: out.StopReason,
		Results:    out.Results,
	}
}

// CheckTeamByID checks a single team identified by scope.
func (c *Checker) CheckTeamByID(ctx context.Context, scope OrganizationAndTeamData) (TeamReport, error) {
	teams, err := c.teams.FindTeamsWithCodeManagement(ctx)
	if err != nil {
		return TeamReport{}, fmt.Errorf("find teams: %w", err)
	}
	for _, t := range teams {
		if t.ID == scope.TeamID && (scope.OrganizationID == "" || t.OrganizationID == scope.OrganizationID) {
			return c.CheckTeam(ctx, t), nil
		}
	}
	return TeamReport{}, fmt.Errorf("%w: %s", ErrTeamNotFound, scope.TeamID)
}
