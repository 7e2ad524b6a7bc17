package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/dcshock/reviewpipe/pipeline"
)

// Team pipeline stage names.
const (
	StageLoadConfig        = "load-config"
	StageListOpenPRs       = "list-open-prs"
	StageSelectEligiblePRs = "select-eligible-prs"
	StageCheckPullRequests = "check-pull-requests"
)

// TeamRun is the context of one team check.
type TeamRun struct {
	pipeline.State
	Team             Team
	Config           *CodeReviewConfig
	OpenPullRequests []PullRequest
	Eligible         []PullRequest
	Results          []Result
	// StopReason explains why the run ended before checking pull requests.
	StopReason string
}

// Clone implements pipeline.Cloner.
func (r *TeamRun) Clone() *TeamRun {
	cp := *r
	cp.State = r.State.CloneState()
	cp.OpenPullRequests = slices.Clone(r.OpenPullRequests)
	cp.Eligible = slices.Clone(r.Eligible)
	cp.Results = slices.Clone(r.Results)
	return &cp
}

// LogFields implements pipeline.LogFielder.
func (r *TeamRun) LogFields() map[string]any {
	return map[string]any{
		"organizationId": r.Team.OrganizationID,
		"teamId":         r.Team.ID,
	}
}

func (r *TeamRun) stop(reason string) {
	r.StopReason = reason
	r.SkipRemaining()
}

func (c *Checker) teamStages() []pipeline.Stage[*TeamRun] {
	return []pipeline.Stage[*TeamRun]{
		pipeline.NewStage(StageLoadConfig, c.loadConfig),
		pipeline.NewStage(StageListOpenPRs, c.listOpenPullRequests),
		pipeline.NewStage(StageSelectEligiblePRs, selectEligible),
		pipeline.NewStage(StageCheckPullRequests, c.checkPullRequests),
	}
}

func (c *Checker) loadConfig(ctx context.Context, r *TeamRun) (*TeamRun, error) {
	scope := r.Team.Scope()
	cfg, err := c.configs.CodeReviewConfig(ctx, scope)
	if errors.Is(err, ErrConfigNotFound) || (err == nil && cfg == nil) {
		c.logger.ErrorContext(ctx, "Code review parameter configs not found",
			slog.String("organizationId", scope.OrganizationID),
			slog.String("teamId", scope.TeamID),
		)
		r.stop("code review config not found")
		return r, nil
	}
	if err != nil {
		return r, fmt.Errorf("load code review config: %w", err)
	}
	if len(cfg.Repositories) == 0 {
		c.logger.ErrorContext(ctx, "No repositories were found on the code review parameter config value",
			slog.String("organizationId", scope.OrganizationID),
			slog.String("teamId", scope.TeamID),
		)
		r.stop("no repositories configured")
		return r, nil
	}
	r.Config = cfg
	return r, nil
}

func (c *Checker) listOpenPullRequests(ctx context.Context, r *TeamRun) (*TeamRun, error) {
	prs, err := c.pullRequests.OpenPullRequests(ctx, r.Team.OrganizationID)
	if err != nil {
		return r, fmt.Errorf("list open pull requests: %w", err)
	}
	if len(prs) == 0 {
		r.stop("no open pull requests")
		return r, nil
	}
	r.OpenPullRequests = prs
	return r, nil
}

func selectEligible(_ context.Context, r *TeamRun) (*TeamRun, error) {
	if r.Config == nil {
		return r, errors.New("code review config not loaded")
	}
	r.Eligible = r.Eligible[:0]
	for _, pr := range r.OpenPullRequests {
		if r.Config.ApprovalEnabled(pr.Repository.ID) {
			r.Eligible = append(r.Eligible, pr)
		}
	}
	if len(r.Eligible) == 0 {
		r.stop("no pull requests with approval enabled")
	}
	return r, nil
}

// checkPullRequests runs the pull request pipeline for every eligible pull
// request as a nested run of the team run, at most c.concurrency at a time.
func (c *Checker) checkPullRequests(ctx context.Context, r *TeamRun) (*TeamRun, error) {
	parent := r.PipelineMetadata()
	scope := r.Team.Scope()
	results := make([]Result, len(r.Eligible))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, pr := range r.Eligible {
		i, pr := i, pr
		g.Go(func() error {
			results[i] = c.checkPullRequest(ctx, parent, scope, pr)
			return nil
		})
	}
	_ = g.Wait()

	r.Results = results
	return r, nil
}

func (c *Checker) checkPullRequest(ctx context.Context, parent pipeline.Metadata, scope OrganizationAndTeamData, pr PullRequest) Result {
	run := &PullRequestRun{Scope: scope, PullRequest: pr}
	out := c.prPipeline.Run(ctx, c.prExec, run, pipeline.ChildOf(parent))
	outcome := out.Outcome
	if outcome == OutcomePending {
		outcome = OutcomeFailed
	}
	return Result{
		Repository: pr.Repository,
		Number:     pr.Number,
		Platform:   pr.Platform,
		Outcome:    outcome,
		PipelineID: out.Metadata.PipelineID,
	}
}
