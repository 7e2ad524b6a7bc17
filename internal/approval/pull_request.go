package approval

import (
	"context"
	"fmt"
	"slices"

	"github.com/dcshock/reviewpipe/pipeline"
)

// Pull request pipeline stage names.
const (
	StageFetchReviewComments = "fetch-review-comments"
	StageFilterAzureComments = "filter-azure-code-comments"
	StageRequireResolved     = "require-resolved"
	StageApprove             = "approve"
)

// PullRequestRun is the context of one pull request check.
type PullRequestRun struct {
	pipeline.State
	Scope       OrganizationAndTeamData
	PullRequest PullRequest
	Comments    []ReviewComment
	Outcome     Outcome
}

// Clone implements pipeline.Cloner.
func (r *PullRequestRun) Clone() *PullRequestRun {
	cp := *r
	cp.State = r.State.CloneState()
	cp.Comments = slices.Clone(r.Comments)
	return &cp
}

// LogFields implements pipeline.LogFielder.
func (r *PullRequestRun) LogFields() map[string]any {
	return map[string]any{
		"organizationId": r.Scope.OrganizationID,
		"teamId":         r.Scope.TeamID,
		"platformType":   string(r.PullRequest.Platform),
		"prNumber":       r.PullRequest.Number,
		"repository":     r.PullRequest.Repository.Name,
	}
}

func (r *PullRequestRun) ref() PullRequestRef {
	return r.PullRequest.Ref(r.Scope)
}

func (r *PullRequestRun) finish(o Outcome) {
	r.Outcome = o
	r.SkipRemaining()
}

func (c *Checker) pullRequestStages() []pipeline.Stage[*PullRequestRun] {
	return []pipeline.Stage[*PullRequestRun]{
		pipeline.NewStage(StageFetchReviewComments, c.fetchReviewComments),
		pipeline.NewStage(StageFilterAzureComments, filterAzureCodeComments),
		pipeline.NewStage(StageRequireResolved, requireResolved),
		pipeline.NewStage(StageApprove, c.approve),
	}
}

// fetchReviewComments loads review threads on GitHub and review comments
// everywhere else.
func (c *Checker) fetchReviewComments(ctx context.Context, r *PullRequestRun) (*PullRequestRun, error) {
	var (
		comments []ReviewComment
		err      error
	)
	if r.PullRequest.Platform == PlatformGitHub {
		comments, err = c.code.ReviewThreads(ctx, r.ref())
	} else {
		comments, err = c.code.ReviewComments(ctx, r.ref())
	}
	if err != nil {
		return r, fmt.Errorf("fetch review comments for %s#%d: %w", r.PullRequest.Repository.Name, r.PullRequest.Number, err)
	}
	r.Comments = comments
	return r, nil
}

// filterAzureCodeComments keeps only code comments on Azure Repos, where
// system and text comments are returned alongside them.
func filterAzureCodeComments(_ context.Context, r *PullRequestRun) (*PullRequestRun, error) {
	if r.PullRequest.Platform != PlatformAzureRepos {
		return r, nil
	}
	r.Comments = slices.DeleteFunc(r.Comments, func(c ReviewComment) bool {
		return c.CommentType != CommentTypeCode
	})
	return r, nil
}

func requireResolved(_ context.Context, r *PullRequestRun) (*PullRequestRun, error) {
	if len(r.Comments) == 0 {
		r.finish(OutcomeNoComments)
		return r, nil
	}
	for _, cm := range r.Comments {
		if !cm.IsResolved {
			r.finish(OutcomeUnresolved)
			return r, nil
		}
	}
	return r, nil
}

func (c *Checker) approve(ctx context.Context, r *PullRequestRun) (*PullRequestRun, error) {
	approved, err := c.code.ApprovePullRequest(ctx, r.ref())
	if err != nil {
		return r, fmt.Errorf("approve %s#%d: %w", r.PullRequest.Repository.Name, r.PullRequest.Number, err)
	}
	if approved {
		r.Outcome = OutcomeApproved
	} else {
		r.Outcome = OutcomeAlreadyApproved
	}
	return r, nil
}
