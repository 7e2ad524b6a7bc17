package approval

import (
	"context"
	"errors"
)

// ErrConfigNotFound is returned by ConfigSource when a team has no code
// review configuration.
var ErrConfigNotFound = errors.New("code review config not found")

// TeamSource lists the teams to check.
type TeamSource interface {
	// FindTeamsWithCodeManagement returns active teams whose code management
	// integration is configured.
	FindTeamsWithCodeManagement(ctx context.Context) ([]Team, error)
}

// ConfigSource loads a team's code review configuration.
type ConfigSource interface {
	CodeReviewConfig(ctx context.Context, scope OrganizationAndTeamData) (*CodeReviewConfig, error)
}

// PullRequestSource lists open pull requests.
type PullRequestSource interface {
	OpenPullRequests(ctx context.Context, organizationID string) ([]PullRequest, error)
}

// PullRequestRef addresses one pull request on a code host.
type PullRequestRef struct {
	Scope      OrganizationAndTeamData `json:"organizationAndTeamData"`
	Platform   Platform                `json:"platform"`
	Repository Repository              `json:"repository"`
	Number     int                     `json:"prNumber"`
}

// Ref returns the code host reference of pr within scope.
func (pr PullRequest) Ref(scope OrganizationAndTeamData) PullRequestRef {
	return PullRequestRef{Scope: scope, Platform: pr.Platform, Repository: pr.Repository, Number: pr.Number}
}

// CodeManagement is the code host integration.
type CodeManagement interface {
	// ReviewThreads returns review threads (GitHub).
	ReviewThreads(ctx context.Context, ref PullRequestRef) ([]ReviewComment, error)
	// ReviewComments returns review comments (all other platforms).
	ReviewComments(ctx context.Context, ref PullRequestRef) ([]ReviewComment, error)
	// ApprovePullRequest approves the pull request unless the integration
	// user already has. It reports whether a new approval was made.
	ApprovePullRequest(ctx context.Context, ref PullRequestRef) (bool, error)
}
