// Package approval checks open pull requests of every team with a code
// management integration and approves those whose review comments are all
// resolved. Each team is one run of the team pipeline; each eligible pull
// request is a nested run of the pull request pipeline.
package approval

import (
	"time"
)

// Platform identifies a code hosting provider.
type Platform string

const (
	PlatformGitHub     Platform = "github"
	PlatformGitLab     Platform = "gitlab"
	PlatformBitbucket  Platform = "bitbucket"
	PlatformAzureRepos Platform = "azure_repos"
)

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformGitHub, PlatformGitLab, PlatformBitbucket, PlatformAzureRepos:
		return true
	}
	return false
}

// CommentTypeCode is the Azure Repos comment type for comments left on code.
// Only these count towards approval on Azure Repos.
const CommentTypeCode = "codeChange"

// OrganizationAndTeamData scopes every lookup and code host call.
type OrganizationAndTeamData struct {
	OrganizationID string `json:"organizationId"`
	TeamID         string `json:"teamId"`
}

// Team is an active team with a configured code management integration.
type Team struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	OrganizationID string `json:"organizationId"`
}

// Scope returns the organization and team identifiers of t.
func (t Team) Scope() OrganizationAndTeamData {
	return OrganizationAndTeamData{OrganizationID: t.OrganizationID, TeamID: t.ID}
}

// Repository is a code host repository reference.
type Repository struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PullRequest is an open pull request known to the platform.
type PullRequest struct {
	Number         int        `json:"number"`
	Title          string     `json:"title,omitempty"`
	Repository     Repository `json:"repository"`
	Platform       Platform   `json:"provider"`
	OrganizationID string     `json:"organizationId"`
}

// ReviewComment is one review comment or thread on a pull request.
type ReviewComment struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"threadId,omitempty"`
	CommentType string    `json:"commentType,omitempty"`
	Body        string    `json:"body,omitempty"`
	IsResolved  bool      `json:"isResolved"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// CodeReviewConfig is the team's CODE_REVIEW_CONFIG parameter value.
type CodeReviewConfig struct {
	Global       GlobalConfig       `json:"global"`
	Repositories []RepositoryConfig `json:"repositories"`
}

// GlobalConfig holds team-wide code review settings.
type GlobalConfig struct {
	PullRequestApprovalActive bool `json:"pullRequestApprovalActive"`
}

// RepositoryConfig holds per-repository overrides. A nil
// PullRequestApprovalActive defers to the global setting.
type RepositoryConfig struct {
	ID                        string `json:"id"`
	Name                      string `json:"name"`
	PullRequestApprovalActive *bool  `json:"pullRequestApprovalActive,omitempty"`
}

// Repository returns the configuration for repository id, if any.
func (c *CodeReviewConfig) Repository(id string) (RepositoryConfig, bool) {
	for _, r := range c.Repositories {
		if r.ID == id {
			return r, true
		}
	}
	return RepositoryConfig{}, false
}

// ApprovalEnabled reports whether pull requests in repository id may be
// approved automatically: enabled globally or for the repository, and never
// when the repository explicitly disables it.
func (c *CodeReviewConfig) ApprovalEnabled(id string) bool {
	repo, ok := c.Repository(id)
	if ok && repo.PullRequestApprovalActive != nil {
		return *repo.PullRequestApprovalActive
	}
	return c.Global.PullRequestApprovalActive
}

// Outcome is the result of checking one pull request.
type Outcome string

const (
	OutcomePending         Outcome = ""
	OutcomeApproved        Outcome = "approved"
	OutcomeAlreadyApproved Outcome = "already_approved"
	OutcomeNoComments      Outcome = "no_comments"
	OutcomeUnresolved      Outcome = "unresolved"
	OutcomeFailed          Outcome = "failed"
)

// Result is the outcome for one pull request of a team run.
type Result struct {
	Repository Repository `json:"repository"`
	Number     int        `json:"number"`
	Platform   Platform   `json:"platform"`
	Outcome    Outcome    `json:"outcome"`
	PipelineID string     `json:"pipelineId"`
}
