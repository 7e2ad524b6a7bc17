// Package memory is an in-memory implementation of the approval sources,
// used for local runs and tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dcshock/reviewpipe/internal/approval"
)

// Store holds teams, code review configs and pull requests. Safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	teams   []approval.Team
	configs map[approval.OrganizationAndTeamData]*approval.CodeReviewConfig
	prs     map[string][]approval.PullRequest // by organization id
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		configs: make(map[approval.OrganizationAndTeamData]*approval.CodeReviewConfig),
		prs:     make(map[string][]approval.PullRequest),
	}
}

// AddTeam registers an active team with code management configured.
func (s *Store) AddTeam(t approval.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams = append(s.teams, t)
}

// SetConfig stores the code review config for a team. A nil cfg removes it.
func (s *Store) SetConfig(scope approval.OrganizationAndTeamData, cfg *approval.CodeReviewConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg == nil {
		delete(s.configs, scope)
		return
	}
	s.configs[scope] = cfg
}

// AddPullRequest records an open pull request.
func (s *Store) AddPullRequest(pr approval.PullRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prs[pr.OrganizationID] = append(s.prs[pr.OrganizationID], pr)
}

// FindTeamsWithCodeManagement implements approval.TeamSource.
func (s *Store) FindTeamsWithCodeManagement(context.Context) ([]approval.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.teams), nil
}

// CodeReviewConfig implements approval.ConfigSource.
func (s *Store) CodeReviewConfig(_ context.Context, scope approval.OrganizationAndTeamData) (*approval.CodeReviewConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[scope]
	if !ok {
		return nil, approval.ErrConfigNotFound
	}
	cp := *cfg
	cp.Repositories = slices.Clone(cfg.Repositories)
	return &cp, nil
}

// OpenPullRequests implements approval.PullRequestSource.
func (s *Store) OpenPullRequests(_ context.Context, organizationID string) ([]approval.PullRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.prs[organizationID]), nil
}

var (
	_ approval.TeamSource        = (*Store)(nil)
	_ approval.ConfigSource      = (*Store)(nil)
	_ approval.PullRequestSource = (*Store)(nil)
)
