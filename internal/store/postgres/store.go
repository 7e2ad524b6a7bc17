// Package postgres implements the approval sources on PostgreSQL with pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dcshock/reviewpipe/internal/approval"
)

// CodeReviewConfigKey is the parameters.key holding a team's code review config.
const CodeReviewConfigKey = "CODE_REVIEW_CONFIG"

// Pull request states stored in pull_requests.status.
const (
	StatusOpened = "opened"
	StatusClosed = "closed"
	StatusMerged = "merged"
)

//go:embed schema.sql
var schemaSQL string

// Store reads teams, parameters and pull requests from Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store over pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for dsn and verifies the connection.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// FindTeamsWithCodeManagement implements approval.TeamSource.
func (s *Store) FindTeamsWithCodeManagement(ctx context.Context) ([]approval.Team, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, organization_id
		FROM teams
		WHERE status = 'active' AND code_management_configured
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	teams, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (approval.Team, error) {
		var t approval.Team
		err := row.Scan(&t.ID, &t.Name, &t.OrganizationID)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan teams: %w", err)
	}
	return teams, nil
}

// CodeReviewConfig implements approval.ConfigSource. A missing row or a null
// value is reported as approval.ErrConfigNotFound.
func (s *Store) CodeReviewConfig(ctx context.Context, scope approval.OrganizationAndTeamData) (*approval.CodeReviewConfig, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT config_value
		FROM parameters
		WHERE organization_id = $1 AND team_id = $2 AND key = $3`,
		scope.OrganizationID, scope.TeamID, CodeReviewConfigKey,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, approval.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query code review config: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, approval.ErrConfigNotFound
	}
	var cfg approval.CodeReviewConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode code review config: %w", err)
	}
	return &cfg, nil
}

// OpenPullRequests implements approval.PullRequestSource.
func (s *Store) OpenPullRequests(ctx context.Context, organizationID string) ([]approval.PullRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT number, title, repository_id, repository_name, provider, organization_id
		FROM pull_requests
		WHERE organization_id = $1 AND status = $2
		ORDER BY repository_name, number`,
		organizationID, StatusOpened,
	)
	if err != nil {
		return nil, fmt.Errorf("query pull requests: %w", err)
	}
	prs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (approval.PullRequest, error) {
		var (
			pr       approval.PullRequest
			provider string
		)
		err := row.Scan(&pr.Number, &pr.Title, &pr.Repository.ID, &pr.Repository.Name, &provider, &pr.OrganizationID)
		pr.Platform = approval.Platform(provider)
		return pr, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan pull requests: %w", err)
	}
	return prs, nil
}

// UpsertTeam inserts or updates a team.
func (s *Store) UpsertTeam(ctx context.Context, t approval.Team, active, codeManagementConfigured bool) error {
	status := "active"
	if !active {
		status = "inactive"
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO teams (id, organization_id, name, status, code_management_configured)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			code_management_configured = EXCLUDED.code_management_configured`,
		t.ID, t.OrganizationID, t.Name, status, codeManagementConfigured,
	)
	if err != nil {
		return fmt.Errorf("upsert team %s: %w", t.ID, err)
	}
	return nil
}

// SaveCodeReviewConfig stores cfg as the team's code review parameter.
func (s *Store) SaveCodeReviewConfig(ctx context.Context, scope approval.OrganizationAndTeamData, cfg *approval.CodeReviewConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode code review config: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO parameters (organization_id, team_id, key, config_value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id, team_id, key) DO UPDATE SET
			config_value = EXCLUDED.config_value,
			updated_at = now()`,
		scope.OrganizationID, scope.TeamID, CodeReviewConfigKey, raw,
	)
	if err != nil {
		return fmt.Errorf("save code review config: %w", err)
	}
	return nil
}

// UpsertPullRequest inserts or updates a pull request with the given status.
func (s *Store) UpsertPullRequest(ctx context.Context, pr approval.PullRequest, status string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pull_requests (organization_id, repository_id, repository_name, number, provider, title, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (organization_id, repository_id, number) DO UPDATE SET
			repository_name = EXCLUDED.repository_name,
			provider = EXCLUDED.provider,
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			updated_at = now()`,
		pr.OrganizationID, pr.Repository.ID, pr.Repository.Name, pr.Number, string(pr.Platform), pr.Title, status,
	)
	if err != nil {
		return fmt.Errorf("upsert pull request %s#%d: %w", pr.Repository.Name, pr.Number, err)
	}
	return nil
}

var (
	_ approval.TeamSource        = (*Store)(nil)
	_ approval.ConfigSource      = (*Store)(nil)
	_ approval.PullRequestSource = (*Store)(nil)
)
