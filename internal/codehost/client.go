// Package codehost is an HTTP client for the platform integration service
// that fronts GitHub, GitLab, Bitbucket and Azure Repos.
package codehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dcshock/reviewpipe/internal/approval"
)

// Client implements approval.CodeManagement.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New returns a client for the service at baseURL. Requests time out after
// timeout (30s when zero) and are traced with otelhttp.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("codehost: status %d: %s", e.StatusCode, e.Body)
}

// ReviewThreads implements approval.CodeManagement.
func (c *Client) ReviewThreads(ctx context.Context, ref approval.PullRequestRef) ([]approval.ReviewComment, error) {
	var out []approval.ReviewComment
	if err := c.do(ctx, http.MethodGet, ref, "review-threads", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReviewComments implements approval.CodeManagement.
func (c *Client) ReviewComments(ctx context.Context, ref approval.PullRequestRef) ([]approval.ReviewComment, error) {
	var out []approval.ReviewComment
	if err := c.do(ctx, http.MethodGet, ref, "review-comments", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type approveResponse struct {
	Approved bool `json:"approved"`
}

// ApprovePullRequest implements approval.CodeManagement. The service skips
// the approval when the integration user has already approved.
func (c *Client) ApprovePullRequest(ctx context.Context, ref approval.PullRequestRef) (bool, error) {
	var out approveResponse
	if err := c.do(ctx, http.MethodPost, ref, "approve", ref, &out); err != nil {
		return false, err
	}
	return out.Approved, nil
}

func (c *Client) endpoint(ref approval.PullRequestRef, action string) string {
	path := fmt.Sprintf("%s/platforms/%s/repositories/%s/pulls/%d/%s",
		c.baseURL,
		url.PathEscape(string(ref.Platform)),
		url.PathEscape(ref.Repository.ID),
		ref.Number,
		action,
	)
	q := url.Values{}
	q.Set("organizationId", ref.Scope.OrganizationID)
	q.Set("teamId", ref.Scope.TeamID)
	if ref.Repository.Name != "" {
		q.Set("repositoryName", ref.Repository.Name)
	}
	return path + "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method string, ref approval.PullRequestRef, action string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("codehost: encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(ref, action), rd)
	if err != nil {
		return fmt.Errorf("codehost: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("codehost: %s %s#%s: %w", action, ref.Repository.Name, strconv.Itoa(ref.Number), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("codehost: decode %s response: %w", action, err)
	}
	return nil
}

var _ approval.CodeManagement = (*Client)(nil)
