package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcshock/reviewpipe/internal/approval"
)

type fakeChecker struct {
	mu      sync.Mutex
	scopes  []approval.OrganizationAndTeamData
	runErr  error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeChecker) Run(ctx context.Context) (approval.Summary, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	if f.runErr != nil {
		return approval.Summary{}, f.runErr
	}
	return approval.Summary{Teams: 1, PullRequestsChecked: 2, Approved: 1}, nil
}

func (f *fakeChecker) CheckTeamByID(ctx context.Context, scope approval.OrganizationAndTeamData) (approval.TeamReport, error) {
	f.mu.Lock()
	f.scopes = append(f.scopes, scope)
	f.mu.Unlock()
	if scope.TeamID == "missing" {
		return approval.TeamReport{}, fmt.Errorf("%w: missing", approval.ErrTeamNotFound)
	}
	if scope.TeamID == "broken" {
		return approval.TeamReport{}, errors.New("database down")
	}
	return approval.TeamReport{
		Team:    approval.Team{ID: scope.TeamID, OrganizationID: scope.OrganizationID},
		Results: []approval.Result{{Number: 7, Outcome: approval.OutcomeApproved}},
	}, nil
}

func newTestServer(t *testing.T, c Checker) (*Server, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	reg := prometheus.NewRegistry()
	promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: "reviewpipe_test_total"}).Inc()
	return New(":0", c, reg, logger), &logs
}

func do(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, &fakeChecker{})
	rec := do(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, &fakeChecker{})
	rec := do(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reviewpipe_test_total 1")
}

func TestRunAll(t *testing.T) {
	s, logs := newTestServer(t, &fakeChecker{})
	rec := do(s, http.MethodPost, "/v1/approval-checks")
	require.Equal(t, http.StatusOK, rec.Code)

	var sum approval.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 1, sum.Teams)
	assert.Equal(t, 2, sum.PullRequestsChecked)
	assert.Equal(t, 1, sum.Approved)
	assert.Contains(t, logs.String(), `"msg":"request completed"`)
}

func TestRunAll_Error(t *testing.T) {
	s, _ := newTestServer(t, &fakeChecker{runErr: errors.New("find teams: boom")})
	rec := do(s, http.MethodPost, "/v1/approval-checks")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"find teams: boom"}`, rec.Body.String())
}

func TestRunAll_RejectsOverlap(t *testing.T) {
	c := &fakeChecker{block: make(chan struct{}), started: make(chan struct{})}
	s, _ := newTestServer(t, c)

	done := make(chan int)
	go func() { done <- do(s, http.MethodPost, "/v1/approval-checks").Code }()

	select {
	case <-c.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never started")
	}
	assert.Equal(t, http.StatusConflict, do(s, http.MethodPost, "/v1/approval-checks").Code)

	close(c.block)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestCheckTeam(t *testing.T) {
	c := &fakeChecker{}
	s, _ := newTestServer(t, c)

	rec := do(s, http.MethodPost, "/v1/approval-checks/teams/t1?organizationId=o1")
	require.Equal(t, http.StatusOK, rec.Code)
	var report approval.TeamReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "t1", report.Team.ID)
	require.Len(t, report.Results, 1)
	assert.Equal(t, approval.OutcomeApproved, report.Results[0].Outcome)
	assert.Equal(t, []approval.OrganizationAndTeamData{{OrganizationID: "o1", TeamID: "t1"}}, c.scopes)
}

func TestCheckTeam_Errors(t *testing.T) {
	s, _ := newTestServer(t, &fakeChecker{})
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodPost, "/v1/approval-checks/teams/missing").Code)
	assert.Equal(t, http.StatusInternalServerError, do(s, http.MethodPost, "/v1/approval-checks/teams/broken").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(s, http.MethodGet, "/v1/approval-checks/teams/t1").Code)
}

func TestRequestIDMiddleware_ReusesHeader(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestLoggingMiddleware_Status(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, 2)
	var done map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &done))
	assert.Equal(t, "request completed", done["msg"])
	assert.Equal(t, float64(http.StatusTeapot), done["status"])
	assert.Equal(t, "/brew", done["path"])
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t, &fakeChecker{})
	s.Addr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
