package httpstages

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dcshock/reviewpipe/pipeline"
)

func setStatus(c *call, s status) (*call, error) {
	c.Status = s
	return c, nil
}

func statusOK(s status) error {
	if s.Status != "ok" {
		return fmt.Errorf("unexpected status: %v", s.Status)
	}
	return nil
}

// TestPipeline_GetJSON_Expect runs a full pipeline: GET + decode + expect, then notify.
func TestPipeline_GetJSON_Expect(t *testing.T) {
	var notified map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok","version":1}`))
		case "/notify":
			if r.Header.Get("Content-Type") != "application/json" {
				w.WriteHeader(http.StatusUnsupportedMediaType)
				return
			}
			json.NewDecoder(r.Body).Decode(&notified)
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	p := &pipeline.Pipeline[*call]{
		Name: "http-check",
		Stages: []pipeline.Stage[*call]{
			GetJSON("status", nil, baseURL("/status"), setStatus, statusOK),
			PostJSON("notify", nil, baseURL("/notify"), func(c *call) (any, error) {
				return map[string]any{"version": c.Status.Version}, nil
			}),
		},
	}
	out := p.Run(context.Background(), pipeline.NewExecutor[*call](), &call{BaseURL: ts.URL})
	if out.Status.Status != "ok" || out.Status.Version != 1 {
		t.Errorf("unexpected result: %+v", out.Status)
	}
	if notified["version"] != float64(1) {
		t.Errorf("notification: got %v", notified)
	}
}

// TestPipeline_GetJSON_Expect_Fail verifies the stage fails and leaves the context alone.
func TestPipeline_GetJSON_Expect_Fail(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error"}`))
	}))
	defer ts.Close()

	stage := GetJSON("status", nil, baseURL("/status"), setStatus, statusOK)
	out, err := stage.Execute(context.Background(), &call{BaseURL: ts.URL})
	if err == nil {
		t.Fatal("expected stage to fail when Expect returns error")
	}
	if out.Status.Status != "" {
		t.Errorf("status should not be applied, got %+v", out.Status)
	}
}

func TestPostJSON_NilBodySkipsRequest(t *testing.T) {
	hits := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer ts.Close()

	stage := PostJSON("notify", nil, baseURL("/"), func(c *call) (any, error) { return nil, nil })
	if _, err := stage.Execute(context.Background(), &call{BaseURL: ts.URL}); err != nil {
		t.Fatal(err)
	}
	if hits != 0 {
		t.Errorf("expected no request, got %d", hits)
	}
}

func TestPostJSON_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	stage := PostJSON("notify", nil, baseURL("/"), func(c *call) (any, error) { return map[string]int{"a": 1}, nil })
	if _, err := stage.Execute(context.Background(), &call{BaseURL: ts.URL}); err == nil {
		t.Fatal("expected error for 502")
	}
}
