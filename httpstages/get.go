package httpstages

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dcshock/reviewpipe/pipeline"
)

// URLFunc derives a request URL from the pipeline context.
type URLFunc[C pipeline.Context] func(C) (string, error)

// Get returns a stage that performs an HTTP GET to the URL derived from the context and hands the
// response body to apply. The request uses the stage's context (timeout and cancellation). If client
// is nil, http.DefaultClient is used. Non-2xx responses are stage failures.
func Get[C pipeline.Context](name string, client *http.Client, url URLFunc[C], apply func(C, []byte) (C, error)) pipeline.Stage[C] {
	if url == nil || apply == nil {
		panic("httpstages.Get: url and apply must not be nil")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return pipeline.NewStage(name, func(ctx context.Context, pc C) (C, error) {
		u, err := url(pc)
		if err != nil {
			return pc, fmt.Errorf("http get: url: %w", err)
		}
		body, err := do(ctx, client, http.MethodGet, u, nil, "")
		if err != nil {
			return pc, err
		}
		return apply(pc, body)
	})
}

func do(ctx context.Context, client *http.Client, method, url string, body io.Reader, contentType string) ([]byte, error) {
	op := "http " + method
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%s: new request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", op, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: method, URL: url, StatusCode: resp.StatusCode}
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %q: read body: %w", op, url, err)
	}
	return out, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s %q: status %d", e.Method, e.URL, e.StatusCode)
}
