package httpstages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dcshock/reviewpipe/pipeline"
)

// PostJSON returns a stage that POSTs body(pc) as JSON to the URL derived from the context. The
// response body is discarded and the context passes through unchanged, which suits notification
// and webhook stages. If body returns nil, nothing is sent and the stage succeeds.
func PostJSON[C pipeline.Context](name string, client *http.Client, url URLFunc[C], body func(C) (any, error)) pipeline.Stage[C] {
	if url == nil || body == nil {
		panic("httpstages.PostJSON: url and body must not be nil")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return pipeline.NewStage(name, func(ctx context.Context, pc C) (C, error) {
		payload, err := body(pc)
		if err != nil {
			return pc, fmt.Errorf("http post: body: %w", err)
		}
		if payload == nil {
			return pc, nil
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return pc, fmt.Errorf("http post: marshal: %w", err)
		}
		u, err := url(pc)
		if err != nil {
			return pc, fmt.Errorf("http post: url: %w", err)
		}
		if _, err := do(ctx, client, http.MethodPost, u, bytes.NewReader(raw), "application/json"); err != nil {
			return pc, err
		}
		return pc, nil
	})
}
