// Package httpstages provides pipeline stages for HTTP requests and response handling.
//
// Use Get to perform a GET request and handle the raw body, GetJSON to decode it into a
// typed value and verify it with Expect predicates, and PostJSON to send a notification.
// URLs are derived from the pipeline context so one stage can serve many runs.
//
// Example pipeline: GET status → decode → expect → store on the context
//
//	check := httpstages.GetJSON("check-api", nil,
//	    func(r *Run) (string, error) { return r.BaseURL + "/status", nil },
//	    func(r *Run, s Status) (*Run, error) { r.Status = s; return r, nil },
//	    func(s Status) error {
//	        if s.State != "ok" { return fmt.Errorf("unexpected status %q", s.State) }
//	        return nil
//	    },
//	)
package httpstages
