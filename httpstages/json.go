package httpstages

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dcshock/reviewpipe/pipeline"
)

// DecodeJSON unmarshals raw into a value of type T.
func DecodeJSON[T any](raw []byte) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("parsejson: %w", err)
	}
	return out, nil
}

// GetJSON returns a stage that GETs the URL derived from the context, decodes the body as T,
// checks every expectation in order and then hands the value to apply. A decode error or a
// failed expectation fails the stage and leaves the context untouched.
func GetJSON[C pipeline.Context, T any](name string, client *http.Client, url URLFunc[C], apply func(C, T) (C, error), expect ...Expect[T]) pipeline.Stage[C] {
	if apply == nil {
		panic("httpstages.GetJSON: apply must not be nil")
	}
	return Get(name, client, url, func(pc C, body []byte) (C, error) {
		v, err := DecodeJSON[T](body)
		if err != nil {
			return pc, err
		}
		for _, e := range expect {
			if err := e.check(v); err != nil {
				return pc, err
			}
		}
		return apply(pc, v)
	})
}
