package httpstages

import (
	"fmt"
	"reflect"
)

// Expect is a predicate over a decoded response. Returning an error fails the stage.
// Use it with GetJSON to verify the decoded result (e.g. check status field, required keys).
type Expect[T any] func(T) error

func (e Expect[T]) check(v T) error {
	if e == nil {
		return nil
	}
	if err := e(v); err != nil {
		return fmt.Errorf("expect: %w", err)
	}
	return nil
}

// ExpectEqual returns an expectation that the value equals expected using reflect.DeepEqual.
// Works for primitives, slices, structs, and maps (e.g. parsed JSON).
func ExpectEqual[T any](expected T) Expect[T] {
	return func(v T) error {
		if !reflect.DeepEqual(v, expected) {
			return fmt.Errorf("got %v, want %v", v, expected)
		}
		return nil
	}
}
