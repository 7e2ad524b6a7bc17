// Package pipeline: standard stages for common pipeline patterns.

package pipeline

import (
	"context"
	"errors"
	"time"
)

// Identity returns a stage that passes the context through unchanged.
// Useful as a no-op or placeholder.
func Identity[C Context](name string) Stage[C] {
	return NewStage(name, func(ctx context.Context, pc C) (C, error) {
		return pc, nil
	})
}

// Tap returns a stage that calls fn(ctx, pc) then passes pc through unchanged.
// Use for logging, metrics, or side effects without changing the value.
func Tap[C Context](name string, fn func(context.Context, C)) Stage[C] {
	return NewStage(name, func(ctx context.Context, pc C) (C, error) {
		fn(ctx, pc)
		return pc, nil
	})
}

// Validate returns a stage that fails with errMsg when predicate(pc) is false.
// The failure is isolated like any other, so wrap it with Critical to stop the
// run instead.
func Validate[C Context](name string, predicate func(C) bool, errMsg string) Stage[C] {
	if errMsg == "" {
		errMsg = "validation failed"
	}
	return NewStage(name, func(ctx context.Context, pc C) (C, error) {
		if !predicate(pc) {
			return pc, errors.New(errMsg)
		}
		return pc, nil
	})
}

// Skipper is implemented by contexts that can be marked SKIP (State does).
type Skipper interface {
	SkipRemaining()
}

// SkipWhen returns a stage that marks the context SKIP when predicate(pc) is
// true, so none of the following stages run.
func SkipWhen[C interface {
	Context
	Skipper
}](name string, predicate func(C) bool) Stage[C] {
	return NewStage(name, func(ctx context.Context, pc C) (C, error) {
		if predicate(pc) {
			pc.SkipRemaining()
		}
		return pc, nil
	})
}

// WithTimeout wraps inner so it runs with a context deadline of now+timeout.
// The stage is responsible for observing ctx; the executor does not interrupt it.
func WithTimeout[C Context](inner Stage[C], timeout time.Duration) Stage[C] {
	return NewStage(inner.Name(), func(ctx context.Context, pc C) (C, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return inner.Execute(ctx, pc)
	})
}

// Critical marks inner so that its failure stops the remaining stages instead
// of being skipped over. The run still returns the last good context.
func Critical[C Context](inner Stage[C]) Stage[C] {
	return criticalStage[C]{Stage: inner}
}

type criticalStage[C Context] struct {
	Stage[C]
}

func (criticalStage[C]) Critical() bool { return true }

func isCritical(s any) bool {
	c, ok := s.(interface{ Critical() bool })
	return ok && c.Critical()
}

// Subpipeline returns a stage that runs p as a nested pipeline of the current
// run: the nested run's parent is the current pipeline id and the root id is
// inherited. The nested run's result becomes this stage's output; its identity
// is restored to the outer run's before returning. A SKIP set inside the
// nested run stays inside it.
func Subpipeline[C Nestable](e *Executor[C], p *Pipeline[C]) Stage[C] {
	return NewStage(p.Name, func(ctx context.Context, pc C) (C, error) {
		outer := pc.PipelineMetadata()
		out := p.Run(ctx, e, pc, ChildOf(outer))
		if isNil(out) {
			return out, ErrNilContext
		}
		inner := out.PipelineMetadata()
		inner.PipelineID = outer.PipelineID
		inner.ParentPipelineID = outer.ParentPipelineID
		inner.RootPipelineID = outer.RootPipelineID
		inner.PipelineName = outer.PipelineName
		out.SetPipelineMetadata(inner)
		out.Resume()
		return out, nil
	})
}

// Resumer is implemented by contexts whose SKIP mark can be cleared (State does).
type Resumer interface {
	Resume()
}

// Nestable is a Context that Subpipeline can run nested pipelines over.
type Nestable interface {
	Context
	Resumer
}
