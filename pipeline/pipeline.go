package pipeline

import (
	"context"
)

// Stage is a single named step in a pipeline. Execute receives the context
// exclusively for the duration of the call and returns the context for the next
// stage: either the same value mutated in place or a new one. Name is used
// only for tracing and diagnostics.
type Stage[C Context] interface {
	Name() string
	Execute(ctx context.Context, pc C) (C, error)
}

// StageFunc is the function form of a stage body.
type StageFunc[C Context] func(ctx context.Context, pc C) (C, error)

// NewStage returns a Stage named name that runs fn.
func NewStage[C Context](name string, fn StageFunc[C]) Stage[C] {
	return &funcStage[C]{name: name, fn: fn}
}

type funcStage[C Context] struct {
	name string
	fn   StageFunc[C]
}

func (s *funcStage[C]) Name() string { return s.name }

func (s *funcStage[C]) Execute(ctx context.Context, pc C) (C, error) {
	return s.fn(ctx, pc)
}

// Pipeline is a named, ordered list of stages. It is a convenience for callers
// that define a pipeline once and run it many times; the executor itself keeps
// no reference to it between runs.
type Pipeline[C Context] struct {
	Name   string
	Stages []Stage[C]
}

// Run executes p's stages against pc with e. Named(p.Name) is applied before
// opts, so a later Named in opts wins.
func (p *Pipeline[C]) Run(ctx context.Context, e *Executor[C], pc C, opts ...RunOption) C {
	all := make([]RunOption, 0, len(opts)+1)
	if p.Name != "" {
		all = append(all, Named(p.Name))
	}
	all = append(all, opts...)
	return e.Execute(ctx, pc, p.Stages, all...)
}
