package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dcshock/reviewpipe/pipeline"
)

// ErrCycle is returned when pipelines reference each other in a loop.
var ErrCycle = errors.New("pipeline reference cycle")

// BuildOptions configures how a pipeline is built from config.
type BuildOptions[C pipeline.Nestable] struct {
	// Executor runs nested pipelines referenced with "pipeline:". Required only
	// when such references are present.
	Executor *pipeline.Executor[C]

	// Pipelines holds already built pipelines that "pipeline:" entries may
	// reference.
	Pipelines map[string]*pipeline.Pipeline[C]
}

// BuildPipeline builds a pipeline.Pipeline from config and registry. Stage names in config must be registered;
// pipeline references must be present in opts.Pipelines.
func BuildPipeline[C pipeline.Nestable](reg *Registry[C], cfg *PipelineConfig, opts *BuildOptions[C]) (*pipeline.Pipeline[C], error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	stages := make([]pipeline.Stage[C], 0, len(cfg.Stages))
	for i, ref := range cfg.Stages {
		stage, err := resolveStage(reg, ref, opts)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%q): %w", i, ref.Label(), err)
		}
		stages = append(stages, wrapStage(stage, ref))
	}
	return &pipeline.Pipeline[C]{Name: cfg.Name, Stages: stages}, nil
}

func resolveStage[C pipeline.Nestable](reg *Registry[C], ref StageRef, opts *BuildOptions[C]) (pipeline.Stage[C], error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	if ref.Pipeline == "" {
		stage, ok := reg.Get(ref.Name)
		if !ok {
			return nil, fmt.Errorf("%q not in registry", ref.Name)
		}
		return stage, nil
	}
	if opts == nil || opts.Executor == nil {
		return nil, fmt.Errorf("pipeline reference requires BuildOptions.Executor")
	}
	nested, ok := opts.Pipelines[ref.Pipeline]
	if !ok {
		return nil, fmt.Errorf("pipeline %q not defined", ref.Pipeline)
	}
	return pipeline.Subpipeline(opts.Executor, nested), nil
}

func wrapStage[C pipeline.Context](s pipeline.Stage[C], ref StageRef) pipeline.Stage[C] {
	if ref.Timeout > 0 {
		s = pipeline.WithTimeout(s, ref.Timeout.Duration())
	}
	if ref.Critical {
		s = pipeline.Critical(s)
	}
	return s
}

// BuildAllPipelines builds a pipeline.Pipeline for each entry in multi. Keys are pipeline names.
// If a pipeline config's Name is empty, the map key is used as the pipeline name. Entries may
// reference each other with "pipeline:"; referenced pipelines are built first. Unknown references
// and cycles are errors. exec may be nil when no entry references another pipeline.
func BuildAllPipelines[C pipeline.Nestable](reg *Registry[C], multi *MultiPipelineConfig, exec *pipeline.Executor[C]) (map[string]*pipeline.Pipeline[C], error) {
	if multi == nil {
		return nil, fmt.Errorf("MultiPipelineConfig is nil")
	}
	b := &builder[C]{
		reg:   reg,
		multi: multi,
		opts: &BuildOptions[C]{
			Executor:  exec,
			Pipelines: make(map[string]*pipeline.Pipeline[C], len(multi.Pipelines)),
		},
		visiting: make(map[string]bool),
	}
	names := make([]string, 0, len(multi.Pipelines))
	for name := range multi.Pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := b.build(name, nil); err != nil {
			return nil, err
		}
	}
	return b.opts.Pipelines, nil
}

type builder[C pipeline.Nestable] struct {
	reg      *Registry[C]
	multi    *MultiPipelineConfig
	opts     *BuildOptions[C]
	visiting map[string]bool
}

func (b *builder[C]) build(name string, path []string) error {
	if _, done := b.opts.Pipelines[name]; done {
		return nil
	}
	path = append(path, name)
	if b.visiting[name] {
		return fmt.Errorf("%w: %s", ErrCycle, strings.Join(path, " -> "))
	}
	cfg, ok := b.multi.Pipelines[name]
	if !ok {
		return fmt.Errorf("pipeline %q not defined", name)
	}
	b.visiting[name] = true
	defer delete(b.visiting, name)

	for i, ref := range cfg.Stages {
		if ref.Pipeline == "" {
			continue
		}
		if err := b.build(ref.Pipeline, path); err != nil {
			if errors.Is(err, ErrCycle) {
				return err
			}
			return fmt.Errorf("pipeline %q: stage %d: %w", name, i, err)
		}
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	p, err := BuildPipeline(b.reg, &cfg, b.opts)
	if err != nil {
		return fmt.Errorf("pipeline %q: %w", name, err)
	}
	b.opts.Pipelines[name] = p
	return nil
}
