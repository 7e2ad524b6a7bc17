// Package config provides a stage registry and human-readable pipeline configuration.
package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dcshock/reviewpipe/pipeline"
)

// Registry maps stage names to pipeline stages. Safe for concurrent use.
type Registry[C pipeline.Context] struct {
	mu     sync.RWMutex
	stages map[string]pipeline.Stage[C]
}

// NewRegistry returns an empty stage registry.
func NewRegistry[C pipeline.Context]() *Registry[C] {
	return &Registry[C]{stages: make(map[string]pipeline.Stage[C])}
}

// Register adds a stage under the given name. Overwrites any existing registration.
func (r *Registry[C]) Register(name string, stage pipeline.Stage[C]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stages == nil {
		r.stages = make(map[string]pipeline.Stage[C])
	}
	r.stages[name] = stage
}

// RegisterStages registers each stage under its own Name.
func (r *Registry[C]) RegisterStages(stages ...pipeline.Stage[C]) {
	for _, s := range stages {
		r.Register(s.Name(), s)
	}
}

// Get returns the stage for name, or nil and false if not found.
func (r *Registry[C]) Get(name string) (pipeline.Stage[C], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stages[name]
	return s, ok
}

// MustGet returns the stage for name, or panics if not found.
func (r *Registry[C]) MustGet(name string) pipeline.Stage[C] {
	s, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("config: stage %q not registered", name))
	}
	return s
}

// Names returns all registered stage names, sorted.
func (r *Registry[C]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stages))
	for n := range r.stages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
