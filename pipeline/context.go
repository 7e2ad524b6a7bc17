package pipeline

import "maps"

// Status is the engine-visible control state of a run. Domain status values
// belong in the caller's own context fields, never here.
type Status string

const (
	// StatusRunning is the implicit status of any context not marked SKIP.
	StatusRunning Status = ""
	// StatusSkip halts the remaining stages of the current run.
	StatusSkip Status = "SKIP"
)

// DefaultPipelineName is used when Execute is called without Named.
const DefaultPipelineName = "UnnamedPipeline"

// Metadata identifies one pipeline run and its place in a chain of nested runs.
// Attributes are caller-owned and preserved across runs unchanged.
type Metadata struct {
	PipelineID       string            `json:"pipelineId"`
	ParentPipelineID string            `json:"parentPipelineId,omitempty"`
	RootPipelineID   string            `json:"rootPipelineId"`
	PipelineName     string            `json:"pipelineName"`
	Attributes       map[string]string `json:"attributes,omitempty"`
}

// IsRoot reports whether the run was started without a parent.
func (m Metadata) IsRoot() bool { return m.ParentPipelineID == "" }

// Context is the contract between the executor and the value threaded through
// the stages. Implementations are normally pointers to structs embedding State.
type Context interface {
	PipelineMetadata() Metadata
	SetPipelineMetadata(Metadata)
	ShouldSkip() bool
}

// Cloner is implemented by contexts that can be copied before each stage. The
// executor then hands every stage a clone and keeps it only when the stage
// succeeds, so a failing stage's in-place writes are discarded.
type Cloner[C any] interface {
	Clone() C
}

// LogFielder is implemented by contexts that want extra fields (tenant, repo,
// ...) attached to every event the executor emits for their run.
type LogFielder interface {
	LogFields() map[string]any
}

// State carries the control status and metadata. Embed it in a context struct
// to satisfy Context.
type State struct {
	Status   Status
	Metadata Metadata
}

// SkipRemaining marks the run so that no further stages execute.
func (s *State) SkipRemaining() { s.Status = StatusSkip }

// Resume clears a previous SkipRemaining.
func (s *State) Resume() { s.Status = StatusRunning }

// ShouldSkip implements Context.
func (s *State) ShouldSkip() bool { return s.Status == StatusSkip }

// PipelineMetadata implements Context.
func (s *State) PipelineMetadata() Metadata { return s.Metadata }

// SetPipelineMetadata implements Context.
func (s *State) SetPipelineMetadata(m Metadata) { s.Metadata = m }

// CloneState returns a copy of s that shares nothing mutable with it.
// Context types implementing Cloner use it for their embedded State.
func (s State) CloneState() State {
	out := s
	if s.Metadata.Attributes != nil {
		out.Metadata.Attributes = maps.Clone(s.Metadata.Attributes)
	}
	return out
}
