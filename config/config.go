package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// PipelineConfig is the root structure for a pipeline definition (e.g. from YAML).
type PipelineConfig struct {
	Name   string     `yaml:"name"`
	Stages []StageRef `yaml:"stages"`
}

// StageRef is a single stage entry: either a plain name or name + options.
// In YAML, a stage can be written as:
//   - fetch
//   - name: parse
//     timeout: 60s
//     critical: true
//   - pipeline: notify
//
// The last form runs another pipeline from the same file as a nested run.
type StageRef struct {
	Name string `yaml:"name"`

	// Pipeline names another pipeline to run as a nested sub-pipeline. Mutually
	// exclusive with Name.
	Pipeline string `yaml:"pipeline"`

	// Timeout applied around the stage (e.g. "60s"). Zero means none.
	Timeout Duration `yaml:"timeout"`

	// Critical stops the run when this stage fails.
	Critical bool `yaml:"critical"`
}

// UnmarshalYAML allows a stage to be a string (stage name only) or a struct.
func (s *StageRef) UnmarshalYAML(value *yaml.Node) error {
	var nameOnly string
	if err := value.Decode(&nameOnly); err == nil {
		s.Name = nameOnly
		return nil
	}
	type raw StageRef
	return value.Decode((*raw)(s))
}

// Label is the name used in error messages: the stage name, or the
// referenced pipeline for nested entries.
func (s StageRef) Label() string {
	if s.Pipeline != "" {
		return "pipeline:" + s.Pipeline
	}
	return s.Name
}

func (s StageRef) validate() error {
	switch {
	case s.Name == "" && s.Pipeline == "":
		return errors.New("name or pipeline required")
	case s.Name != "" && s.Pipeline != "":
		return errors.New("name and pipeline are mutually exclusive")
	case s.Timeout < 0:
		return errors.New("timeout must not be negative")
	}
	return nil
}

// Duration is a time.Duration that unmarshals from YAML strings (e.g. "60s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the standard time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// ParsePipelineConfig parses YAML bytes into a single PipelineConfig.
func ParsePipelineConfig(data []byte) (*PipelineConfig, error) {
	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MultiPipelineConfig is the root structure for a file that defines multiple pipelines.
// Top-level key is "pipelines"; each value is a pipeline (name + stages).
type MultiPipelineConfig struct {
	Pipelines map[string]PipelineConfig `yaml:"pipelines"`
}

// ParseMultiPipelineConfig parses YAML bytes that contain a "pipelines" map from name to pipeline config.
// Example YAML:
//
//	pipelines:
//	  check-team-approvals:
//	    stages: [load-config, list-open-prs, select-eligible-prs, check-pull-requests]
//	  check-pr-approval:
//	    stages:
//	      - name: fetch-review-comments
//	        timeout: 30s
//	      - require-resolved
//	      - approve
func ParseMultiPipelineConfig(data []byte) (*MultiPipelineConfig, error) {
	var cfg MultiPipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PipelineConfigFromMap parses a single pipeline from a map (e.g. one key in a multi-pipeline YAML).
// The key is the pipeline name; the value is the stages list.
func PipelineConfigFromMap(name string, stages any) (*PipelineConfig, error) {
	// Re-encode and decode so we can reuse StageRef unmarshaling
	data, err := yaml.Marshal(map[string]any{"name": name, "stages": stages})
	if err != nil {
		return nil, err
	}
	return ParsePipelineConfig(data)
}
