// Package config provides a stage registry and human-readable pipeline configuration.
//
// Register stages by name, then define pipelines in YAML (or structs) that reference
// those names and optional modifiers (timeout, critical) or other pipelines:
//
//	pipelines:
//	  check-pr-approval:
//	    stages:
//	      - name: fetch-review-comments
//	        timeout: 30s
//	      - require-resolved
//	      - name: approve
//	        critical: true
//	  nightly:
//	    stages:
//	      - load-config
//	      - pipeline: check-pr-approval
//
// Build with BuildPipeline(registry, config, opts) or, for a whole file,
// BuildAllPipelines(registry, multi, executor).
package config
