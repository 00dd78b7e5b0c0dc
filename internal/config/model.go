// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package config

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/featuregrid/internal/feature"
)

// Model is the unified representation of a pipeline definition.
type Model struct {
	Pipeline   Pipeline
	Spec       feature.Spec
	Components []*Component
	// EvalCtx resolves variables inside component arguments.
	EvalCtx *hcl.EvalContext
}

// Pipeline is the `pipeline "name"` block.
type Pipeline struct {
	Name         string
	Root         string
	MetadataPath string
	// EnableCache is nil when the file leaves caching at its default.
	EnableCache *bool
}

// Component is one `component "type" "name"` block.
type Component struct {
	Type      string
	Name      string
	DependsOn []string
	// Arguments is nil when the block has no `arguments` block.
	Arguments hcl.Body
}
