// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package pipeline defines the pipeline object handed to the orchestrator and
// the contract every pipeline component fulfils.
//
// Init is a thin constructor: it logs what it was given, points the metadata
// connection at the given path and fixes the execution arguments. It performs
// no validation; malformed input surfaces when the orchestrator runs it.
package pipeline

import (
	"context"
	"fmt"
	"runtime"

	"github.com/specialistvlad/featuregrid/internal/ctxlog"
	"github.com/specialistvlad/featuregrid/internal/metadata"
)

// Outputs maps an artifact name to its URI.
type Outputs map[string]string

// RunContext is what a component sees while it runs.
type RunContext struct {
	Pipeline string
	RunID    string
	Root     string
	// OutputDir is a fresh directory reserved for this execution's artifacts.
	OutputDir string
	// Inputs holds the outputs of every upstream component, keyed by ID.
	Inputs map[string]Outputs
	// Workers is the resolved worker count for data-parallel work.
	Workers int
}

// Input returns artifact name of upstream component id.
func (rc *RunContext) Input(id, name string) (string, error) {
	outs, ok := rc.Inputs[id]
	if !ok {
		return "", fmt.Errorf("no outputs from upstream component '%s'", id)
	}
	uri, ok := outs[name]
	if !ok {
		return "", fmt.Errorf("upstream component '%s' has no artifact '%s'", id, name)
	}
	return uri, nil
}

// Component is one unit of work in a pipeline.
type Component interface {
	// ID is unique within the pipeline.
	ID() string
	// Type names the registered implementation, e.g. "transform".
	Type() string
	// Upstream lists the IDs this component consumes outputs from.
	Upstream() []string
	// Fingerprint changes whenever the component's own configuration does.
	Fingerprint() string
	Run(ctx context.Context, rc *RunContext) (Outputs, error)
}

// Cacheable is implemented by components that may opt out of output reuse,
// such as ones that only have side effects.
type Cacheable interface {
	Cacheable() bool
}

// IsCacheable reports whether the orchestrator may reuse c's earlier outputs.
// Components that do not implement Cacheable are cacheable.
func IsCacheable(c Component) bool {
	if cc, ok := c.(Cacheable); ok {
		return cc.Cacheable()
	}
	return true
}

// RunMode selects how the orchestrator executes components.
type RunMode string

const (
	// MultiProcessing runs independent components concurrently.
	MultiProcessing RunMode = "multi_processing"
	// InMemory runs components one at a time.
	InMemory RunMode = "in_memory"
)

// ExecutionArgs are the engine parameters fixed at initialisation.
type ExecutionArgs struct {
	Mode RunMode
	// NumWorkers of zero lets the engine choose.
	NumWorkers int
}

// Workers resolves the effective worker count.
func (a ExecutionArgs) Workers() int {
	if a.Mode == InMemory {
		return 1
	}
	if a.NumWorkers > 0 {
		return a.NumWorkers
	}
	return runtime.NumCPU()
}

// Args renders the execution arguments in command-line form for logs.
func (a ExecutionArgs) Args() []string {
	return []string{
		fmt.Sprintf("--direct_running_mode=%s", a.Mode),
		fmt.Sprintf("--direct_num_workers=%d", a.NumWorkers),
	}
}

// Pipeline is a fully configured, ready-to-run pipeline.
type Pipeline struct {
	Name        string
	Root        string
	Components  []Component
	EnableCache bool
	Metadata    metadata.ConnectionConfig
	Execution   ExecutionArgs
}

// Init builds a Pipeline from its parts.
func Init(ctx context.Context, root, name, metadataPath string, components []Component) *Pipeline {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Initializing pipeline.", "pipeline", name)
	logger.Info("Pipeline root set.", "root", root)
	logger.Info("Metadata path set.", "metadata_path", metadataPath)

	return &Pipeline{
		Name:        name,
		Root:        root,
		Components:  components,
		EnableCache: true,
		Metadata:    metadata.FileConnectionConfig(metadataPath),
		Execution: ExecutionArgs{
			Mode:       MultiProcessing,
			NumWorkers: 0,
		},
	}
}

// Meta carries the identity shared by every component and implements the
// non-Run half of Component.
type Meta struct {
	Name      string
	Kind      string
	DependsOn []string
	// Hash summarises the component's decoded configuration.
	Hash string
}

func (m Meta) ID() string          { return m.Name }
func (m Meta) Type() string        { return m.Kind }
func (m Meta) Upstream() []string  { return m.DependsOn }
func (m Meta) Fingerprint() string { return m.Hash }
