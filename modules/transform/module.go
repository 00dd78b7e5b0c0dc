// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package transform is the pipeline component wrapping the analyze and
// transform phases: it computes dataset-global statistics over every example
// shard, persists them as the transform graph, and applies the preprocessing
// function to each shard.
package transform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alitto/pond/v2"
	"github.com/specialistvlad/featuregrid/internal/analyzer"
	"github.com/specialistvlad/featuregrid/internal/artifact"
	"github.com/specialistvlad/featuregrid/internal/ctxlog"
	"github.com/specialistvlad/featuregrid/internal/feature"
	"github.com/specialistvlad/featuregrid/internal/metrics"
	"github.com/specialistvlad/featuregrid/internal/pipeline"
	"github.com/specialistvlad/featuregrid/internal/registry"
	xf "github.com/specialistvlad/featuregrid/internal/transform"
)

// TypeName is the component type used in pipeline files.
const TypeName = "transform"

// Artifact names produced by the component.
const (
	OutputTransformGraph      = "transform_graph"
	OutputTransformedExamples = "transformed_examples"
	// StatisticsFile is the file inside the transform graph directory.
	StatisticsFile = "statistics.yaml"
	// inputExamples is the artifact read from the upstream component.
	inputExamples = "examples"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	// Examples names the upstream component providing examples. It may be
	// omitted when the component has exactly one upstream.
	Examples string `hcl:"examples,optional"`
}

// Component runs analyze then transform over the upstream examples.
type Component struct {
	pipeline.Meta
	spec     feature.Spec
	examples string
}

// NewComponent resolves the examples source against the declared upstreams.
func NewComponent(meta pipeline.Meta, spec feature.Spec, input Input) (*Component, error) {
	if spec.IsZero() {
		return nil, fmt.Errorf("component '%s': feature spec is empty", meta.Name)
	}
	examples := input.Examples
	switch {
	case examples == "" && len(meta.DependsOn) == 1:
		examples = meta.DependsOn[0]
	case examples == "":
		return nil, fmt.Errorf("component '%s': 'examples' is required with %d upstream components", meta.Name, len(meta.DependsOn))
	default:
		found := false
		for _, up := range meta.DependsOn {
			found = found || up == examples
		}
		if !found {
			meta.DependsOn = append(append([]string(nil), meta.DependsOn...), examples)
		}
	}
	return &Component{Meta: meta, spec: spec, examples: examples}, nil
}

// Run executes the analyze phase followed by the transform phase.
func (c *Component) Run(ctx context.Context, rc *pipeline.RunContext) (pipeline.Outputs, error) {
	logger := ctxlog.FromContext(ctx)

	examplesDir, err := rc.Input(c.examples, inputExamples)
	if err != nil {
		return nil, err
	}
	shards, err := artifact.Shards(examplesDir)
	if err != nil {
		return nil, err
	}

	workers := rc.Workers
	if workers < 1 {
		workers = 1
	}

	stats, err := c.analyze(ctx, shards, workers)
	if err != nil {
		return nil, fmt.Errorf("analyze phase failed: %w", err)
	}
	logger.Info("Analyze phase finished.", "examples", stats.NumExamples, "shards", len(shards))

	graphDir := filepath.Join(rc.OutputDir, OutputTransformGraph)
	if err := os.MkdirAll(graphDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create transform graph directory: %w", err)
	}
	if err := stats.Save(filepath.Join(graphDir, StatisticsFile)); err != nil {
		return nil, err
	}

	transformer, err := xf.New(c.spec, stats)
	if err != nil {
		return nil, err
	}

	outDir := filepath.Join(rc.OutputDir, OutputTransformedExamples)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create transformed examples directory: %w", err)
	}
	written, err := c.transform(ctx, transformer, shards, outDir, workers)
	if err != nil {
		return nil, fmt.Errorf("transform phase failed: %w", err)
	}
	logger.Info("Transform phase finished.", "examples", written, "keys", c.spec.TransformedKeys())

	return pipeline.Outputs{
		OutputTransformGraph:      graphDir,
		OutputTransformedExamples: outDir,
	}, nil
}

// analyze folds every shard into its own accumulator on a worker pool and
// merges the partial results.
func (c *Component) analyze(ctx context.Context, shards []string, workers int) (*analyzer.Statistics, error) {
	pool := pond.NewResultPool[*analyzer.Accumulator](workers)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	for _, shard := range shards {
		group.SubmitErr(func() (*analyzer.Accumulator, error) {
			batch, err := artifact.ReadBatch(shard)
			if err != nil {
				return nil, err
			}
			acc := analyzer.NewAccumulator(c.spec)
			if err := acc.Add(batch); err != nil {
				return nil, fmt.Errorf("%s: %w", filepath.Base(shard), err)
			}
			metrics.BatchesAnalyzed.Inc()
			return acc, nil
		})
	}
	partials, err := group.Wait()
	if err != nil {
		return nil, err
	}

	total := analyzer.NewAccumulator(c.spec)
	for _, acc := range partials {
		total.Merge(acc)
	}
	return total.Finalize()
}

// transform applies t to every shard and writes one output shard per input.
func (c *Component) transform(ctx context.Context, t *xf.Transformer, shards []string, outDir string, workers int) (int, error) {
	pool := pond.NewResultPool[int](workers)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	for i, shard := range shards {
		group.SubmitErr(func() (int, error) {
			batch, err := artifact.ReadBatch(shard)
			if err != nil {
				return 0, err
			}
			out, err := t.Transform(batch)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", filepath.Base(shard), err)
			}
			records := out.Records()
			if err := artifact.WriteRecords(artifact.ShardPath(outDir, OutputTransformedExamples, i), records); err != nil {
				return 0, err
			}
			metrics.BatchesTransformed.Inc()
			metrics.ExamplesTransformed.Add(float64(len(records)))
			return len(records), nil
		})
	}
	counts, err := group.Wait()
	if err != nil {
		return 0, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// Register registers the component type with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterComponent(TypeName, &registry.RegisteredComponent{
		NewInput: func() any { return new(Input) },
		New: func(meta pipeline.Meta, def *registry.Definition, input any) (pipeline.Component, error) {
			return NewComponent(meta, def.Spec, *input.(*Input))
		},
	})
}
