// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package print writes a human-readable summary of upstream artifacts. When an
// upstream provides a transform graph, its vocabularies and ranges are
// printed too.
package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/specialistvlad/featuregrid/internal/analyzer"
	"github.com/specialistvlad/featuregrid/internal/ctxlog"
	"github.com/specialistvlad/featuregrid/internal/pipeline"
	"github.com/specialistvlad/featuregrid/internal/registry"
)

// TypeName is the component type used in pipeline files.
const TypeName = "print"

const transformGraph = "transform_graph"

// Module implements the registry.Module interface for this package.
type Module struct {
	// Out receives the summary. Nil means stdout.
	Out io.Writer
}

// Input defines the arguments for the print component.
type Input struct {
	// StatisticsFile is looked up inside every transform graph artifact.
	StatisticsFile string `hcl:"statistics_file,optional"`
}

// Component prints what its upstreams produced.
type Component struct {
	pipeline.Meta
	input Input
	out   io.Writer
}

// Run prints every upstream artifact, sorted, and never produces outputs.
func (c *Component) Run(ctx context.Context, rc *pipeline.RunContext) (pipeline.Outputs, error) {
	ctxlog.FromContext(ctx).Info("Printing upstream artifacts.", "upstreams", len(rc.Inputs))

	ids := make([]string, 0, len(rc.Inputs))
	for id := range rc.Inputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		outs := rc.Inputs[id]
		fmt.Fprintf(c.out, "%s\n", id)
		if len(outs) == 0 {
			fmt.Fprintln(c.out, "      (no artifacts)")
			continue
		}

		names := make([]string, 0, len(outs))
		for name := range outs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(c.out, "      %s = %q\n", name, outs[name])
		}

		if dir, ok := outs[transformGraph]; ok {
			stats, err := analyzer.Load(filepath.Join(dir, c.input.StatisticsFile))
			if err != nil {
				return nil, err
			}
			c.printStatistics(stats)
		}
	}
	return pipeline.Outputs{}, nil
}

// Cacheable is false: printing is the component's only effect, so it runs on
// every pipeline run.
func (c *Component) Cacheable() bool { return false }

func (c *Component) printStatistics(stats *analyzer.Statistics) {
	fmt.Fprintf(c.out, "      examples = %d\n", stats.NumExamples)

	names := make([]string, 0, len(stats.Vocabularies))
	for name := range stats.Vocabularies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := stats.Vocabularies[name]
		fmt.Fprintf(c.out, "      %s: top_k=%d oov=%d\n", name, v.TopK, v.OOVIndex())
		for _, t := range v.Terms {
			fmt.Fprintf(c.out, "        [%d] %q x%d\n", v.Index(t.Value), t.Value, t.Count)
		}
	}

	names = names[:0]
	for name := range stats.Ranges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := stats.Ranges[name]
		fmt.Fprintf(c.out, "      %s: [%g, %g]\n", name, r.Min, r.Max)
	}
}

// Register registers the component type with the registry.
func (m *Module) Register(r *registry.Registry) {
	out := m.Out
	if out == nil {
		out = os.Stdout
	}
	r.RegisterComponent(TypeName, &registry.RegisteredComponent{
		NewInput: func() any { return new(Input) },
		New: func(meta pipeline.Meta, _ *registry.Definition, input any) (pipeline.Component, error) {
			in := *input.(*Input)
			if in.StatisticsFile == "" {
				in.StatisticsFile = "statistics.yaml"
			}
			return &Component{Meta: meta, input: in, out: out}, nil
		},
	})
}
