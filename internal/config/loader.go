// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/featuregrid/internal/ctxlog"
	"github.com/specialistvlad/featuregrid/internal/feature"
	"github.com/specialistvlad/featuregrid/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
)

// ErrNoDefinition is returned when the given paths hold no pipeline block.
var ErrNoDefinition = errors.New("no pipeline definition found")

// fileRoot is used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Pipelines  []*pipelineBlock  `hcl:"pipeline,block"`
	Features   []*featuresBlock  `hcl:"features,block"`
	Components []*componentBlock `hcl:"component,block"`
}

type pipelineBlock struct {
	Name         string `hcl:"name,label"`
	Root         string `hcl:"root"`
	MetadataPath string `hcl:"metadata_path"`
	EnableCache  *bool  `hcl:"enable_cache,optional"`
}

type featuresBlock struct {
	Label       string              `hcl:"label"`
	Numerical   []string            `hcl:"numerical,optional"`
	Suffix      string              `hcl:"suffix,optional"`
	Categorical []*categoricalBlock `hcl:"categorical,block"`
}

type categoricalBlock struct {
	Name string `hcl:"name,label"`
	Dim  int    `hcl:"dim"`
}

type componentBlock struct {
	Type      string          `hcl:"type,label"`
	Name      string          `hcl:"name,label"`
	DependsOn []string        `hcl:"depends_on,optional"`
	Arguments *argumentsBlock `hcl:"arguments,block"`
}

type argumentsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// Loader reads pipeline definitions from HCL files.
type Loader struct {
	// Environ supplies the env.NAME variables. Nil means os.Environ.
	Environ func() []string
}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{Environ: os.Environ}
}

// Load parses every .hcl file under paths and merges them into one Model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	var files []string
	seen := make(map[string]struct{})
	for _, path := range paths {
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if _, dup := seen[f]; !dup {
				seen[f] = struct{}{}
				files = append(files, f)
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDefinition, strings.Join(paths, ", "))
	}
	logger.Debug("Discovered HCL files.", "files", files)

	evalCtx := l.evalContext()
	parser := hclparse.NewParser()

	var pipelines []*pipelineBlock
	var features []*featuresBlock
	var components []*componentBlock
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		pipelines = append(pipelines, root.Pipelines...)
		features = append(features, root.Features...)
		components = append(components, root.Components...)
	}

	model := &Model{EvalCtx: evalCtx}

	switch len(pipelines) {
	case 0:
		return nil, fmt.Errorf("%w: no 'pipeline' block in %s", ErrNoDefinition, strings.Join(files, ", "))
	case 1:
		p := pipelines[0]
		model.Pipeline = Pipeline{Name: p.Name, Root: p.Root, MetadataPath: p.MetadataPath, EnableCache: p.EnableCache}
	default:
		return nil, fmt.Errorf("duplicate 'pipeline' block: '%s' and '%s'", pipelines[0].Name, pipelines[1].Name)
	}

	switch len(features) {
	case 0:
		model.Spec = feature.PersonalitySpec()
	case 1:
		spec, err := features[0].toSpec()
		if err != nil {
			return nil, fmt.Errorf("invalid 'features' block: %w", err)
		}
		model.Spec = spec
	default:
		return nil, fmt.Errorf("duplicate 'features' block: found %d", len(features))
	}

	names := make(map[string]string, len(components))
	for _, c := range components {
		if firstType, dup := names[c.Name]; dup {
			return nil, fmt.Errorf("duplicate component '%s' (declared as '%s' and '%s')", c.Name, firstType, c.Type)
		}
		names[c.Name] = c.Type

		comp := &Component{Type: c.Type, Name: c.Name, DependsOn: c.DependsOn}
		if c.Arguments != nil {
			comp.Arguments = c.Arguments.Body
		}
		model.Components = append(model.Components, comp)
	}

	logger.Debug("HCL loading complete.", "pipeline", model.Pipeline.Name, "components", len(model.Components))
	return model, nil
}

func (b *featuresBlock) toSpec() (feature.Spec, error) {
	categorical := make([]feature.Categorical, len(b.Categorical))
	for i, c := range b.Categorical {
		categorical[i] = feature.Categorical{Name: c.Name, Dim: c.Dim}
	}
	var opts []feature.Option
	if b.Suffix != "" {
		opts = append(opts, feature.WithSuffix(b.Suffix))
	}
	return feature.NewSpec(categorical, b.Numerical, b.Label, opts...)
}

// evalContext exposes the process environment as the `env` object.
func (l *Loader) evalContext() *hcl.EvalContext {
	environ := l.Environ
	if environ == nil {
		environ = os.Environ
	}
	vars := make(map[string]cty.Value)
	for _, kv := range environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vars[name] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(vars)},
	}
}
