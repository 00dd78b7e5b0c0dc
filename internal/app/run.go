// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/featuregrid/internal/ctxlog"
	"github.com/specialistvlad/featuregrid/internal/orchestrator"
	"github.com/specialistvlad/featuregrid/internal/pipeline"
	"github.com/specialistvlad/featuregrid/internal/registry"
)

// Run builds the pipeline described by the loaded model and executes it.
func (a *App) Run(ctx context.Context) (*orchestrator.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		if err := a.startHealthcheckServer(a.config.HealthcheckPort); err != nil {
			return nil, err
		}
		defer a.closeHealthcheckServer()
	}

	p, err := a.Pipeline(ctx)
	if err != nil {
		return nil, err
	}

	result, err := orchestrator.Run(ctx, p)
	if err != nil {
		return result, fmt.Errorf("pipeline '%s' failed: %w", p.Name, err)
	}

	for _, c := range p.Components {
		for name, uri := range result.Outputs[c.ID()] {
			a.logger.Info("Artifact available.", "component", c.ID(), "artifact", name, "uri", uri)
		}
	}
	a.logger.Debug("App.Run method finished.")
	return result, nil
}

// Pipeline builds every declared component and initialises the pipeline,
// applying the overrides from the pipeline file and the command line.
func (a *App) Pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	components := make([]pipeline.Component, 0, len(a.model.Components))
	for _, c := range a.model.Components {
		comp, err := a.registry.Build(ctx, &registry.Definition{
			Type:      c.Type,
			Name:      c.Name,
			DependsOn: c.DependsOn,
			Arguments: c.Arguments,
			EvalCtx:   a.model.EvalCtx,
			Spec:      a.model.Spec,
		})
		if err != nil {
			return nil, err
		}
		components = append(components, comp)
	}

	settings := a.model.Pipeline
	p := pipeline.Init(ctx, settings.Root, settings.Name, settings.MetadataPath, components)
	if settings.EnableCache != nil {
		p.EnableCache = *settings.EnableCache
	}
	if a.config.DisableCache {
		p.EnableCache = false
	}
	if a.config.WorkerCount > 0 {
		p.Execution.NumWorkers = a.config.WorkerCount
	}
	return p, nil
}
