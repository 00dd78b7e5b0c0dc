// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/specialistvlad/featuregrid/internal/config"
	"github.com/specialistvlad/featuregrid/internal/ctxlog"
	"github.com/specialistvlad/featuregrid/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	registry   *registry.Registry
	config     *Config
	model      *config.Model
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// With no modules given, the core modules are registered.
func NewApp(outW io.Writer, appConfig *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if appConfig.EnvFile != "" {
		if err := godotenv.Load(appConfig.EnvFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", appConfig.EnvFile, err)
		}
		logger.Debug("Environment file loaded.", "path", appConfig.EnvFile)
	}

	model, err := config.NewLoader().Load(ctx, appConfig.PipelinePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Debug("Configuration loaded.", "pipeline", model.Pipeline.Name)

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules), "types", reg.Types())

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		config:   appConfig,
		model:    model,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}
