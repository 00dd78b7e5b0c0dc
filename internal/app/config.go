// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string // hcl file or directory
	EnvFile      string // optional .env file seeding env.NAME variables

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	// WorkerCount overrides the engine's worker choice when positive.
	WorkerCount int
	// DisableCache forces every component to run.
	DisableCache bool
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	if cfg.WorkerCount < 0 {
		return nil, errors.New("WorkerCount must not be negative")
	}
	return &cfg, nil
}
