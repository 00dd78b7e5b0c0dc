// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package cli

import (
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/featuregrid/internal/app"
	"github.com/spf13/cobra"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	if args == nil {
		args = []string{}
	}

	var (
		cfg             *app.Config
		pipelineFlag    string
		envFile         string
		logFormat       string
		logLevel        string
		healthcheckPort int
		workers         int
		noCache         bool
	)

	cmd := &cobra.Command{
		Use:   "featuregrid [flags] [PIPELINE_PATH]",
		Short: "featuregrid - a declarative feature engineering pipeline runner.",
		Long: `featuregrid runs an HCL-defined feature pipeline: example generation,
dataset-wide analysis, per-batch transformation and optional export, with
executions and artifacts recorded in an embedded metadata store.

PIPELINE_PATH is a single .hcl file or a directory containing .hcl files.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			path := pipelineFlag
			if path == "" && len(posArgs) > 0 {
				path = posArgs[0]
			}
			slog.Debug("Pipeline path determined.", "path", path)
			if path == "" {
				slog.Debug("No pipeline path provided, printing usage and exiting.")
				return cmd.Usage()
			}

			format := strings.ToLower(logFormat)
			if format != "text" && format != "json" {
				return &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
			}

			level := strings.ToLower(logLevel)
			switch level {
			case "debug", "info", "warn", "error":
				// valid
			default:
				return &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
			}
			slog.Debug("CLI parameter validation complete.")

			c, err := app.NewConfig(app.Config{
				PipelinePath:    path,
				EnvFile:         envFile,
				LogFormat:       format,
				LogLevel:        level,
				HealthcheckPort: healthcheckPort,
				WorkerCount:     workers,
				DisableCache:    noCache,
			})
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			cfg = c
			return nil
		},
	}
	cmd.SetArgs(args)
	cmd.SetOut(output)
	cmd.SetErr(output)

	flags := cmd.Flags()
	flags.StringVarP(&pipelineFlag, "pipeline", "p", "", "Path to the pipeline file or directory.")
	flags.StringVar(&envFile, "env-file", "", "Optional .env file loaded before the pipeline is parsed.")
	flags.StringVar(&logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flags.StringVar(&logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.IntVar(&healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	flags.IntVar(&workers, "workers", 0, "Number of concurrent workers. 0 lets the engine choose.")
	flags.BoolVar(&noCache, "no-cache", false, "Run every component even if a cached execution exists.")

	if err := cmd.Execute(); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			return nil, false, exitErr
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if cfg == nil {
		// Help was requested or no pipeline path was given.
		return nil, true, nil
	}
	slog.Debug("CLI parser finished successfully.", "config", cfg)
	return cfg, false, nil
}
