// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package csvexamplegen ingests a headed CSV file into sharded example
// batches.
package csvexamplegen

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/specialistvlad/featuregrid/internal/artifact"
	"github.com/specialistvlad/featuregrid/internal/ctxlog"
	"github.com/specialistvlad/featuregrid/internal/feature"
	"github.com/specialistvlad/featuregrid/internal/pipeline"
	"github.com/specialistvlad/featuregrid/internal/registry"
)

// TypeName is the component type used in pipeline files.
const TypeName = "csv_example_gen"

// OutputExamples is the artifact holding the example shards.
const OutputExamples = "examples"

const defaultBatchSize = 256

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	InputPath string `hcl:"input_path"`
	BatchSize int    `hcl:"batch_size,optional"`
	Delimiter string `hcl:"delimiter,optional"`
}

// Component reads Input.InputPath and writes examples in batches.
type Component struct {
	pipeline.Meta
	input Input
}

// NewComponent validates input and applies defaults.
func NewComponent(meta pipeline.Meta, input Input) (*Component, error) {
	if input.InputPath == "" {
		return nil, fmt.Errorf("component '%s': input_path must not be empty", meta.Name)
	}
	if input.BatchSize < 0 {
		return nil, fmt.Errorf("component '%s': batch_size must be positive, got %d", meta.Name, input.BatchSize)
	}
	if input.BatchSize == 0 {
		input.BatchSize = defaultBatchSize
	}
	if input.Delimiter == "" {
		input.Delimiter = ","
	}
	if utf8.RuneCountInString(input.Delimiter) != 1 {
		return nil, fmt.Errorf("component '%s': delimiter must be a single character, got %q", meta.Name, input.Delimiter)
	}
	return &Component{Meta: meta, input: input}, nil
}

// Fingerprint mixes the source file's size and modification time into the
// configuration hash, so editing the CSV invalidates cached examples.
func (c *Component) Fingerprint() string {
	info, err := os.Stat(c.input.InputPath)
	if err != nil {
		return c.Meta.Fingerprint()
	}
	return fmt.Sprintf("%s:%d:%d", c.Meta.Fingerprint(), info.Size(), info.ModTime().UnixNano())
}

// Run streams the CSV into shards of at most BatchSize rows.
func (c *Component) Run(ctx context.Context, rc *pipeline.RunContext) (pipeline.Outputs, error) {
	logger := ctxlog.FromContext(ctx).With("input_path", c.input.InputPath)

	f, err := os.Open(c.input.InputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input CSV '%s': %w", c.input.InputPath, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma, _ = utf8.DecodeRuneInString(c.input.Delimiter)
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	header, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read header of '%s': %w", c.input.InputPath, err)
	}

	outDir := filepath.Join(rc.OutputDir, OutputExamples)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create examples directory: %w", err)
	}

	batch := newBatch(header, c.input.BatchSize)
	shards, rows := 0, 0
	flush := func() error {
		if len(batch[header[0]]) == 0 {
			return nil
		}
		if err := artifact.WriteBatch(artifact.ShardPath(outDir, OutputExamples, shards), batch); err != nil {
			return err
		}
		shards++
		batch = newBatch(header, c.input.BatchSize)
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read '%s': %w", c.input.InputPath, err)
		}
		for i, key := range header {
			batch[key] = append(batch[key], record[i])
		}
		rows++
		if rows%c.input.BatchSize == 0 {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	logger.Info("Examples generated.", "rows", rows, "shards", shards, "columns", len(header))
	return pipeline.Outputs{OutputExamples: outDir}, nil
}

func readHeader(r *csv.Reader) ([]string, error) {
	record, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("file is empty")
	}
	if err != nil {
		return nil, err
	}

	header := make([]string, len(record))
	seen := make(map[string]struct{}, len(record))
	for i, name := range record {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate column '%s'", name)
		}
		seen[name] = struct{}{}
		header[i] = name
	}
	return header, nil
}

func newBatch(header []string, size int) feature.Batch {
	b := make(feature.Batch, len(header))
	for _, key := range header {
		b[key] = make([]string, 0, size)
	}
	return b
}

// Register registers the component type with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterComponent(TypeName, &registry.RegisteredComponent{
		NewInput: func() any { return new(Input) },
		New: func(meta pipeline.Meta, _ *registry.Definition, input any) (pipeline.Component, error) {
			return NewComponent(meta, *input.(*Input))
		},
	})
}
