// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/specialistvlad/featuregrid/internal/ctxlog"
	"github.com/specialistvlad/featuregrid/internal/metadata"
	"github.com/specialistvlad/featuregrid/internal/metrics"
	"github.com/specialistvlad/featuregrid/internal/pipeline"
)

// Result summarises a finished run.
type Result struct {
	RunID string
	// Outputs holds the artifacts of every component that succeeded.
	Outputs map[string]pipeline.Outputs
	// Cached lists the components served from cache, in graph order.
	Cached []string
}

// Executor runs one pipeline against one metadata store.
type Executor struct {
	pipeline   *pipeline.Pipeline
	store      *metadata.Store
	graph      *Graph
	numWorkers int
	runID      string
	wg         sync.WaitGroup
}

// Run opens the pipeline's metadata store and executes the pipeline once.
func Run(ctx context.Context, p *pipeline.Pipeline) (*Result, error) {
	store, err := metadata.Open(ctx, p.Metadata)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	exec, err := New(p, store)
	if err != nil {
		return nil, err
	}
	return exec.Run(ctx)
}

// New builds the component graph of p. The graph is single-use.
func New(p *pipeline.Pipeline, store *metadata.Store) (*Executor, error) {
	g, err := Build(p.Components)
	if err != nil {
		return nil, fmt.Errorf("failed to build component graph: %w", err)
	}

	workers := p.Execution.Workers()
	if workers > g.Len() {
		workers = g.Len()
	}
	if workers < 1 {
		workers = 1
	}

	return &Executor{
		pipeline:   p,
		store:      store,
		graph:      g,
		numWorkers: workers,
	}, nil
}

// Run executes every component and returns an error if any of them failed.
// It respects cancellation of ctx.
func (e *Executor) Run(ctx context.Context) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("pipeline", e.pipeline.Name)
	ctx = ctxlog.WithLogger(ctx, logger)

	if e.graph.Len() == 0 {
		logger.Warn("No components found in pipeline, execution not required.")
		return &Result{Outputs: map[string]pipeline.Outputs{}}, nil
	}

	runID, err := e.store.BeginRun(ctx, e.pipeline.Name)
	if err != nil {
		return nil, err
	}
	e.runID = runID
	logger = logger.With("run_id", runID)
	ctx = ctxlog.WithLogger(ctx, logger)

	readyChan := make(chan *node, e.graph.Len())
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.wg.Add(e.graph.Len())
	rootCount := 0
	for _, n := range e.graph.nodes {
		if n.depCount.Load() == 0 {
			logger.Debug("Found root component.", "component", n.id())
			readyChan <- n
			rootCount++
		}
	}

	logger.Info("🚀 Starting pipeline run.", "components", e.graph.Len(), "roots", rootCount, "workers", e.numWorkers, "args", e.pipeline.Execution.Args())
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}

	e.wg.Wait()
	close(readyChan)

	result := &Result{RunID: runID, Outputs: make(map[string]pipeline.Outputs)}
	var failed []string
	var rootCause error
	for _, n := range e.graph.nodes {
		switch n.getState() {
		case Done:
			result.Outputs[n.id()] = n.outputs
			if n.cached {
				result.Cached = append(result.Cached, n.id())
			}
		case Failed:
			failed = append(failed, n.id())
			if rootCause == nil || errors.Is(rootCause, context.Canceled) {
				rootCause = n.err
			}
		case Skipped:
			e.recordSkipped(ctx, n)
		}
	}

	status := metadata.StatusSucceeded
	if len(failed) > 0 || ctx.Err() != nil {
		status = metadata.StatusFailed
	}
	if err := e.store.FinishRun(context.WithoutCancel(ctx), runID, status); err != nil {
		logger.Error("Failed to record run status.", "error", err)
	}

	if rootCause == nil && ctx.Err() != nil {
		rootCause = ctx.Err()
	}
	if rootCause != nil && len(failed) == 0 {
		return result, fmt.Errorf("pipeline run interrupted: %w", rootCause)
	}
	if rootCause != nil {
		return result, fmt.Errorf("execution failed for %s: %w", strings.Join(failed, ", "), rootCause)
	}

	logger.Info("🏁 Pipeline run finished.", "cached", len(result.Cached))
	return result, nil
}

// worker is the processing loop of one concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		workerLogger := logger.With("workerID", workerID, "component", n.id())

		if ctx.Err() != nil {
			workerLogger.Warn("Context canceled, skipping component.")
			e.skip(ctx, n, ctx.Err())
			continue
		}

		n.setState(Running)
		metrics.WorkersBusy.Inc()
		err := e.execute(ctxlog.WithLogger(ctx, workerLogger), n)
		metrics.WorkersBusy.Dec()

		if err != nil {
			workerLogger.Error("Component failed.", "error", err)
			n.err = err
			n.setState(Failed)
			cancel()
			e.skipDependents(ctx, n)
			e.wg.Done()
			continue
		}

		n.setState(Done)
		for _, dependent := range n.dependents {
			if dependent.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent component.", "dependent", dependent.id())
				readyChan <- dependent
			}
		}
		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// skip marks n skipped exactly once, together with everything downstream.
func (e *Executor) skip(ctx context.Context, n *node, cause error) {
	n.skipOnce.Do(func() {
		n.err = cause
		n.setState(Skipped)
		e.wg.Done()
		e.skipDependents(ctx, n)
	})
}

// skipDependents recursively marks all downstream nodes as skipped.
func (e *Executor) skipDependents(ctx context.Context, n *node) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range n.dependents {
		logger.Debug("Skipping dependent component due to upstream failure.", "component", dependent.id(), "upstream", n.id())
		e.skip(ctx, dependent, fmt.Errorf("skipped due to upstream failure of '%s'", n.id()))
	}
}

// execute runs one component, or reuses a cached execution of it.
func (e *Executor) execute(ctx context.Context, n *node) error {
	logger := ctxlog.FromContext(ctx)
	c := n.component

	inputs := make(map[string]pipeline.Outputs, len(n.deps))
	for _, dep := range n.deps {
		inputs[dep.id()] = dep.outputs
	}
	fp := fingerprint(c, inputs)
	started := time.Now()

	if e.pipeline.EnableCache && pipeline.IsCacheable(c) {
		outs, hit, err := e.lookupCache(ctx, c, fp)
		if err != nil {
			return err
		}
		if hit {
			logger.Info("♻️ Reusing cached component outputs.", "fingerprint", fp[:12])
			n.outputs = outs
			n.cached = true
			e.record(ctx, c, fp, metadata.StatusCached, started, outs, nil)
			return nil
		}
	}

	outputDir := filepath.Join(e.pipeline.Root, c.ID(), e.runID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory for '%s': %w", c.ID(), err)
	}

	logger.Info("▶️ Running component.", "type", c.Type())
	outs, err := c.Run(ctx, &pipeline.RunContext{
		Pipeline:  e.pipeline.Name,
		RunID:     e.runID,
		Root:      e.pipeline.Root,
		OutputDir: outputDir,
		Inputs:    inputs,
		Workers:   e.pipeline.Execution.Workers(),
	})
	if err != nil {
		e.record(ctx, c, fp, metadata.StatusFailed, started, nil, err)
		return err
	}
	if outs == nil {
		outs = pipeline.Outputs{}
	}
	n.outputs = outs
	e.record(ctx, c, fp, metadata.StatusSucceeded, started, outs, nil)
	logger.Info("✅ Component finished.", "duration", time.Since(started).String(), "artifacts", len(outs))
	return nil
}

// record writes an execution to the metadata store. Failing to record is
// logged rather than failing the component.
func (e *Executor) record(ctx context.Context, c pipeline.Component, fp string, status metadata.Status, started time.Time, outs pipeline.Outputs, runErr error) {
	finished := time.Now()
	metrics.ComponentExecutions.WithLabelValues(c.ID(), string(status)).Inc()
	metrics.ComponentDuration.WithLabelValues(c.ID()).Observe(finished.Sub(started).Seconds())

	exec := metadata.Execution{
		RunID:       e.runID,
		Pipeline:    e.pipeline.Name,
		Component:   c.ID(),
		Fingerprint: fp,
		Status:      status,
		StartedAt:   started,
		FinishedAt:  finished,
	}
	if runErr != nil {
		exec.Error = runErr.Error()
	}
	if _, err := e.store.RecordExecution(context.WithoutCancel(ctx), exec, toArtifacts(outs)); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to record execution.", "component", c.ID(), "error", err)
	}
}

func (e *Executor) recordSkipped(ctx context.Context, n *node) {
	now := time.Now()
	c := n.component
	metrics.ComponentExecutions.WithLabelValues(c.ID(), string(metadata.StatusSkipped)).Inc()
	exec := metadata.Execution{
		RunID:      e.runID,
		Pipeline:   e.pipeline.Name,
		Component:  c.ID(),
		Status:     metadata.StatusSkipped,
		StartedAt:  now,
		FinishedAt: now,
	}
	if n.err != nil {
		exec.Error = n.err.Error()
	}
	if _, err := e.store.RecordExecution(context.WithoutCancel(ctx), exec, nil); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to record skipped execution.", "component", c.ID(), "error", err)
	}
}
