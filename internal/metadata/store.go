// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package metadata records pipeline runs, component executions and the
// artifacts they produced. The store is an embedded DuckDB database addressed
// by a file path, so a pipeline's lineage lives next to its outputs.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
)

// ConnectionConfig points the store at its backing database.
type ConnectionConfig struct {
	// Path is the database file. Empty means a private in-memory database.
	Path string
}

// FileConnectionConfig returns a config for a file-backed store at path.
func FileConnectionConfig(path string) ConnectionConfig {
	return ConnectionConfig{Path: path}
}

// Status is the lifecycle state of a run or execution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCached    Status = "cached"
	StatusSkipped   Status = "skipped"
)

// Execution is one run of one component.
type Execution struct {
	ID          int64
	RunID       string
	Pipeline    string
	Component   string
	Fingerprint string
	Status      Status
	StartedAt   time.Time
	FinishedAt  time.Time
	Error       string
}

// Artifact is a named output of an execution.
type Artifact struct {
	Name string
	URI  string
}

// Store is a handle on the metadata database. It is safe for concurrent use.
type Store struct {
	db *sql.DB
	// writes serialises inserts; DuckDB allows one writer per table at a time.
	writes sync.Mutex
}

var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS execution_ids START 1`,
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		run_id      VARCHAR PRIMARY KEY,
		pipeline    VARCHAR NOT NULL,
		status      VARCHAR NOT NULL,
		started_at  TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS executions (
		execution_id BIGINT PRIMARY KEY DEFAULT nextval('execution_ids'),
		run_id       VARCHAR NOT NULL,
		pipeline     VARCHAR NOT NULL,
		component    VARCHAR NOT NULL,
		fingerprint  VARCHAR NOT NULL,
		status       VARCHAR NOT NULL,
		started_at   TIMESTAMP NOT NULL,
		finished_at  TIMESTAMP NOT NULL,
		error        VARCHAR NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		execution_id BIGINT NOT NULL,
		name         VARCHAR NOT NULL,
		uri          VARCHAR NOT NULL
	)`,
}

// Open connects to the database described by cfg and creates missing tables.
func Open(ctx context.Context, cfg ConnectionConfig) (*Store, error) {
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create metadata directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store %q: %w", cfg.Path, err)
	}
	// An in-memory DuckDB database is private to its connection.
	if cfg.Path == "" {
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate metadata store: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun registers a new run of pipeline and returns its ID.
func (s *Store) BeginRun(ctx context.Context, pipeline string) (string, error) {
	s.writes.Lock()
	defer s.writes.Unlock()

	runID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (run_id, pipeline, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, pipeline, string(StatusRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record run of %s: %w", pipeline, err)
	}
	return runID, nil
}

// FinishRun stamps the final status of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, status Status) error {
	s.writes.Lock()
	defer s.writes.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, finished_at = ? WHERE run_id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// RunStatus returns the recorded status of a run.
func (s *Store) RunStatus(ctx context.Context, runID string) (Status, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM pipeline_runs WHERE run_id = ?`, runID).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	return Status(status), nil
}

// RecordExecution stores e and its artifacts in one transaction and returns
// the assigned execution ID.
func (s *Store) RecordExecution(ctx context.Context, e Execution, artifacts []Artifact) (int64, error) {
	s.writes.Lock()
	defer s.writes.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin metadata transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO executions (run_id, pipeline, component, fingerprint, status, started_at, finished_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING execution_id`,
		e.RunID, e.Pipeline, e.Component, e.Fingerprint, string(e.Status),
		e.StartedAt.UTC(), e.FinishedAt.UTC(), e.Error,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record execution of %s: %w", e.Component, err)
	}

	for _, a := range artifacts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO artifacts (execution_id, name, uri) VALUES (?, ?, ?)`,
			id, a.Name, a.URI,
		); err != nil {
			return 0, fmt.Errorf("failed to record artifact %s of %s: %w", a.Name, e.Component, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit execution of %s: %w", e.Component, err)
	}
	return id, nil
}

// CachedExecution finds the latest successful execution of component with
// the given fingerprint. The boolean is false when there is none.
func (s *Store) CachedExecution(ctx context.Context, pipeline, component, fingerprint string) (*Execution, []Artifact, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT execution_id, run_id, status, started_at, finished_at
		 FROM executions
		 WHERE pipeline = ? AND component = ? AND fingerprint = ? AND status IN (?, ?)
		 ORDER BY execution_id DESC LIMIT 1`,
		pipeline, component, fingerprint, string(StatusSucceeded), string(StatusCached),
	)

	e := Execution{Pipeline: pipeline, Component: component, Fingerprint: fingerprint}
	var status string
	if err := row.Scan(&e.ID, &e.RunID, &status, &e.StartedAt, &e.FinishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, false, nil
		}
		return nil, nil, false, fmt.Errorf("failed to look up cached execution of %s: %w", component, err)
	}
	e.Status = Status(status)

	artifacts, err := s.Artifacts(ctx, e.ID)
	if err != nil {
		return nil, nil, false, err
	}
	return &e, artifacts, true, nil
}

// Artifacts lists the artifacts of an execution, ordered by name.
func (s *Store) Artifacts(ctx context.Context, executionID int64) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, uri FROM artifacts WHERE execution_id = ? ORDER BY name`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts of execution %d: %w", executionID, err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.Name, &a.URI); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Executions lists the executions of a run in insertion order.
func (s *Store) Executions(ctx context.Context, runID string) ([]Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT execution_id, run_id, pipeline, component, fingerprint, status, started_at, finished_at, error
		 FROM executions WHERE run_id = ? ORDER BY execution_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var e Execution
		var status string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Pipeline, &e.Component, &e.Fingerprint, &status, &e.StartedAt, &e.FinishedAt, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		e.Status = Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}
