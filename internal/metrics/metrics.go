// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ComponentExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "featuregrid_component_executions_total",
		Help: "Component executions by component and final status.",
	}, []string{"component", "status"})

	ComponentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "featuregrid_component_duration_seconds",
		Help:    "Wall time of component executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"component"})

	WorkersBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "featuregrid_orchestrator_workers_busy",
		Help: "Orchestrator workers currently running a component.",
	})

	BatchesAnalyzed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "featuregrid_transform_batches_analyzed_total",
		Help: "Raw batches folded into analyzer statistics.",
	})

	BatchesTransformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "featuregrid_transform_batches_transformed_total",
		Help: "Batches written by the transform component.",
	})

	ExamplesTransformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "featuregrid_transform_examples_transformed_total",
		Help: "Examples written by the transform component.",
	})

	ExportUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "featuregrid_export_uploads_total",
		Help: "Artifact uploads by outcome.",
	}, []string{"result"})
)
