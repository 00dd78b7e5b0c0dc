// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package orchestrator executes a pipeline.Pipeline locally.
//
// Components form a Directed Acyclic Graph through their Upstream IDs. The
// executor seeds a ready channel with every component that has no upstream,
// then a pool of workers drains it. When a component succeeds, each dependent's
// atomic dependency counter is decremented and dependents that reach zero are
// queued. When a component fails, the run context is cancelled and every
// transitive dependent is marked skipped, so the run terminates with the first
// real failure as its error.
//
// Every execution is recorded in the metadata store. With caching enabled, a
// component whose fingerprint and upstream artifacts match a previous
// successful execution reuses that execution's artifacts instead of running.
package orchestrator
