// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package analyzer implements the analyze half of the analyze-then-transform
// contract. It makes a full pass over the dataset and freezes the statistics
// that every later per-batch transform depends on:
//
//   - a frequency-ranked vocabulary per categorical feature, and
//   - the observed minimum and maximum per numerical feature.
//
// Accumulators are mergeable, so partial passes computed by concurrent
// workers combine into the same result as a single sequential pass.
// Statistics are read-only after Finalize.
package analyzer
