// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package feature declares which raw columns a pipeline consumes and how they
// are named after transformation.
//
// A Spec is built once and never mutated. It is passed explicitly into the
// analyzer and the transform instead of living in package-level variables, so
// the output of a transform is fully determined by its arguments.
//
// The package also defines the batch shapes that flow between components:
// Batch holds raw string columns, Transformed holds the typed Tensor produced
// for every declared key.
package feature
