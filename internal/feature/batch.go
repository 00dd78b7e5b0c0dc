// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package feature

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ErrMissingFeature is returned when a batch lacks a key the spec declares.
var ErrMissingFeature = errors.New("missing feature")

// Batch maps a raw feature name to the raw values of one batch.
type Batch map[string][]string

// Len returns the number of rows in the batch. Columns of unequal length are
// an error; an empty batch has length zero.
func (b Batch) Len() (int, error) {
	n := -1
	for _, key := range b.sortedKeys() {
		col := b[key]
		if n == -1 {
			n = len(col)
			continue
		}
		if len(col) != n {
			return 0, fmt.Errorf("ragged batch: column '%s' has %d rows, expected %d", key, len(col), n)
		}
	}
	if n == -1 {
		return 0, nil
	}
	return n, nil
}

// Column returns the values for key or ErrMissingFeature.
func (b Batch) Column(key string) ([]string, error) {
	col, ok := b[key]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrMissingFeature, key)
	}
	return col, nil
}

func (b Batch) sortedKeys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Kind tells which field of a Tensor holds data.
type Kind int

const (
	// OneHot tensors are rows x (dim+1) matrices.
	OneHot Kind = iota
	// Scaled tensors hold one float per row in [0,1].
	Scaled
	// Int64 tensors hold one integer per row.
	Int64
)

func (k Kind) String() string {
	switch k {
	case OneHot:
		return "one_hot"
	case Scaled:
		return "scaled"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Tensor is one transformed column.
type Tensor struct {
	Kind   Kind
	Dense  *mat.Dense
	Floats []float64
	Ints   []int64
}

// Rows returns the number of examples in the tensor.
func (t Tensor) Rows() int {
	switch t.Kind {
	case OneHot:
		if t.Dense == nil {
			return 0
		}
		r, _ := t.Dense.Dims()
		return r
	case Scaled:
		return len(t.Floats)
	default:
		return len(t.Ints)
	}
}

// Row returns example i as a plain value: []float64 for one-hot rows,
// float64 for scaled values and int64 for integers.
func (t Tensor) Row(i int) any {
	switch t.Kind {
	case OneHot:
		return mat.Row(nil, i, t.Dense)
	case Scaled:
		return t.Floats[i]
	default:
		return t.Ints[i]
	}
}

// Transformed maps a transformed key to its tensor.
type Transformed map[string]Tensor

// Records splits a Transformed batch into one map per example, which is the
// shape written to transformed-example artifacts.
func (t Transformed) Records() []map[string]any {
	n := 0
	for _, tensor := range t {
		n = tensor.Rows()
		break
	}
	out := make([]map[string]any, n)
	for i := range out {
		rec := make(map[string]any, len(t))
		for key, tensor := range t {
			rec[key] = tensor.Row(i)
		}
		out[i] = rec
	}
	return out
}
