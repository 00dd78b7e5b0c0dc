// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package transform applies frozen analyzer statistics to raw batches. It is
// the per-batch half of the analyze-then-transform contract: nothing here
// looks at more than one batch, and nothing here mutates shared state.
package transform

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/specialistvlad/featuregrid/internal/analyzer"
	"github.com/specialistvlad/featuregrid/internal/feature"
	"gonum.org/v1/gonum/mat"
)

// ErrMissingStatistics is returned when the statistics do not cover a
// feature that the spec declares.
var ErrMissingStatistics = errors.New("missing statistics")

// Preprocess maps a raw batch to its transformed representation.
//
// Categorical features become one-hot rows of width dim+1, numerical features
// are min-max scaled into [0,1] using dataset-global ranges, and the label is
// truncated to int64. Keys not declared by spec are ignored; declared keys
// that are absent are an error wrapping feature.ErrMissingFeature.
func Preprocess(spec feature.Spec, stats *analyzer.Statistics, batch feature.Batch) (feature.Transformed, error) {
	if stats == nil {
		return nil, fmt.Errorf("%w: statistics are nil", ErrMissingStatistics)
	}
	if _, err := declaredLen(spec, batch); err != nil {
		return nil, err
	}

	out := make(feature.Transformed, len(spec.Keys()))

	for _, c := range spec.Categorical() {
		vocab, ok := stats.Vocabularies[c.Name]
		if !ok {
			return nil, fmt.Errorf("%w: no vocabulary for '%s'", ErrMissingStatistics, c.Name)
		}
		if vocab.TopK != c.Dim {
			return nil, fmt.Errorf("vocabulary for '%s' has top_k %d but the feature declares dim %d", c.Name, vocab.TopK, c.Dim)
		}
		out[spec.TransformedName(c.Name)] = feature.Tensor{
			Kind:  feature.OneHot,
			Dense: OneHot(vocab, batch[c.Name]),
		}
	}

	for _, name := range spec.Numerical() {
		r, ok := stats.Ranges[name]
		if !ok {
			return nil, fmt.Errorf("%w: no range for '%s'", ErrMissingStatistics, name)
		}
		values, err := analyzer.ParseColumn(name, batch[name])
		if err != nil {
			return nil, err
		}
		out[spec.TransformedName(name)] = feature.Tensor{
			Kind:   feature.Scaled,
			Floats: ScaleTo01(values, r),
		}
	}

	labels, err := CastInt64(spec.Label(), batch[spec.Label()])
	if err != nil {
		return nil, err
	}
	out[spec.TransformedName(spec.Label())] = feature.Tensor{Kind: feature.Int64, Ints: labels}

	return out, nil
}

// declaredLen checks that every declared key exists and that the declared
// columns agree on length. Undeclared columns are not inspected.
func declaredLen(spec feature.Spec, batch feature.Batch) (int, error) {
	rows := -1
	for _, key := range spec.Keys() {
		col, err := batch.Column(key)
		if err != nil {
			return 0, err
		}
		if rows == -1 {
			rows = len(col)
		} else if len(col) != rows {
			return 0, fmt.Errorf("ragged batch: column '%s' has %d rows, expected %d", key, len(col), rows)
		}
	}
	return rows, nil
}

// OneHot encodes values against vocab into a len(values) x vocab.Size()
// matrix.
func OneHot(vocab *analyzer.Vocabulary, values []string) *mat.Dense {
	rows := len(values)
	if rows == 0 {
		return &mat.Dense{}
	}
	width := vocab.Size()
	data := make([]float64, rows*width)
	for i, v := range values {
		data[i*width+vocab.Index(v)] = 1
	}
	return mat.NewDense(rows, width, data)
}

// ScaleTo01 rescales values into [0,1] using r. Values outside the analyzed
// range are clipped. A degenerate range maps everything to the midpoint.
func ScaleTo01(values []float64, r analyzer.Range) []float64 {
	out := make([]float64, len(values))
	span := r.Max - r.Min
	for i, x := range values {
		if span <= 0 {
			out[i] = 0.5
			continue
		}
		out[i] = math.Min(1, math.Max(0, (x-r.Min)/span))
	}
	return out
}

// CastInt64 parses label values and truncates them toward zero.
func CastInt64(name string, col []string) ([]int64, error) {
	out := make([]int64, len(col))
	for i, raw := range col {
		s := strings.TrimSpace(raw)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			out[i] = n
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("feature '%s' row %d: cannot cast %q to int64", name, i, raw)
		}
		out[i] = int64(f)
	}
	return out, nil
}

// Transformer binds a spec to frozen statistics. It holds no mutable state
// and may be shared between goroutines.
type Transformer struct {
	spec  feature.Spec
	stats *analyzer.Statistics
}

// New returns a Transformer for spec and stats. It fails early when the
// statistics do not cover every declared feature.
func New(spec feature.Spec, stats *analyzer.Statistics) (*Transformer, error) {
	if stats == nil {
		return nil, fmt.Errorf("%w: statistics are nil", ErrMissingStatistics)
	}
	for _, c := range spec.Categorical() {
		if _, ok := stats.Vocabularies[c.Name]; !ok {
			return nil, fmt.Errorf("%w: no vocabulary for '%s'", ErrMissingStatistics, c.Name)
		}
	}
	for _, name := range spec.Numerical() {
		if _, ok := stats.Ranges[name]; !ok {
			return nil, fmt.Errorf("%w: no range for '%s'", ErrMissingStatistics, name)
		}
	}
	return &Transformer{spec: spec, stats: stats}, nil
}

// Spec returns the spec the transformer was built with.
func (t *Transformer) Spec() feature.Spec { return t.spec }

// Transform runs Preprocess with the bound spec and statistics.
func (t *Transformer) Transform(batch feature.Batch) (feature.Transformed, error) {
	return Preprocess(t.spec, t.stats, batch)
}
