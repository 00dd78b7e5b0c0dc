// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package analyzer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/specialistvlad/featuregrid/internal/feature"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// ErrNonFinite is returned for numerical values that parse to NaN or an
// infinity. They have no place in a min-max range.
var ErrNonFinite = errors.New("non-finite numerical value")

// Accumulator collects dataset-global counts and ranges. It is not safe for
// concurrent use; give each worker its own and Merge them afterwards.
type Accumulator struct {
	spec   feature.Spec
	rows   int64
	counts map[string]map[string]int64
	ranges map[string]Range
}

// NewAccumulator returns an empty accumulator for spec.
func NewAccumulator(spec feature.Spec) *Accumulator {
	a := &Accumulator{
		spec:   spec,
		counts: make(map[string]map[string]int64),
		ranges: make(map[string]Range),
	}
	for _, c := range spec.Categorical() {
		a.counts[c.Name] = make(map[string]int64)
	}
	for _, name := range spec.Numerical() {
		a.ranges[name] = Range{Min: math.Inf(1), Max: math.Inf(-1)}
	}
	return a
}

// Rows returns the number of examples seen so far.
func (a *Accumulator) Rows() int64 { return a.rows }

// Add folds one raw batch into the accumulator. Every column is parsed before
// anything is applied, so a failed Add leaves the accumulator unchanged.
func (a *Accumulator) Add(b feature.Batch) error {
	n, err := b.Len()
	if err != nil {
		return err
	}

	categorical := a.spec.Categorical()
	cols := make([][]string, len(categorical))
	for i, c := range categorical {
		if cols[i], err = b.Column(c.Name); err != nil {
			return err
		}
	}

	numerical := a.spec.Numerical()
	parsed := make([][]float64, len(numerical))
	for i, name := range numerical {
		col, err := b.Column(name)
		if err != nil {
			return err
		}
		if parsed[i], err = ParseColumn(name, col); err != nil {
			return err
		}
	}

	for i, c := range categorical {
		counts := a.counts[c.Name]
		for _, v := range cols[i] {
			counts[v]++
		}
	}
	for i, name := range numerical {
		values := parsed[i]
		if len(values) == 0 {
			continue
		}
		r := a.ranges[name]
		r.Min = math.Min(r.Min, floats.Min(values))
		r.Max = math.Max(r.Max, floats.Max(values))
		r.Count += int64(len(values))
		a.ranges[name] = r
	}

	a.rows += int64(n)
	return nil
}

// Merge folds other into a. Both must have been built from the same spec.
func (a *Accumulator) Merge(other *Accumulator) {
	a.rows += other.rows
	for name, counts := range other.counts {
		dst, ok := a.counts[name]
		if !ok {
			dst = make(map[string]int64, len(counts))
			a.counts[name] = dst
		}
		for v, n := range counts {
			dst[v] += n
		}
	}
	for name, r := range other.ranges {
		cur, ok := a.ranges[name]
		if !ok {
			a.ranges[name] = r
			continue
		}
		cur.Min = math.Min(cur.Min, r.Min)
		cur.Max = math.Max(cur.Max, r.Max)
		cur.Count += r.Count
		a.ranges[name] = cur
	}
}

// Finalize freezes the accumulated counts into Statistics. Vocabularies are
// ranked concurrently, one goroutine per categorical feature.
func (a *Accumulator) Finalize() (*Statistics, error) {
	categorical := a.spec.Categorical()
	vocabs := make([]*Vocabulary, len(categorical))

	var g errgroup.Group
	for i, c := range categorical {
		g.Go(func() error {
			counts, ok := a.counts[c.Name]
			if !ok {
				return fmt.Errorf("no counts accumulated for categorical feature '%s'", c.Name)
			}
			vocabs[i] = NewVocabulary(c.Dim, counts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &Statistics{
		NumExamples:  a.rows,
		Vocabularies: make(map[string]*Vocabulary, len(categorical)),
		Ranges:       make(map[string]Range, len(a.ranges)),
	}
	for i, c := range categorical {
		stats.Vocabularies[c.Name] = vocabs[i]
	}
	for _, name := range a.spec.Numerical() {
		r := a.ranges[name]
		if r.Count == 0 {
			r.Min, r.Max = 0, 0
		}
		stats.Ranges[name] = r
	}
	return stats, nil
}

// ParseColumn converts raw numerical values to float64. Surrounding spaces are
// ignored. Values that do not parse, and NaN or infinities, are errors naming
// the row.
func ParseColumn(name string, col []string) ([]float64, error) {
	out := make([]float64, len(col))
	for i, raw := range col {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("feature '%s' row %d: %w", name, i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("feature '%s' row %d: %w: %q", name, i, ErrNonFinite, raw)
		}
		out[i] = v
	}
	return out, nil
}
