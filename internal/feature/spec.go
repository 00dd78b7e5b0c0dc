// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package feature

import (
	"errors"
	"fmt"
)

// DefaultSuffix is appended to every raw key to form its transformed key.
const DefaultSuffix = "_xf"

// ErrInvalidSpec is returned by NewSpec when the declaration is inconsistent.
var ErrInvalidSpec = errors.New("invalid feature spec")

// Categorical declares a categorical feature and its expected cardinality.
type Categorical struct {
	Name string
	Dim  int
}

// Spec is the immutable feature declaration for one pipeline.
type Spec struct {
	categorical []Categorical
	numerical   []string
	label       string
	suffix      string
}

// Option customises a Spec at construction time.
type Option func(*Spec)

// WithSuffix overrides DefaultSuffix.
func WithSuffix(suffix string) Option {
	return func(s *Spec) {
		s.suffix = suffix
	}
}

// NewSpec validates and builds a Spec. The slices are copied.
func NewSpec(categorical []Categorical, numerical []string, label string, opts ...Option) (Spec, error) {
	s := Spec{
		categorical: append([]Categorical(nil), categorical...),
		numerical:   append([]string(nil), numerical...),
		label:       label,
		suffix:      DefaultSuffix,
	}
	for _, opt := range opts {
		opt(&s)
	}

	if s.label == "" {
		return Spec{}, fmt.Errorf("%w: label key is required", ErrInvalidSpec)
	}
	if s.suffix == "" {
		return Spec{}, fmt.Errorf("%w: suffix must not be empty", ErrInvalidSpec)
	}

	seen := map[string]struct{}{s.label: {}}
	claim := func(name string) error {
		if name == "" {
			return fmt.Errorf("%w: feature name must not be empty", ErrInvalidSpec)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: feature '%s' declared more than once", ErrInvalidSpec, name)
		}
		seen[name] = struct{}{}
		return nil
	}

	for _, c := range s.categorical {
		if err := claim(c.Name); err != nil {
			return Spec{}, err
		}
		if c.Dim < 1 {
			return Spec{}, fmt.Errorf("%w: categorical feature '%s' has dim %d, must be at least 1", ErrInvalidSpec, c.Name, c.Dim)
		}
	}
	for _, name := range s.numerical {
		if err := claim(name); err != nil {
			return Spec{}, err
		}
	}

	return s, nil
}

// PersonalitySpec returns the feature declaration of the personality dataset.
func PersonalitySpec() Spec {
	s, err := NewSpec(
		[]Categorical{
			{Name: "Stage_fear", Dim: 2},
			{Name: "Drained_after_socializing", Dim: 2},
		},
		[]string{
			"Time_spent_Alone",
			"Social_event_attendance",
			"Going_outside",
			"Friends_circle_size",
			"Post_frequency",
		},
		"Personality",
	)
	if err != nil {
		panic(err)
	}
	return s
}

// Categorical returns a copy of the categorical declarations, in order.
func (s Spec) Categorical() []Categorical {
	return append([]Categorical(nil), s.categorical...)
}

// Numerical returns a copy of the numerical feature names, in order.
func (s Spec) Numerical() []string {
	return append([]string(nil), s.numerical...)
}

// Label returns the label key.
func (s Spec) Label() string { return s.label }

// Suffix returns the transformed-name suffix.
func (s Spec) Suffix() string { return s.suffix }

// TransformedName maps a raw key to its transformed key.
func (s Spec) TransformedName(key string) string {
	return key + s.suffix
}

// Keys returns every raw key the spec consumes: categorical, numerical, label.
func (s Spec) Keys() []string {
	keys := make([]string, 0, len(s.categorical)+len(s.numerical)+1)
	for _, c := range s.categorical {
		keys = append(keys, c.Name)
	}
	keys = append(keys, s.numerical...)
	return append(keys, s.label)
}

// TransformedKeys returns the keys a transform output carries, in Keys order.
func (s Spec) TransformedKeys() []string {
	keys := s.Keys()
	for i, k := range keys {
		keys[i] = s.TransformedName(k)
	}
	return keys
}

// IsZero reports whether s was never built.
func (s Spec) IsZero() bool {
	return s.label == ""
}
