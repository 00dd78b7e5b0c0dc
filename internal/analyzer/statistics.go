// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package analyzer

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Range is the observed span of a numerical feature.
type Range struct {
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Count int64   `yaml:"count"`
}

// Term is one observed categorical value and its frequency.
type Term struct {
	Value string `yaml:"value"`
	Count int64  `yaml:"count"`
}

// Vocabulary ranks the values of a categorical feature by frequency. Only the
// first TopK terms own an index; everything else shares the OOV index TopK.
type Vocabulary struct {
	TopK  int    `yaml:"top_k"`
	Terms []Term `yaml:"terms"`

	index map[string]int
}

// NewVocabulary ranks counts by frequency descending, ties broken by value
// ascending so the ranking does not depend on map iteration order.
func NewVocabulary(topK int, counts map[string]int64) *Vocabulary {
	terms := make([]Term, 0, len(counts))
	for v, n := range counts {
		terms = append(terms, Term{Value: v, Count: n})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Value < terms[j].Value
	})

	v := &Vocabulary{TopK: topK, Terms: terms}
	v.buildIndex()
	return v
}

func (v *Vocabulary) buildIndex() {
	v.index = make(map[string]int, v.TopK)
	for i, t := range v.Terms {
		if i >= v.TopK {
			break
		}
		v.index[t.Value] = i
	}
}

// Index returns the vocabulary index of value, or OOVIndex when value is not
// among the top terms.
func (v *Vocabulary) Index(value string) int {
	if i, ok := v.index[value]; ok {
		return i
	}
	return v.OOVIndex()
}

// OOVIndex is the bucket shared by infrequent and unseen values.
func (v *Vocabulary) OOVIndex() int { return v.TopK }

// Size is the one-hot width: TopK slots plus the OOV slot.
func (v *Vocabulary) Size() int { return v.TopK + 1 }

// Statistics are the frozen, dataset-global results of the analyze phase.
type Statistics struct {
	NumExamples  int64                  `yaml:"num_examples"`
	Vocabularies map[string]*Vocabulary `yaml:"vocabularies"`
	Ranges       map[string]Range       `yaml:"ranges"`
}

// Save writes s as YAML to path.
func (s *Statistics) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode statistics: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write statistics to %s: %w", path, err)
	}
	return nil
}

// Load reads statistics previously written by Save.
func Load(path string) (*Statistics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read statistics from %s: %w", path, err)
	}
	var s Statistics
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode statistics from %s: %w", path, err)
	}
	for name, v := range s.Vocabularies {
		if v == nil {
			return nil, fmt.Errorf("statistics in %s have an empty vocabulary for '%s'", path, name)
		}
		v.buildIndex()
	}
	return &s, nil
}
