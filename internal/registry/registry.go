// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"

	"github.com/goccy/go-json"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/specialistvlad/featuregrid/internal/ctxlog"
	"github.com/specialistvlad/featuregrid/internal/feature"
	"github.com/specialistvlad/featuregrid/internal/pipeline"
)

// Module is the interface that all core modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Definition is one `component "type" "name"` block after parsing.
type Definition struct {
	Type      string
	Name      string
	DependsOn []string
	// Arguments is the raw `arguments` body; nil when the block is absent.
	Arguments hcl.Body
	// EvalCtx resolves variables such as env.NAME inside Arguments.
	EvalCtx *hcl.EvalContext
	// Spec is the pipeline's feature spec.
	Spec feature.Spec
}

// RegisteredComponent holds the compiled Go parts of a component type.
type RegisteredComponent struct {
	// NewInput returns a pointer to a struct with `hcl` tags.
	NewInput func() any
	// New builds the component from the decoded input.
	New func(meta pipeline.Meta, def *Definition, input any) (pipeline.Component, error)
}

// Registry holds all registered component types for a single application
// instance.
type Registry struct {
	components map[string]*RegisteredComponent
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{components: make(map[string]*RegisteredComponent)}
}

// RegisterComponent registers the Go implementation of a component type.
func (r *Registry) RegisterComponent(typeName string, c *RegisteredComponent) {
	if _, exists := r.components[typeName]; exists {
		panic(fmt.Sprintf("component type '%s' already registered", typeName))
	}
	if c == nil || c.New == nil || c.NewInput == nil {
		panic(fmt.Sprintf("component type '%s' registered without constructor", typeName))
	}
	if t := reflect.TypeOf(c.NewInput()); t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("component type '%s' input must be a pointer to a struct", typeName))
	}
	r.components[typeName] = c
}

// Types lists registered component types, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.components))
	for t := range r.components {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Build decodes def's arguments and constructs the component.
func (r *Registry) Build(ctx context.Context, def *Definition) (pipeline.Component, error) {
	logger := ctxlog.FromContext(ctx)
	reg, ok := r.components[def.Type]
	if !ok {
		return nil, fmt.Errorf("component '%s': unknown type '%s' (registered: %v)", def.Name, def.Type, r.Types())
	}

	input := reg.NewInput()
	if def.Arguments != nil {
		if diags := gohcl.DecodeBody(def.Arguments, def.EvalCtx, input); diags.HasErrors() {
			return nil, fmt.Errorf("component '%s': failed to decode arguments: %w", def.Name, diags)
		}
	} else if diags := gohcl.DecodeBody(hcl.EmptyBody(), def.EvalCtx, input); diags.HasErrors() {
		return nil, fmt.Errorf("component '%s': missing required arguments: %w", def.Name, diags)
	}

	hash, err := Fingerprint(def.Type, def.Spec.Categorical(), def.Spec.Numerical(), def.Spec.Label(), def.Spec.Suffix(), input)
	if err != nil {
		return nil, fmt.Errorf("component '%s': %w", def.Name, err)
	}

	meta := pipeline.Meta{
		Name:      def.Name,
		Kind:      def.Type,
		DependsOn: def.DependsOn,
		Hash:      hash,
	}
	logger.Debug("Building component.", "type", def.Type, "name", def.Name, "fingerprint", hash[:12])
	return reg.New(meta, def, input)
}

// Fingerprint hashes the JSON encoding of parts.
func Fingerprint(parts ...any) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, p := range parts {
		if err := enc.Encode(p); err != nil {
			return "", fmt.Errorf("failed to fingerprint configuration: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
