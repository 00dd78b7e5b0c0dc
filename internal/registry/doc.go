// Package registry provides the central "glue" for the component system.
//
// The Registry maps the component type names used in pipeline files (e.g.
// "csv_example_gen") to the Go code implementing them. Each registration
// pairs a typed input struct, decoded from the component's `arguments` block
// with gohcl, with a constructor that turns the decoded input into a
// pipeline.Component.
package registry
