// Package config loads pipeline definitions written in HCL into a
// format-agnostic Model.
//
// A definition may be split across any number of .hcl files. Exactly one
// `pipeline` block must exist among them, at most one `features` block, and
// any number of `component` blocks. Component `arguments` bodies are kept
// undecoded; the registry decodes them into each component's typed input.
package config
