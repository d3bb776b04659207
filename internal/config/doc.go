// Package config defines the format-agnostic model of a pipeline document:
// the pipeline name, engine options, and the ordered task list. Loaders for
// concrete formats (HCL, YAML) translate their input into this model; the
// graph builder validates it. Worker-specific parameters are preserved as an
// opaque Params bag the engine never inspects.
package config
