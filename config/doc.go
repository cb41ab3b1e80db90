// Package config loads, validates and watches the YAML configuration
// for the store, caches and authorization gate. Values support
// ${VAR} and ${VAR:-default} environment substitution, and durations
// are human-readable strings like "30s" or "5m".
//
// The package owns the file shape only; each subsystem keeps its own
// runtime configuration type, produced by the To* conversion methods.
package config
