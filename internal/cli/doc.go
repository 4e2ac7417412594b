// Package cli defines the Cobra command tree for the capreg CLI. Each file
// in this package registers one top-level command (validate, catalog, index,
// etc.) with the root command. Command implementations delegate to internal
// packages for the work and only handle flag parsing, corpus loading and
// output formatting.
package cli
