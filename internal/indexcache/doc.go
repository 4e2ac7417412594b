// Package indexcache keeps derived payloads (catalogs, the dependency graph,
// the integrity report) up to date without rescanning the corpus on every
// read.
//
// Each section has a set of triggers, directory prefixes or doublestar
// globs relative to the corpus root, and moves through the states
// Fresh → Stale → Computing → Fresh. A read of a Fresh section is a map
// lookup. Invalidate marks every section whose triggers cover a changed path
// Stale; the next read recomputes it. Payloads and their source signatures
// are persisted in a Store so an unchanged corpus needs no recomputation on
// the next run.
package indexcache
