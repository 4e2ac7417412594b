// Package schema holds the structural contract for every component type and
// validates documents against it.
//
// Schemas are JSON Schema-shaped files (one per type, <type>.schema.json or
// .yaml) read into the package's own Schema abstraction. Fast mode walks that
// abstraction directly and checks required fields and coarse kinds. Strict mode
// hands the same file to a full JSON Schema evaluator so patterns, enums,
// bounds and nested constraints are enforced too.
package schema
