// Package document loads capability documents from disk. It understands
// Markdown with YAML (---) or TOML (+++) frontmatter, and whole-file JSON or
// YAML documents, and exposes their fields through a typed map that tells an
// absent field apart from a malformed one.
package document
