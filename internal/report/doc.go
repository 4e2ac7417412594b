// Package report defines the error taxonomy shared by every stage of a
// maintenance pass and the per-item batch results that batch tools print.
// Per-document and per-reference failures are collected as Items and never
// raised past the enclosing batch.
package report
