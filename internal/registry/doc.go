// Package registry is the entry point to one corpus of capability documents.
// A Registry is built from a corpus configuration and answers discovery,
// validation, reference graph, catalog and integrity queries against the
// files on disk. It also defines the index cache sections that keep those
// answers current across invocations.
package registry
