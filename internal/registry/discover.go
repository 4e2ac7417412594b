package registry

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agentx-labs/capreg/internal/document"
)

// Discover returns the corpus-relative paths of every document of type t,
// the union of all roots configured for it, sorted. Excluded paths and paths
// inside hidden or skipped directories are left out.
func (r *Registry) Discover(t document.ComponentType) ([]string, error) {
	fsys := os.DirFS(r.corpus.Root)
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range r.corpus.RootsFor(t) {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("scanning %s roots %q: %w", t, pattern, err)
		}
		for _, rel := range matches {
			if seen[rel] || !r.candidate(rel) {
				continue
			}
			seen[rel] = true
			out = append(out, rel)
		}
	}
	sort.Strings(out)
	return out, nil
}

// DiscoverAll returns every document of every type. A file matched by the
// roots of several types is listed once per type.
func (r *Registry) DiscoverAll(ctx context.Context) ([]Located, error) {
	var out []Located
	for _, t := range document.ValidTypes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		paths, err := r.Discover(t)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			out = append(out, Located{RelPath: p, Type: t})
		}
	}
	return out, nil
}

// TypeOf infers the component type of a corpus-relative path from the
// configured roots. The first type in declaration order whose roots match
// wins.
func (r *Registry) TypeOf(rel string) (document.ComponentType, bool) {
	if !r.candidate(rel) {
		return "", false
	}
	for _, t := range document.ValidTypes {
		for _, pattern := range r.corpus.RootsFor(t) {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				return t, true
			}
		}
	}
	return "", false
}

// candidate reports whether rel may be a document at all.
func (r *Registry) candidate(rel string) bool {
	if r.corpus.Excluded(rel) {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return false
		}
	}
	return !r.Ignored(rel)
}

// Ignored reports whether rel is, or lies under, a directory that never
// holds documents. Changes there never affect the index.
func (r *Registry) Ignored(rel string) bool {
	for _, s := range r.skipDirs() {
		if strings.Contains("/"+rel+"/", "/"+s+"/") {
			return true
		}
	}
	return false
}
