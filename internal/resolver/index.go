package resolver

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Index is the corpus-wide name index: every file under the corpus root,
// addressable by relative path, by directory and by normalized base name.
type Index struct {
	files  map[string]struct{}
	dirs   map[string][]string // dir -> base names
	byName map[string][]string // normalized base name -> paths
}

// NewIndex builds an index from corpus-relative paths. Backslashes are
// converted to slashes and duplicates ignored.
func NewIndex(paths []string) *Index {
	ix := &Index{
		files:  make(map[string]struct{}, len(paths)),
		dirs:   make(map[string][]string),
		byName: make(map[string][]string),
	}
	for _, p := range paths {
		rel, ok := cleanRel(strings.ReplaceAll(p, "\\", "/"))
		if !ok || rel == "" {
			continue
		}
		if _, dup := ix.files[rel]; dup {
			continue
		}
		ix.files[rel] = struct{}{}
		dir, base := splitDir(rel)
		ix.dirs[dir] = append(ix.dirs[dir], base)
		key := NormalizeName(base)
		ix.byName[key] = append(ix.byName[key], rel)
	}
	for _, v := range ix.dirs {
		sort.Strings(v)
	}
	for _, v := range ix.byName {
		sort.Strings(v)
	}
	return ix
}

// BuildIndex walks root and indexes every regular file. Hidden directories
// and directories named in skip are not descended into.
func BuildIndex(root string, skip ...string) (*Index, error) {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[strings.Trim(filepath.ToSlash(s), "/")] = true
	}

	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && (strings.HasPrefix(d.Name(), ".") || skipped[rel] || skipped[d.Name()]) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("indexing corpus %s: %w", root, err)
	}
	return NewIndex(paths), nil
}

// Has reports whether rel names an indexed file.
func (ix *Index) Has(rel string) bool {
	_, ok := ix.files[rel]
	return ok
}

// Lookup returns every path whose base name normalizes to the same key as name.
func (ix *Index) Lookup(name string) []string {
	return ix.byName[NormalizeName(path.Base(name))]
}

// InDir returns the base names of the files directly inside dir.
func (ix *Index) InDir(dir string) []string {
	return ix.dirs[dir]
}

// Files returns every indexed path, sorted.
func (ix *Index) Files() []string {
	out := make([]string, 0, len(ix.files))
	for f := range ix.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of indexed files.
func (ix *Index) Len() int { return len(ix.files) }

// NormalizeName maps a file name onto the corpus naming convention:
// Unicode case folded, with underscores and spaces folded to hyphens.
func NormalizeName(name string) string {
	folded := cases.Fold().String(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', ' ':
			return '-'
		}
		return r
	}, folded)
}

func splitDir(rel string) (dir, base string) {
	i := strings.LastIndexByte(rel, '/')
	if i < 0 {
		return "", rel
	}
	return rel[:i], rel[i+1:]
}

// cleanRel cleans a slash path relative to the corpus root. Paths that
// escape the root are rejected.
func cleanRel(p string) (string, bool) {
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", true
	}
	c := path.Clean(p)
	if c == "." {
		return "", true
	}
	if c == ".." || strings.HasPrefix(c, "../") {
		return "", false
	}
	return c, true
}
