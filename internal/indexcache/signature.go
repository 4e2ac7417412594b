package indexcache

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
)

type fileStat struct {
	size  int64
	mtime int64
}

// Signature digests the (path, size, mtime) of every file covered by
// triggers under root. Paths for which skip returns true are left out.
func Signature(root string, triggers []string, skip func(rel string) bool) (string, error) {
	files := make(map[string]fileStat)
	for _, t := range triggers {
		if err := collect(root, normalizeTrigger(t), skip, files); err != nil {
			return "", err
		}
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	sorted := append([]string(nil), triggers...)
	sort.Strings(sorted)

	h := xxhash.New()
	for _, t := range sorted {
		fmt.Fprintf(h, "t\x00%s\n", normalizeTrigger(t))
	}
	for _, p := range paths {
		st := files[p]
		fmt.Fprintf(h, "f\x00%s\x00%d\x00%d\n", p, st.size, st.mtime)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func collect(root, trigger string, skip func(string) bool, files map[string]fileStat) error {
	base, pattern := trigger, ""
	if hasMeta(trigger) {
		base, pattern = doublestar.SplitPattern(trigger)
		if base == "." {
			base = ""
		}
	}

	start := filepath.Join(root, filepath.FromSlash(base))
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = ""
		}
		if d.IsDir() {
			if rel != "" && skip != nil && skip(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if skip != nil && skip(rel) {
			return nil
		}
		if pattern != "" {
			if ok, _ := doublestar.Match(trigger, rel); !ok {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files[rel] = fileStat{size: info.Size(), mtime: info.ModTime().UnixNano()}
		return nil
	})
	if err != nil {
		return fmt.Errorf("computing signature for %s: %w", trigger, err)
	}
	return nil
}

// Matches reports whether a change at the corpus-relative path rel affects a
// section with the given trigger. A directory trigger covers everything
// beneath it; a glob covers the paths it matches. A change to an ancestor
// directory of either covers it too.
func Matches(trigger, rel string) bool {
	t := normalizeTrigger(trigger)
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if t == "" || rel == "" {
		return true
	}
	if hasMeta(t) {
		if ok, _ := doublestar.Match(t, rel); ok {
			return true
		}
		base, _ := doublestar.SplitPattern(t)
		return base != "." && (base == rel || strings.HasPrefix(base, rel+"/"))
	}
	return rel == t || strings.HasPrefix(rel, t+"/") || strings.HasPrefix(t, rel+"/")
}

func normalizeTrigger(t string) string {
	t = strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(t)), "./")
	return strings.Trim(t, "/")
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}
