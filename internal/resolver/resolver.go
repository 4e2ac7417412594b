package resolver

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/report"
)

// Confidence says how a reference was resolved.
type Confidence string

const (
	Exact           Confidence = "exact"
	ExactNormalized Confidence = "exact-normalized"
	Fuzzy           Confidence = "fuzzy"
	Ambiguous       Confidence = "ambiguous"
	Unresolved      Confidence = "unresolved"
	External        Confidence = "external"
)

// DefaultExternalPrefixes are always passed through untouched.
var DefaultExternalPrefixes = []string{"http://", "https://", "mailto:", "tel:", "data:", "ftp://"}

// schemeRe matches a leading URI scheme. Two characters at least, so a
// Windows drive letter is not a scheme.
var schemeRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9+.-]+):`)

// Reference is the outcome of resolving one textual reference.
type Reference struct {
	Raw           string     `json:"raw"`
	Origin        string     `json:"origin"`
	Target        string     `json:"target,omitempty"`
	Fragment      string     `json:"fragment,omitempty"`
	Confidence    Confidence `json:"confidence"`
	Candidates    []string   `json:"candidates,omitempty"`
	Rewrite       string     `json:"rewrite,omitempty"`
	NonConforming bool       `json:"non_conforming,omitempty"`
}

// Resolved reports whether the reference points at a file.
func (r Reference) Resolved() bool {
	switch r.Confidence {
	case Exact, ExactNormalized, Fuzzy:
		return true
	}
	return false
}

// Err returns a typed error for unresolved and ambiguous references.
func (r Reference) Err() error {
	switch r.Confidence {
	case Unresolved:
		return &DanglingError{Origin: r.Origin, Raw: r.Raw}
	case Ambiguous:
		return &AmbiguousError{Origin: r.Origin, Raw: r.Raw, Candidates: r.Candidates}
	}
	return nil
}

// DanglingError is a reference that resolves to nothing.
type DanglingError struct {
	Origin string
	Raw    string
}

func (e *DanglingError) Error() string {
	return e.Origin + ": unresolved reference " + strings.TrimSpace(e.Raw)
}

func (e *DanglingError) Unwrap() error { return report.ErrDanglingReference }

// AmbiguousError is a reference with several equally good candidates.
type AmbiguousError struct {
	Origin     string
	Raw        string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return e.Origin + ": ambiguous reference " + e.Raw + " (candidates: " + strings.Join(e.Candidates, ", ") + ")"
}

func (e *AmbiguousError) Unwrap() error { return report.ErrAmbiguousReference }

// Options configures a Resolver.
type Options struct {
	// ExternalPrefixes are allow-listed prefixes treated as external, in
	// addition to DefaultExternalPrefixes.
	ExternalPrefixes []string
	// CanonicalDirs are retried during normalization. Defaults to docs.
	CanonicalDirs []string
}

// Resolver resolves references against a corpus index. Results are memoized
// per (origin directory, text) until Reset.
type Resolver struct {
	index     *Index
	external  []string
	canonical []string
	memo      *gocache.Cache
}

// New returns a resolver over index.
func New(index *Index, opts Options) *Resolver {
	if index == nil {
		index = NewIndex(nil)
	}
	canonical := opts.CanonicalDirs
	if canonical == nil {
		canonical = []string{"docs"}
	}
	var dirs []string
	for _, c := range canonical {
		if d, ok := cleanRel(c); ok && d != "" {
			dirs = append(dirs, d)
		}
	}
	return &Resolver{
		index:     index,
		external:  append(append([]string(nil), DefaultExternalPrefixes...), opts.ExternalPrefixes...),
		canonical: dirs,
		memo:      gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
}

// Index returns the name index in use.
func (r *Resolver) Index() *Index { return r.index }

// Reset drops memoized results and swaps in a new index when non-nil. It
// must not run concurrently with Resolve.
func (r *Resolver) Reset(index *Index) {
	if index != nil {
		r.index = index
	}
	r.memo.Flush()
}

// IsExternal reports whether text is passed through without resolution.
func (r *Resolver) IsExternal(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	if strings.HasPrefix(t, "#") || strings.Contains(t, "://") {
		return true
	}
	if m := schemeRe.FindStringSubmatch(t); m != nil {
		// agent:, skill: and the other type tags address documents.
		if _, err := document.ParseType(m[1]); err != nil {
			return true
		}
	}
	lower := strings.ToLower(t)
	for _, p := range r.external {
		if p != "" && strings.HasPrefix(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Resolve resolves text found in the document at origin (a corpus-relative
// slash path). The first matching step wins: external pass-through, literal
// path from the origin directory, literal path from the corpus root,
// normalized file name, then the name index.
func (r *Resolver) Resolve(text, origin string) Reference {
	originDir, _ := splitDir(strings.TrimLeft(path.Clean("/"+origin), "/"))
	key := originDir + "\x00" + text
	if v, ok := r.memo.Get(key); ok {
		ref := v.(Reference)
		ref.Origin = origin
		ref.Candidates = append([]string(nil), ref.Candidates...)
		return ref
	}
	ref := r.resolve(text, originDir)
	r.memo.Set(key, ref, gocache.NoExpiration)
	ref.Origin = origin
	ref.Candidates = append([]string(nil), ref.Candidates...)
	return ref
}

func (r *Resolver) resolve(text, originDir string) Reference {
	ref := Reference{Raw: text, Confidence: Unresolved}
	if r.IsExternal(text) {
		ref.Confidence = External
		return ref
	}

	target, fragment := splitTarget(text)
	ref.Fragment = fragment
	if target == "" {
		return ref
	}
	rooted := strings.HasPrefix(target, "/")

	// Literal, relative to the origin directory.
	if !rooted {
		if p, ok := cleanRel(path.Join(originDir, target)); ok && p != "" && r.index.Has(p) {
			ref.Confidence = Exact
			ref.Target = p
			return ref
		}
	}

	// Literal, relative to the corpus root.
	if p, ok := cleanRel(target); ok && p != "" && r.index.Has(p) {
		ref.Confidence = Exact
		ref.Target = p
		if minimal := relativeTo(originDir, p); minimal != strings.TrimLeft(target, "/") {
			ref.Rewrite = withFragment(minimal, fragment)
		}
		return ref
	}

	// Normalized file name in the origin dir, the root and canonical dirs.
	if hits := r.normalized(target, originDir, rooted); len(hits) > 0 {
		if len(hits) == 1 {
			ref.Confidence = ExactNormalized
			ref.Target = hits[0]
			ref.NonConforming = true
			ref.Rewrite = withFragment(relativeTo(originDir, hits[0]), fragment)
			return ref
		}
		ref.Confidence = Ambiguous
		ref.Candidates = hits
		return ref
	}

	// Corpus-wide name index.
	candidates := r.index.Lookup(target)
	switch len(candidates) {
	case 0:
		return ref
	case 1:
		ref.Confidence = Fuzzy
		ref.Target = candidates[0]
		ref.Candidates = []string{candidates[0]}
		ref.Rewrite = withFragment(relativeTo(originDir, candidates[0]), fragment)
		return ref
	}

	ref.Candidates = append([]string(nil), candidates...)
	best := tieBreak(candidates, path.Join(originDir, strings.TrimLeft(target, "/")), originDir)
	if len(best) == 1 {
		ref.Confidence = Fuzzy
		ref.Target = best[0]
		ref.Rewrite = withFragment(relativeTo(originDir, best[0]), fragment)
		return ref
	}
	ref.Confidence = Ambiguous
	return ref
}

// normalized retries the file name under the naming convention in each
// search directory in order; the first directory with a hit wins.
func (r *Resolver) normalized(target, originDir string, rooted bool) []string {
	clean := strings.TrimLeft(target, "/")
	subdir, base := splitDir(clean)
	want := NormalizeName(base)

	var dirs []string
	if !rooted {
		dirs = append(dirs, path.Join(originDir, subdir))
	}
	dirs = append(dirs, subdir)
	for _, c := range r.canonical {
		dirs = append(dirs, path.Join(c, subdir))
	}

	seen := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		dir, ok := cleanRel(d)
		if !ok || seen[dir] {
			continue
		}
		seen[dir] = true
		var hits []string
		for _, name := range r.index.InDir(dir) {
			if NormalizeName(name) == want {
				hits = append(hits, path.Join(dir, name))
			}
		}
		if len(hits) > 0 {
			return hits
		}
	}
	return nil
}

// tieBreak keeps the candidates closest in edit distance to literal, then
// those with the fewest directory hops from originDir.
func tieBreak(candidates []string, literal, originDir string) []string {
	dmp := diffmatchpatch.New()
	best := minBy(candidates, func(c string) int {
		return dmp.DiffLevenshtein(dmp.DiffMain(literal, c, false))
	})
	if len(best) == 1 {
		return best
	}
	return minBy(best, func(c string) int {
		dir, _ := splitDir(c)
		return hops(originDir, dir)
	})
}

func minBy(items []string, score func(string) int) []string {
	var out []string
	low := 0
	for i, it := range items {
		s := score(it)
		switch {
		case i == 0 || s < low:
			low = s
			out = []string{it}
		case s == low:
			out = append(out, it)
		}
	}
	sort.Strings(out)
	return out
}

// hops counts directory steps from one corpus directory to another.
func hops(from, to string) int {
	a := segments(from)
	b := segments(to)
	i := 0
	for i < len(a) && i < len(b) && a[i] == b[i] {
		i++
	}
	return (len(a) - i) + (len(b) - i)
}

// relativeTo returns the minimal slash path from dir to target.
func relativeTo(dir, target string) string {
	a := segments(dir)
	b := segments(target)
	i := 0
	for i < len(a) && i < len(b)-1 && a[i] == b[i] {
		i++
	}
	parts := make([]string, 0, len(a)-i+len(b)-i)
	for range a[i:] {
		parts = append(parts, "..")
	}
	parts = append(parts, b[i:]...)
	return strings.Join(parts, "/")
}

func segments(p string) []string {
	if p == "" || p == "." {
		return nil
	}
	return strings.Split(p, "/")
}

// splitTarget separates the path from its fragment or query and decodes
// percent escapes.
func splitTarget(text string) (target, fragment string) {
	t := strings.TrimSpace(text)
	if i := strings.IndexByte(t, '#'); i >= 0 {
		t, fragment = t[:i], t[i+1:]
	}
	if i := strings.IndexByte(t, '?'); i >= 0 {
		t = t[:i]
	}
	if unescaped, err := url.PathUnescape(t); err == nil {
		t = unescaped
	}
	t = strings.TrimPrefix(strings.TrimSuffix(t, ">"), "<")
	return strings.ReplaceAll(t, "\\", "/"), fragment
}

func withFragment(p, fragment string) string {
	if fragment == "" {
		return p
	}
	return p + "#" + fragment
}
