package graph

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/agentx-labs/capreg/internal/report"
	"github.com/agentx-labs/capreg/internal/resolver"
)

// Finding is one reference the integrity checker reports.
type Finding struct {
	Origin        string              `json:"origin"`
	Raw           string              `json:"raw"`
	Line          int                 `json:"line,omitempty"`
	Field         string              `json:"field,omitempty"`
	Confidence    resolver.Confidence `json:"confidence"`
	Target        string              `json:"target,omitempty"`
	Candidates    []string            `json:"candidates,omitempty"`
	Rewrite       string              `json:"rewrite,omitempty"`
	NonConforming bool                `json:"non_conforming,omitempty"`
}

func finding(ref resolver.Reference, raw RawRef) Finding {
	return Finding{
		Origin:        ref.Origin,
		Raw:           ref.Raw,
		Line:          raw.Line,
		Field:         raw.Field,
		Confidence:    ref.Confidence,
		Target:        ref.Target,
		Candidates:    ref.Candidates,
		Rewrite:       ref.Rewrite,
		NonConforming: ref.NonConforming,
	}
}

func (f Finding) location() string {
	switch {
	case f.Line > 0:
		return fmt.Sprintf("%s:%d", f.Origin, f.Line)
	case f.Field != "":
		return f.Origin + " (" + f.Field + ")"
	default:
		return f.Origin
	}
}

// Duplicate is a (type, id) claimed by more than one document.
type Duplicate struct {
	Key   NodeKey  `json:"key"`
	Paths []string `json:"paths"`
}

// Report is the integrity report of a graph. Rewrites are advisory and do not
// fail a check.
type Report struct {
	Dangling   []Finding   `json:"dangling"`
	Ambiguous  []Finding   `json:"ambiguous"`
	Duplicates []Duplicate `json:"duplicates"`
	Cycles     [][]NodeKey `json:"cycles"`
	Rewrites   []Finding   `json:"rewrites"`
}

// OK reports whether the corpus passes the integrity check.
func (r *Report) OK() bool {
	return len(r.Dangling) == 0 && len(r.Ambiguous) == 0 && len(r.Duplicates) == 0 && len(r.Cycles) == 0
}

// Errors returns one typed error per dangling or ambiguous reference.
func (r *Report) Errors() []error {
	var errs []error
	for _, f := range r.Dangling {
		errs = append(errs, &resolver.DanglingError{Origin: f.location(), Raw: f.Raw})
	}
	for _, f := range r.Ambiguous {
		errs = append(errs, &resolver.AmbiguousError{Origin: f.location(), Raw: f.Raw, Candidates: f.Candidates})
	}
	return errs
}

// Batch converts the failing findings into per-origin report items.
func (r *Report) Batch() report.Batch {
	var b report.Batch
	for _, f := range r.Dangling {
		b.Add(report.Item{Path: f.Origin, Kind: report.KindDanglingReference, Messages: []string{describe(f)}})
	}
	for _, f := range r.Ambiguous {
		b.Add(report.Item{Path: f.Origin, Kind: report.KindAmbiguousReference, Messages: []string{describe(f)}})
	}
	return b
}

func describe(f Finding) string {
	msg := f.Raw
	if f.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", f.Line, f.Raw)
	} else if f.Field != "" {
		msg = f.Field + ": " + f.Raw
	}
	if len(f.Candidates) > 0 {
		msg += " (candidates: " + strings.Join(f.Candidates, ", ") + ")"
	}
	return msg
}

// Print writes a human-readable summary followed by one line per finding.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "dangling: %d  ambiguous: %d  duplicates: %d  cycles: %d  rewrites: %d\n",
		len(r.Dangling), len(r.Ambiguous), len(r.Duplicates), len(r.Cycles), len(r.Rewrites))
	for _, f := range r.Dangling {
		fmt.Fprintf(w, "  %s: %s: %s\n", f.location(), report.KindDanglingReference, f.Raw)
	}
	for _, f := range r.Ambiguous {
		fmt.Fprintf(w, "  %s: %s: %s (candidates: %s)\n", f.location(), report.KindAmbiguousReference, f.Raw, strings.Join(f.Candidates, ", "))
	}
	for _, d := range r.Duplicates {
		fmt.Fprintf(w, "  %s: duplicate id: %s\n", d.Key, strings.Join(d.Paths, ", "))
	}
	for _, c := range r.Cycles {
		parts := make([]string, len(c))
		for i, k := range c {
			parts[i] = k.String()
		}
		fmt.Fprintf(w, "  depends-on cycle: %s\n", strings.Join(parts, ", "))
	}
	for _, f := range r.Rewrites {
		fmt.Fprintf(w, "  %s: suggest %s -> %s (%s)\n", f.location(), f.Raw, f.Rewrite, f.Confidence)
	}
}

func (r *Report) sort() {
	byOrigin := func(fs []Finding) {
		sort.SliceStable(fs, func(i, j int) bool {
			if fs[i].Origin != fs[j].Origin {
				return fs[i].Origin < fs[j].Origin
			}
			if fs[i].Line != fs[j].Line {
				return fs[i].Line < fs[j].Line
			}
			if fs[i].Field != fs[j].Field {
				return fs[i].Field < fs[j].Field
			}
			return fs[i].Raw < fs[j].Raw
		})
	}
	byOrigin(r.Dangling)
	byOrigin(r.Ambiguous)
	byOrigin(r.Rewrites)
	for _, d := range r.Duplicates {
		sort.Strings(d.Paths)
	}
	sort.Slice(r.Duplicates, func(i, j int) bool { return lessKey(r.Duplicates[i].Key, r.Duplicates[j].Key) })
}

// findCycles returns the strongly connected components of the depends-on
// subgraph that contain a cycle, members sorted by key.
func findCycles(g *Graph) [][]NodeKey {
	adj := make(map[NodeKey][]NodeKey)
	for _, e := range g.Edges {
		if e.Kind == DependsOn && !e.To.IsZero() {
			adj[e.From] = append(adj[e.From], e.To)
		}
	}
	for k := range adj {
		sort.Slice(adj[k], func(i, j int) bool { return lessKey(adj[k][i], adj[k][j]) })
	}

	var (
		index   = 0
		stack   []NodeKey
		onStack = make(map[NodeKey]bool)
		indices = make(map[NodeKey]int)
		lowlink = make(map[NodeKey]int)
		cycles  [][]NodeKey
	)

	var connect func(v NodeKey)
	connect = func(v NodeKey) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		selfLoop := false
		for _, w := range adj[v] {
			if w == v {
				selfLoop = true
			}
			if _, visited := indices[w]; !visited {
				connect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []NodeKey
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 || selfLoop {
				sort.Slice(scc, func(i, j int) bool { return lessKey(scc[i], scc[j]) })
				cycles = append(cycles, scc)
			}
		}
	}

	for _, n := range g.SortedNodes() {
		if _, visited := indices[n.Key]; !visited {
			connect(n.Key)
		}
	}
	sort.Slice(cycles, func(i, j int) bool { return lessKey(cycles[i][0], cycles[j][0]) })
	return cycles
}
