package graph

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/resolver"
)

// FileType is the node type for non-document assets reached by a reference.
const FileType = "file"

// EdgeKind classifies an edge by the types of its endpoints.
type EdgeKind string

const (
	Cites      EdgeKind = "cites"
	DependsOn  EdgeKind = "depends-on"
	Implements EdgeKind = "implements"
)

// NodeKey identifies a node by (type, id).
type NodeKey struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (k NodeKey) String() string { return k.Type + ":" + k.ID }

// IsZero reports whether k names no node.
func (k NodeKey) IsZero() bool { return k.Type == "" && k.ID == "" }

// Node is a document, or an asset file reached by an exact resolution.
type Node struct {
	Key  NodeKey `json:"key"`
	Path string  `json:"path"`
}

// Edge is one reference from a document to a node. To is zero when the
// reference is external, ambiguous or dangling.
type Edge struct {
	From       NodeKey             `json:"from"`
	To         NodeKey             `json:"to"`
	Kind       EdgeKind            `json:"kind"`
	Raw        string              `json:"raw"`
	External   bool                `json:"external,omitempty"`
	Confidence resolver.Confidence `json:"confidence"`
	Line       int                 `json:"line,omitempty"`
	Field      string              `json:"field,omitempty"`
}

// Dangling reports whether the edge points nowhere and is not allow-listed.
func (e Edge) Dangling() bool {
	return !e.External && e.To.IsZero() && e.Confidence == resolver.Unresolved
}

// Graph holds the nodes and edges built from a corpus.
type Graph struct {
	Nodes map[NodeKey]*Node
	Edges []Edge

	report Report
}

// Report returns the integrity findings collected while building.
func (g *Graph) Report() *Report { return &g.report }

// SortedNodes returns the nodes ordered by key.
func (g *Graph) SortedNodes() []*Node {
	out := make([]*Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return lessKey(out[i].Key, out[j].Key) })
	return out
}

// Outgoing returns the edges leaving key.
func (g *Graph) Outgoing(key NodeKey) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.From == key {
			out = append(out, e)
		}
	}
	return out
}

// Build creates the dependency graph for docs. Every reference becomes one
// edge; unresolved and ambiguous references are collected in the report and
// never stop the build. ctx is checked between documents.
func Build(ctx context.Context, docs []*document.Document, r *resolver.Resolver) (*Graph, error) {
	sorted := append([]*document.Document(nil), docs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RelPath < sorted[j].RelPath })

	g := &Graph{Nodes: make(map[NodeKey]*Node, len(sorted))}
	byPath := make(map[string]NodeKey, len(sorted))
	byID := make(map[string][]NodeKey)
	seen := make(map[NodeKey][]string)

	for _, d := range sorted {
		key := NodeKey{Type: string(d.Type), ID: d.ID}
		seen[key] = append(seen[key], d.RelPath)
		byPath[d.RelPath] = key
		if _, dup := g.Nodes[key]; dup {
			continue
		}
		g.Nodes[key] = &Node{Key: key, Path: d.RelPath}
		byID[d.ID] = append(byID[d.ID], key)
	}
	for key, paths := range seen {
		if len(paths) > 1 {
			g.report.Duplicates = append(g.report.Duplicates, Duplicate{Key: key, Paths: paths})
		}
	}

	b := &builder{g: g, r: r, byPath: byPath, byID: byID}
	for _, d := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.addDocument(d)
	}

	g.report.Cycles = findCycles(g)
	g.report.sort()
	return g, nil
}

type builder struct {
	g      *Graph
	r      *resolver.Resolver
	byPath map[string]NodeKey
	byID   map[string][]NodeKey
}

func (b *builder) addDocument(d *document.Document) {
	from := b.byPath[d.RelPath]
	for _, raw := range ExtractReferences(d) {
		edge := Edge{From: from, Raw: raw.Text, Line: raw.Line, Field: raw.Field, Kind: Cites}

		if raw.Wiki {
			if to, ok := b.wikiTarget(raw.Text); ok {
				edge.To = to
				edge.Confidence = resolver.Exact
				edge.Kind = inferKind(from.Type, to.Type)
				b.g.Edges = append(b.g.Edges, edge)
				continue
			}
			if paths := b.sharedID(raw.Text); len(paths) > 1 {
				edge.Confidence = resolver.Ambiguous
				b.g.report.Ambiguous = append(b.g.report.Ambiguous, Finding{
					Origin:     d.RelPath,
					Raw:        raw.Text,
					Line:       raw.Line,
					Field:      raw.Field,
					Confidence: resolver.Ambiguous,
					Candidates: paths,
				})
				b.g.Edges = append(b.g.Edges, edge)
				continue
			}
		}

		text := raw.Text
		if raw.Wiki {
			text = wikiPath(text)
		}
		ref := b.r.Resolve(text, d.RelPath)
		ref.Raw = raw.Text
		edge.Confidence = ref.Confidence

		switch {
		case ref.Confidence == resolver.External:
			edge.External = true
		case ref.Resolved():
			edge.To = b.nodeFor(ref.Target)
			edge.Kind = inferKind(from.Type, edge.To.Type)
			if ref.Rewrite != "" || ref.NonConforming || ref.Confidence == resolver.Fuzzy {
				b.g.report.Rewrites = append(b.g.report.Rewrites, finding(ref, raw))
			}
		case ref.Confidence == resolver.Ambiguous:
			b.g.report.Ambiguous = append(b.g.report.Ambiguous, finding(ref, raw))
		default:
			b.g.report.Dangling = append(b.g.report.Dangling, finding(ref, raw))
		}
		b.g.Edges = append(b.g.Edges, edge)
	}
}

// wikiTarget matches [[type:id]] first, then a unique [[id]].
func (b *builder) wikiTarget(text string) (NodeKey, bool) {
	if prefix, id, ok := strings.Cut(text, ":"); ok {
		if t, err := document.ParseType(prefix); err == nil {
			key := NodeKey{Type: string(t), ID: strings.TrimSpace(id)}
			if _, exists := b.g.Nodes[key]; exists {
				return key, true
			}
			return NodeKey{}, false
		}
	}
	if keys := b.byID[strings.TrimSpace(text)]; len(keys) == 1 {
		return keys[0], true
	}
	return NodeKey{}, false
}

// sharedID returns the paths of every node an untyped [[id]] names, sorted.
// More than one path means the link is ambiguous.
func (b *builder) sharedID(text string) []string {
	if prefix, _, ok := strings.Cut(text, ":"); ok {
		if _, err := document.ParseType(prefix); err == nil {
			return nil
		}
	}
	keys := b.byID[strings.TrimSpace(text)]
	paths := make([]string, 0, len(keys))
	for _, k := range keys {
		paths = append(paths, b.g.Nodes[k].Path)
	}
	sort.Strings(paths)
	return paths
}

// wikiPath turns a wikilink target into a path for the resolver: an
// optional type prefix is stripped and .md appended when there is no
// extension.
func wikiPath(text string) string {
	if prefix, rest, ok := strings.Cut(text, ":"); ok {
		if _, err := document.ParseType(prefix); err == nil {
			text = rest
		}
	}
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '#'); i >= 0 {
		text = text[:i]
	}
	if path.Ext(text) == "" && text != "" {
		text += ".md"
	}
	return text
}

func (b *builder) nodeFor(target string) NodeKey {
	if key, ok := b.byPath[target]; ok {
		return key
	}
	key := NodeKey{Type: FileType, ID: target}
	if _, ok := b.g.Nodes[key]; !ok {
		b.g.Nodes[key] = &Node{Key: key, Path: target}
	}
	return key
}

// inferKind derives the edge kind from the endpoint types: normative targets
// are implemented, executable components depend on each other, and
// everything else is cited.
func inferKind(from, to string) EdgeKind {
	switch document.ComponentType(to) {
	case document.TypeContract, document.TypeProtocol, document.TypeRule:
		return Implements
	}
	switch document.ComponentType(from) {
	case document.TypeAgent, document.TypeWorkflow, document.TypeBlueprint, document.TypeSkill:
		switch document.ComponentType(to) {
		case document.TypeSkill, document.TypeAgent, document.TypeWorkflow, document.TypeTemplate, document.TypeBlueprint:
			return DependsOn
		}
	}
	return Cites
}

func lessKey(a, b NodeKey) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	return a.ID < b.ID
}
