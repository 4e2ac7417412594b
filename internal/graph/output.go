package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Format selects the graph output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatDOT  Format = "dot"
)

// ParseFormat converts a flag value into a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatDOT, "graphviz":
		return FormatDOT, nil
	}
	return "", fmt.Errorf("unknown graph format %q (want json or dot)", s)
}

// Document is the serialized form of a graph.
type Document struct {
	Nodes  []*Node `json:"nodes"`
	Edges  []Edge  `json:"edges"`
	Report *Report `json:"report"`
}

// Snapshot returns the graph in a stable order for serialization.
func (g *Graph) Snapshot() Document {
	edges := append([]Edge(nil), g.Edges...)
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return lessKey(edges[i].From, edges[j].From)
		}
		if edges[i].Line != edges[j].Line {
			return edges[i].Line < edges[j].Line
		}
		if edges[i].Field != edges[j].Field {
			return edges[i].Field < edges[j].Field
		}
		return edges[i].Raw < edges[j].Raw
	})
	if edges == nil {
		edges = []Edge{}
	}
	return Document{Nodes: g.SortedNodes(), Edges: edges, Report: g.Report()}
}

// Write encodes g in the requested format.
func (g *Graph) Write(w io.Writer, format Format) error {
	switch format {
	case FormatDOT:
		return g.WriteDOT(w)
	default:
		return g.WriteJSON(w)
	}
}

// WriteJSON writes the graph as indented JSON.
func (g *Graph) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g.Snapshot())
}

// WriteDOT writes the graph in Graphviz DOT syntax. Dangling references are
// drawn as red dashed edges to a placeholder node.
func (g *Graph) WriteDOT(w io.Writer) error {
	snap := g.Snapshot()
	var b strings.Builder
	b.WriteString("digraph capabilities {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, fontname=\"Helvetica\"];\n")
	for _, n := range snap.Nodes {
		shape := "box"
		if n.Key.Type == FileType {
			shape = "note"
		}
		fmt.Fprintf(&b, "  %s [label=%s, shape=%s];\n", strconv.Quote(n.Key.String()), strconv.Quote(n.Key.ID+"\n("+n.Key.Type+")"), shape)
	}
	for _, e := range snap.Edges {
		switch {
		case e.External:
			continue
		case e.To.IsZero():
			missing := "missing:" + e.Raw
			fmt.Fprintf(&b, "  %s [label=%s, shape=plaintext, fontcolor=red];\n", strconv.Quote(missing), strconv.Quote(e.Raw))
			fmt.Fprintf(&b, "  %s -> %s [label=%s, color=red, style=dashed];\n", strconv.Quote(e.From.String()), strconv.Quote(missing), strconv.Quote(string(e.Confidence)))
		default:
			fmt.Fprintf(&b, "  %s -> %s [label=%s];\n", strconv.Quote(e.From.String()), strconv.Quote(e.To.String()), strconv.Quote(string(e.Kind)))
		}
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}
