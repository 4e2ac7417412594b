package registry

import (
	"fmt"
	"io"
	"strings"

	"github.com/agentx-labs/capreg/internal/graph"
)

// DependencyTree expands the outgoing edges of key recursively. Edges of
// kinds not listed are skipped; no kinds means every kind. A node reached a
// second time is marked Deduped and not expanded again, which also ends
// cycles. Dangling references appear as leaves.
func DependencyTree(g *graph.Graph, key graph.NodeKey, kinds ...graph.EdgeKind) (*DependencyNode, error) {
	n, ok := g.Nodes[key]
	if !ok {
		return nil, fmt.Errorf("no node %s", key)
	}
	keep := make(map[graph.EdgeKind]bool, len(kinds))
	for _, k := range kinds {
		keep[k] = true
	}
	seen := make(map[graph.NodeKey]bool)
	return buildNode(g, &DependencyNode{Key: key, Path: n.Path}, keep, seen), nil
}

func buildNode(g *graph.Graph, node *DependencyNode, keep map[graph.EdgeKind]bool, seen map[graph.NodeKey]bool) *DependencyNode {
	if seen[node.Key] {
		node.Deduped = true
		return node
	}
	seen[node.Key] = true

	for _, e := range g.Outgoing(node.Key) {
		if e.External || (len(keep) > 0 && !keep[e.Kind]) {
			continue
		}
		if e.Dangling() {
			node.Children = append(node.Children, &DependencyNode{Kind: e.Kind, Dangling: e.Raw})
			continue
		}
		to, ok := g.Nodes[e.To]
		if !ok {
			continue // ambiguous; reported by the integrity check
		}
		child := &DependencyNode{Key: to.Key, Path: to.Path, Kind: e.Kind}
		node.Children = append(node.Children, buildNode(g, child, keep, seen))
	}
	return node
}

// FlattenTree returns the keys of the tree with dependencies before their
// dependents, each once. Dangling leaves are left out.
func FlattenTree(root *DependencyNode) []graph.NodeKey {
	seen := make(map[graph.NodeKey]bool)
	var result []graph.NodeKey
	flattenRecursive(root, seen, &result)
	return result
}

func flattenRecursive(node *DependencyNode, seen map[graph.NodeKey]bool, result *[]graph.NodeKey) {
	if node == nil || node.Deduped || node.Dangling != "" || seen[node.Key] {
		return
	}
	seen[node.Key] = true
	for _, child := range node.Children {
		flattenRecursive(child, seen, result)
	}
	*result = append(*result, node.Key)
}

// PrintTree writes the tree with box-drawing indentation.
func PrintTree(w io.Writer, root *DependencyNode) {
	fmt.Fprintln(w, label(root))
	printChildren(w, root.Children, "")
}

func printChildren(w io.Writer, children []*DependencyNode, prefix string) {
	for i, c := range children {
		branch, next := "├── ", "│   "
		if i == len(children)-1 {
			branch, next = "└── ", "    "
		}
		fmt.Fprintf(w, "%s%s%s\n", prefix, branch, label(c))
		printChildren(w, c.Children, prefix+next)
	}
}

func label(n *DependencyNode) string {
	var b strings.Builder
	if n.Kind != "" {
		b.WriteString(string(n.Kind) + " ")
	}
	if n.Dangling != "" {
		b.WriteString("missing " + n.Dangling)
		return b.String()
	}
	b.WriteString(n.Key.String())
	if n.Path != "" {
		b.WriteString(" (" + n.Path + ")")
	}
	if n.Deduped {
		b.WriteString(" *")
	}
	return b.String()
}
