package registry

import (
	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/graph"
	"github.com/agentx-labs/capreg/internal/report"
)

// Located is a discovered document file.
type Located struct {
	RelPath string                 `json:"path"` // corpus-relative, slash separated
	Type    document.ComponentType `json:"type"`
}

// Integrity is the combined result of validating every document and checking
// the reference graph.
type Integrity struct {
	OK      bool          `json:"ok"`
	Checked int           `json:"checked"`
	Passed  int           `json:"passed"`
	Failed  []report.Item `json:"failed"`
	Graph   *graph.Report `json:"graph"`
	// Batch holds every validation item, passed ones included.
	Batch report.Batch `json:"-"`
}

// DependencyNode is one node of a depends-on tree.
type DependencyNode struct {
	Key      graph.NodeKey     `json:"key"`
	Path     string            `json:"path,omitempty"`
	Kind     graph.EdgeKind    `json:"kind,omitempty"` // edge from the parent
	Children []*DependencyNode `json:"children,omitempty"`
	Deduped  bool              `json:"deduped,omitempty"` // already expanded earlier in the tree
	Dangling string            `json:"dangling,omitempty"`
}
