//go:build integration

package integration_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentx-labs/capreg/internal/config"
	"github.com/agentx-labs/capreg/internal/indexcache"
	"github.com/agentx-labs/capreg/internal/registry"
)

// setupCorpus creates a corpus covering every kind of reference the
// integrity check distinguishes. Returns the corpus root.
func setupCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	// --- Agents ---
	writeFile(t, root, "agents/reviewer.md", `---
name: reviewer
description: Reviews pull requests
skills: [lint]
---
# Reviewer

Uses [lint](../skills/quality/lint/SKILL.md) and [[skill:diff]].
Read the [Guide](guide.md) first.
`)
	writeFile(t, root, "agents/README.md", "# Agents\n\nNot a document.\n")

	// --- Skills across two pattern directories ---
	for _, dir := range []string{"quality", "scm"} {
		for i := 0; i < 5; i++ {
			name := dir + "-" + string(rune('a'+i))
			writeFile(t, root, "skills/"+dir+"/"+name+"/SKILL.md", "---\nname: "+name+"\ndescription: Skill "+name+"\n---\n# "+name+"\n")
		}
	}
	writeFile(t, root, "skills/quality/lint/SKILL.md", `---
name: lint
description: Runs every linter
tags: [quality]
---
# Lint
`)
	writeFile(t, root, "skills/scm/diff/SKILL.md", `---
name: diff
description: Shows what changed
---
# Diff
`)

	// --- Knowledge and canonical docs ---
	writeFile(t, root, "knowledge/go-style.json", `{"id": "go-style", "title": "Go style", "summary": "House Go style"}`)
	writeFile(t, root, "docs/guide.md", "# Guide\n")

	// --- Blueprint ---
	writeFile(t, root, "blueprints/service/blueprint.yaml", `name: service
description: A Go service
components:
  - "[[agent:reviewer]]"
  - "[[skill:lint]]"
`)
	return root
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", rel, err)
	}
	return path
}

// touch moves the modification time of path forward so signatures change
// even on file systems with coarse timestamps.
func touch(t *testing.T, path string) {
	t.Helper()
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("touching %s: %v", path, err)
	}
}

func openRegistry(t *testing.T, root string) *registry.Registry {
	t.Helper()
	c, err := config.LoadCorpus(root, "")
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	r, err := registry.New(c, registry.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return r
}

// transitionLog collects cache transitions.
type transitionLog struct {
	mu  sync.Mutex
	all []indexcache.Transition
}

func (l *transitionLog) record(tr indexcache.Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, tr)
}

func (l *transitionLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = nil
}

func (l *transitionLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var parts []string
	for _, tr := range l.all {
		parts = append(parts, tr.Section+":"+string(tr.From)+"->"+string(tr.To))
	}
	return strings.Join(parts, " ")
}

func (l *transitionLog) snapshot() []indexcache.Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]indexcache.Transition(nil), l.all...)
}
