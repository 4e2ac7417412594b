//go:build integration

package integration_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/graph"
	"github.com/agentx-labs/capreg/internal/indexcache"
	"github.com/agentx-labs/capreg/internal/registry"
	"github.com/agentx-labs/capreg/internal/report"
	"github.com/agentx-labs/capreg/internal/resolver"
)

// TestFullFlowCleanCorpus validates, catalogs and checks a corpus with no
// problems: every document passes and the graph has no findings besides
// advisory rewrites.
func TestFullFlowCleanCorpus(t *testing.T) {
	root := setupCorpus(t)
	r := openRegistry(t, root)
	ctx := context.Background()

	batch, err := r.ValidateAll(ctx)
	if err != nil {
		t.Fatalf("ValidateAll: %v", err)
	}
	if batch.HasFailures() {
		var sb strings.Builder
		batch.Print(&sb)
		t.Fatalf("expected a clean corpus, got:\n%s", sb.String())
	}
	checked, _, _ := batch.Counts()
	// 1 agent + 12 skills + 1 knowledge + 1 blueprint
	if checked != 15 {
		t.Errorf("checked %d documents, want 15", checked)
	}

	in, err := r.CheckIntegrity(ctx)
	if err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}
	if !in.OK {
		t.Errorf("integrity failed: %+v", in.Graph)
	}
	if len(in.Graph.Rewrites) != 1 || in.Graph.Rewrites[0].Rewrite != "../docs/guide.md" {
		t.Errorf("expected one rewrite to ../docs/guide.md, got %+v", in.Graph.Rewrites)
	}
}

// A document missing a required field is reported against that field.
func TestMissingRequiredFieldIsNamed(t *testing.T) {
	root := setupCorpus(t)
	writeFile(t, root, "skills/chain/foo/SKILL.md", "---\ndescription: no name\n---\n")
	r := openRegistry(t, root)

	it := r.ValidateFile("skills/chain/foo/SKILL.md", "")
	if it.Kind != report.KindStructuralViolation {
		t.Fatalf("kind = %s, want %s", it.Kind, report.KindStructuralViolation)
	}
	if len(it.Messages) != 1 || !strings.HasPrefix(it.Messages[0], "name:") {
		t.Errorf("messages = %v, want one naming the name field", it.Messages)
	}
}

// A bare file name found only under a canonical directory resolves there
// and is flagged as non-conforming.
func TestLinkResolvesThroughCanonicalDir(t *testing.T) {
	r := openRegistry(t, setupCorpus(t))
	res, err := r.Resolver()
	if err != nil {
		t.Fatalf("Resolver: %v", err)
	}

	ref := res.Resolve("guide.md", "agents/reviewer.md")
	if ref.Confidence != resolver.ExactNormalized || ref.Target != "docs/guide.md" {
		t.Errorf("Resolve(guide.md) = %s %q, want exact-normalized docs/guide.md", ref.Confidence, ref.Target)
	}
}

// A bare name matching files in two directories is ambiguous, never a
// silent pick.
func TestAmbiguousBareName(t *testing.T) {
	root := setupCorpus(t)
	writeFile(t, root, "docs/a/config.md", "# A\n")
	writeFile(t, root, "docs/b/config.md", "# B\n")
	writeFile(t, root, "agents/planner.md", "---\nname: planner\ndescription: Plans\n---\nSee [config](config.md).\n")
	r := openRegistry(t, root)

	res, err := r.Resolver()
	if err != nil {
		t.Fatalf("Resolver: %v", err)
	}
	ref := res.Resolve("config.md", "agents/planner.md")
	if ref.Confidence != resolver.Ambiguous {
		t.Fatalf("confidence = %s, want ambiguous", ref.Confidence)
	}
	want := []string{"docs/a/config.md", "docs/b/config.md"}
	if !reflect.DeepEqual(ref.Candidates, want) {
		t.Errorf("candidates = %v, want %v", ref.Candidates, want)
	}
	if !errors.Is(ref.Err(), report.ErrAmbiguousReference) {
		t.Errorf("Err() = %v, want ErrAmbiguousReference", ref.Err())
	}

	in, err := r.CheckIntegrity(context.Background())
	if err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}
	if in.OK || len(in.Graph.Ambiguous) != 1 {
		t.Errorf("expected one ambiguous finding, got %+v", in.Graph.Ambiguous)
	}
}

// The skill catalog covers every skill directory, sorted by name.
func TestSkillCatalogAcrossDirectories(t *testing.T) {
	root := setupCorpus(t)
	r := openRegistry(t, root)

	cat, _, err := r.Catalog(context.Background(), document.TypeSkill)
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if cat.Len() != 12 {
		t.Fatalf("catalog has %d entries, want 12", cat.Len())
	}
	for i, e := range cat.Entries {
		if e.Location == "" {
			t.Errorf("entry %s has no location", e.ID)
		}
		if i > 0 && cat.Entries[i-1].ID > e.ID {
			t.Errorf("entries out of order: %s before %s", cat.Entries[i-1].ID, e.ID)
		}
	}
}

// Editing one skill recomputes only the skill catalog, even after the
// cache is reopened from disk.
func TestEditRecomputesOnlyAffectedSection(t *testing.T) {
	root := setupCorpus(t)
	r := openRegistry(t, root)
	ctx := context.Background()

	cache, err := r.OpenCache(nil)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	if err := cache.RefreshStale(ctx); err != nil {
		t.Fatalf("RefreshStale: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	touch(t, writeFile(t, root, "skills/quality/lint/SKILL.md", "---\nname: lint\ndescription: Runs linters fast\n---\n"))

	log := &transitionLog{}
	cache, err = r.OpenCache(log.record)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	defer cache.Close()

	if st, _ := cache.State("agent_catalog"); st != indexcache.Fresh {
		t.Errorf("agent_catalog = %s after restart, want fresh", st)
	}
	if st, _ := cache.State("skill_catalog"); st != indexcache.Stale {
		t.Errorf("skill_catalog = %s after restart, want stale", st)
	}

	log.reset()
	if _, err := cache.Get(ctx, "skill_catalog"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := []indexcache.Transition{
		{Section: "skill_catalog", From: indexcache.Stale, To: indexcache.Computing},
		{Section: "skill_catalog", From: indexcache.Computing, To: indexcache.Fresh},
	}
	if got := log.snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("transitions = %s", log)
	}
}

// TestDependencyTreeOfAgent follows depends-on edges from the reviewer.
func TestDependencyTreeOfAgent(t *testing.T) {
	r := openRegistry(t, setupCorpus(t))
	g, _, err := r.BuildGraph(context.Background())
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	tree, err := registry.DependencyTree(g, graph.NodeKey{Type: "agent", ID: "reviewer"}, graph.DependsOn)
	if err != nil {
		t.Fatalf("DependencyTree: %v", err)
	}

	var got []string
	for _, k := range registry.FlattenTree(tree) {
		got = append(got, k.String())
	}
	want := []string{"skill:diff", "skill:lint", "agent:reviewer"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FlattenTree = %v, want %v", got, want)
	}
}
