package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/report"
)

type fakeLoader struct {
	docs  map[document.ComponentType][]*document.Document
	fail  map[document.ComponentType]report.Batch
	err   error
	calls chan document.ComponentType
}

func (f *fakeLoader) Documents(ctx context.Context, t document.ComponentType) ([]*document.Document, report.Batch, error) {
	if f.calls != nil {
		f.calls <- t
	}
	if f.err != nil {
		return nil, report.Batch{}, f.err
	}
	return f.docs[t], f.fail[t], nil
}

func doc(rel string, typ document.ComponentType, fields document.Fields, body string) *document.Document {
	return &document.Document{
		ID:      document.IDFromPath(rel, document.MarkerFiles),
		Type:    typ,
		RelPath: rel,
		Format:  document.FormatOf(rel),
		Fields:  fields,
		Body:    body,
	}
}

func tenSkills() []*document.Document {
	var docs []*document.Document
	for i := 0; i < 10; i++ {
		dir := "skills/chain"
		if i%2 == 1 {
			dir = "skills/review"
		}
		rel := fmt.Sprintf("%s/skill-%02d/SKILL.md", dir, 9-i)
		docs = append(docs, doc(rel, document.TypeSkill, document.Fields{
			"name":        fmt.Sprintf("Skill %02d", 9-i),
			"description": "Does thing " + fmt.Sprint(i),
		}, ""))
	}
	return docs
}

func TestGenerateTenSkillsSorted(t *testing.T) {
	g := NewGenerator(&fakeLoader{docs: map[document.ComponentType][]*document.Document{document.TypeSkill: tenSkills()}})

	cat, batch, err := g.Generate(context.Background(), document.TypeSkill)
	require.NoError(t, err)
	assert.False(t, batch.HasFailures())
	require.Equal(t, 10, cat.Len())

	for i, e := range cat.Entries {
		assert.Equal(t, fmt.Sprintf("Skill %02d", i), e.Name)
		assert.Equal(t, fmt.Sprintf("skill-%02d", i), e.ID)
		assert.NotEmpty(t, e.Location)
		assert.Equal(t, "skill", e.Type)
	}
}

func TestGenerateIsByteIdentical(t *testing.T) {
	loader := &fakeLoader{docs: map[document.ComponentType][]*document.Document{document.TypeSkill: tenSkills()}}
	g := NewGenerator(loader)

	render := func() []byte {
		cat, _, err := g.Generate(context.Background(), document.TypeSkill)
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, cat.WriteJSON(&buf))
		return buf.Bytes()
	}
	first := render()
	second := render()
	assert.Equal(t, string(first), string(second))
	assert.NotContains(t, string(first), "computed")
}

func TestEntryForFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		doc      *document.Document
		wantName string
		wantDesc string
		wantVer  string
	}{
		{
			name:     "title and summary",
			doc:      doc("knowledge/auth.json", document.TypeKnowledge, document.Fields{"title": "Auth flows", "summary": "How login works\nmore", "version": int64(2)}, ""),
			wantName: "Auth flows",
			wantDesc: "How login works",
			wantVer:  "2",
		},
		{
			name:     "heading fallback",
			doc:      doc("workflows/release.md", document.TypeWorkflow, document.Fields{}, "Intro text\n\n## Release the **train**\n\nBody"),
			wantName: "release",
			wantDesc: "Release the train",
		},
		{
			name:     "blank description skipped",
			doc:      doc("agents/a.md", document.TypeAgent, document.Fields{"description": "  ", "purpose": "Review code", "version": "1.0.0"}, "# Heading"),
			wantName: "a",
			wantDesc: "Review code",
			wantVer:  "1.0.0",
		},
		{
			name:     "nothing",
			doc:      doc("templates/t.json", document.TypeTemplate, document.Fields{}, ""),
			wantName: "t",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := EntryFor(tt.doc)
			assert.Equal(t, tt.wantName, e.Name)
			assert.Equal(t, tt.wantDesc, e.Description)
			assert.Equal(t, tt.wantVer, e.Version)
			assert.Equal(t, tt.doc.RelPath, e.Location)
		})
	}
}

func TestGenerateAllMergesBatches(t *testing.T) {
	failed := report.Batch{}
	failed.Add(report.Item{Path: "agents/broken.md", Type: "agent", Kind: report.KindMalformedDocument, Messages: []string{"bad frontmatter"}})
	loader := &fakeLoader{
		docs: map[document.ComponentType][]*document.Document{
			document.TypeSkill: tenSkills(),
			document.TypeAgent: {doc("agents/reviewer.md", document.TypeAgent, document.Fields{"name": "reviewer"}, "")},
		},
		fail: map[document.ComponentType]report.Batch{document.TypeAgent: failed},
	}

	cats, batch, err := NewGenerator(loader, WithWorkers(3)).GenerateAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, cats, len(document.ValidTypes))
	assert.Equal(t, 10, cats[document.TypeSkill].Len())
	assert.Equal(t, 1, cats[document.TypeAgent].Len())
	assert.Equal(t, 0, cats[document.TypeRule].Len())
	require.Len(t, batch.Failed(), 1)
	assert.Equal(t, "agents/broken.md", batch.Failed()[0].Path)

	combined := Combined(cats)
	assert.Equal(t, 11, combined.Len())
	assert.Equal(t, "reviewer", combined.Entries[0].Name)
	assert.Equal(t, "agent:reviewer", combined.Entries[0].Key())
}

func TestGenerateAllStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewGenerator(&fakeLoader{}).GenerateAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateLoaderError(t *testing.T) {
	boom := errors.New("corpus root missing")
	_, _, err := NewGenerator(&fakeLoader{err: boom}).Generate(context.Background(), document.TypeSkill)
	assert.ErrorIs(t, err, boom)
}

func TestCatalogJSONRoundTrip(t *testing.T) {
	cat := &Catalog{Type: document.TypeAgent, Entries: []Entry{
		{ID: "a", Name: "Alpha", Location: "agents/a.md", Type: "agent"},
		{ID: "a", Name: "Alpha", Location: "agents/team/a.md", Type: "agent"},
		{ID: "b", Name: "beta", Location: "agents/b.md", Type: "agent", Tags: []string{"x"}},
	}}
	data, err := json.Marshal(cat)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"agents/team/a.md":{`)

	var back Catalog
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, cat.Entries, back.Entries)
}

func TestSearch(t *testing.T) {
	cat := &Catalog{Entries: []Entry{
		{ID: "lint", Name: "Lint", Description: "Static checks", Type: "skill", Tags: []string{"go"}},
		{ID: "reviewer", Name: "Reviewer", Description: "Reviews Go code", Type: "agent"},
	}}
	assert.Len(t, cat.Search("go"), 2)
	assert.Len(t, cat.Search("GO static"), 1)
	assert.Len(t, cat.Search(""), 2)
	assert.Empty(t, cat.Search("python"))
}

func TestCatalogOutputIndependentOfInputOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		docs := tenSkills()
		perm := rapid.Permutation(docs).Draw(rt, "order")

		render := func(in []*document.Document) string {
			g := NewGenerator(&fakeLoader{docs: map[document.ComponentType][]*document.Document{document.TypeSkill: in}})
			cat, _, err := g.Generate(context.Background(), document.TypeSkill)
			if err != nil {
				rt.Fatalf("Generate: %v", err)
			}
			var buf bytes.Buffer
			if err := cat.WriteJSON(&buf); err != nil {
				rt.Fatalf("WriteJSON: %v", err)
			}
			return buf.String()
		}
		if a, b := render(docs), render(perm); a != b {
			rt.Fatalf("output depends on input order:\n%s\n%s", a, b)
		}
	})
}
