package schema

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/report"
)

func builtinStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func markdownDoc(t *testing.T, rel string, typ document.ComponentType, content string) *document.Document {
	t.Helper()
	fields, body, err := document.Parse([]byte(content), document.FormatOf(rel))
	if err != nil {
		t.Fatalf("Parse(%s): %v", rel, err)
	}
	return &document.Document{
		ID:      document.IDFromPath(rel, document.MarkerFiles),
		Type:    typ,
		RelPath: rel,
		Format:  document.FormatOf(rel),
		Raw:     []byte(content),
		Fields:  fields,
		Body:    body,
	}
}

func TestValidateSkillMissingName(t *testing.T) {
	doc := markdownDoc(t, "skills/chain/foo/SKILL.md", document.TypeSkill, "---\ndescription: Chains things\n---\n# Foo\n")

	for _, mode := range []Mode{ModeFast, ModeStrict} {
		t.Run(string(mode), func(t *testing.T) {
			result, err := NewValidator(builtinStore(t), mode).Validate(doc, document.TypeSkill)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if result.Valid {
				t.Fatal("expected invalid result")
			}
			found := false
			for _, issue := range result.Issues {
				if issue.Path == "name" {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an issue naming field name, got %v", result.Messages())
			}
			if !strings.HasPrefix(result.Messages()[0], "name: ") {
				t.Errorf("message = %q, want prefix %q", result.Messages()[0], "name: ")
			}
		})
	}
}

func TestValidateValidSkill(t *testing.T) {
	doc := markdownDoc(t, "skills/chain/foo/SKILL.md", document.TypeSkill, "---\nname: foo\ndescription: Chains things\nversion: 1.2.0\ntype: skill\n---\n")

	for _, mode := range []Mode{ModeFast, ModeStrict} {
		result, err := NewValidator(builtinStore(t), mode).Validate(doc, document.TypeSkill)
		if err != nil {
			t.Fatalf("%s: Validate: %v", mode, err)
		}
		if !result.Valid {
			t.Errorf("%s: expected valid, got %v", mode, result.Messages())
		}
	}
}

func TestValidateStrictEnforcesPattern(t *testing.T) {
	doc := markdownDoc(t, "agents/reviewer.md", document.TypeAgent, "---\nname: Code Reviewer\ndescription: Reviews code\n---\n")

	fast, err := NewValidator(builtinStore(t), ModeFast).Validate(doc, document.TypeAgent)
	if err != nil {
		t.Fatalf("fast: %v", err)
	}
	if !fast.Valid {
		t.Errorf("fast mode ignores patterns, got %v", fast.Messages())
	}

	strict, err := NewValidator(builtinStore(t), ModeStrict).Validate(doc, document.TypeAgent)
	if err != nil {
		t.Fatalf("strict: %v", err)
	}
	if strict.Valid {
		t.Fatal("strict mode should reject the name pattern")
	}
	if strict.Issues[0].Path != "name" || strict.Issues[0].Keyword != "pattern" {
		t.Errorf("issue = %+v, want name/pattern", strict.Issues[0])
	}
}

func TestValidateIssuesOrderedByPath(t *testing.T) {
	doc := markdownDoc(t, "workflows/release.md", document.TypeWorkflow,
		"---\ntags: [1]\nsteps:\n  - agent: builder\n---\n")

	for _, mode := range []Mode{ModeFast, ModeStrict} {
		result, err := NewValidator(builtinStore(t), mode).Validate(doc, document.TypeWorkflow)
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		var paths []string
		for _, issue := range result.Issues {
			paths = append(paths, issue.Path)
		}
		want := []string{"description", "name", "steps.0.id", "tags.0"}
		if !reflect.DeepEqual(paths, want) {
			t.Errorf("%s: issue paths = %v, want %v", mode, paths, want)
		}
	}
}

func TestValidateBooleanIsNotInteger(t *testing.T) {
	doc := markdownDoc(t, "rules/naming.md", document.TypeRule, "---\nname: naming\ndescription: Names\npriority: true\n---\n")

	for _, mode := range []Mode{ModeFast, ModeStrict} {
		result, err := NewValidator(builtinStore(t), mode).Validate(doc, document.TypeRule)
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		if result.Valid {
			t.Errorf("%s: boolean accepted as integer", mode)
		}
	}
}

func TestValidateTypeTagMismatch(t *testing.T) {
	doc := markdownDoc(t, "agents/reviewer.md", document.TypeAgent, "---\nname: reviewer\ndescription: Reviews\ntype: skill\n---\n")

	_, err := NewValidator(builtinStore(t), ModeFast).Validate(doc, document.TypeAgent)
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	var tm *TagMismatchError
	if !errors.As(err, &tm) {
		t.Fatalf("error %T, want *TagMismatchError", err)
	}
	if tm.Declared != "skill" || tm.Expected != document.TypeAgent {
		t.Errorf("mismatch = %+v", tm)
	}
	if !errors.Is(err, report.ErrTypeMismatch) {
		t.Error("mismatch should wrap ErrTypeMismatch")
	}
	if errors.Is(err, report.ErrStructuralViolation) {
		t.Error("mismatch must not be a generic structural violation")
	}
}

func TestValidateVersionTag(t *testing.T) {
	tests := []struct {
		version string
		valid   bool
	}{
		{"1.0.0", true},
		{"1.9.3", true},
		{"2.0.0", false},
		{"not-a-version", false},
	}
	for _, tt := range tests {
		doc := markdownDoc(t, "agents/a.md", document.TypeAgent,
			"---\nname: a\ndescription: A\nschema_version: \""+tt.version+"\"\n---\n")
		result, err := NewValidator(builtinStore(t), ModeFast).Validate(doc, document.TypeAgent)
		if err != nil {
			t.Fatalf("%s: %v", tt.version, err)
		}
		if result.Valid != tt.valid {
			t.Errorf("schema_version %s: valid = %v, want %v (%v)", tt.version, result.Valid, tt.valid, result.Messages())
		}
		if !tt.valid && result.Issues[0].Path != "schema_version" {
			t.Errorf("schema_version %s: issue path = %q", tt.version, result.Issues[0].Path)
		}
	}
}

func TestValidateUnknownType(t *testing.T) {
	doc := markdownDoc(t, "agents/a.md", document.TypeAgent, "---\nname: a\n---\n")
	_, err := NewValidator(builtinStore(t), ModeFast).ValidateType(doc, "persona")
	if !errors.Is(err, report.ErrUnknownComponentType) {
		t.Fatalf("error = %v, want ErrUnknownComponentType", err)
	}
	if !strings.Contains(err.Error(), "skill") {
		t.Errorf("error should list valid types: %v", err)
	}
}

func TestValidateSchemaNotFound(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "agent.schema.json"), []byte(`{"type":"object","required":["name"]}`), 0644); err != nil {
		t.Fatal(err)
	}
	store, err := NewStore(dir, WithBuiltin(false))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	doc := markdownDoc(t, "skills/x/y/SKILL.md", document.TypeSkill, "---\nname: y\n---\n")
	_, err = NewValidator(store, ModeFast).Validate(doc, document.TypeSkill)
	if !errors.Is(err, report.ErrSchemaNotFound) {
		t.Fatalf("error = %v, want ErrSchemaNotFound", err)
	}

	agent := markdownDoc(t, "agents/a.md", document.TypeAgent, "---\nname: a\n---\n")
	result, err := NewValidator(store, ModeFast).Validate(agent, document.TypeAgent)
	if err != nil {
		t.Fatalf("agent Validate: %v", err)
	}
	if !result.Valid {
		t.Errorf("agent should be valid against the directory schema: %v", result.Messages())
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	doc := markdownDoc(t, "workflows/w.md", document.TypeWorkflow, "---\nname: w\nsteps:\n  - id: one\n---\n")
	before := doc.Fields.Clone()

	for _, mode := range []Mode{ModeFast, ModeStrict} {
		if _, err := NewValidator(builtinStore(t), mode).Validate(doc, document.TypeWorkflow); err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
	}
	if !reflect.DeepEqual(before, doc.Fields) {
		t.Errorf("fields changed: before %v after %v", before, doc.Fields)
	}
}

func TestIssueStringRoot(t *testing.T) {
	if got := (Issue{Message: "got array, want object"}).String(); got != "(root): got array, want object" {
		t.Errorf("String() = %q", got)
	}
	if got := (Issue{Path: "meta.owner", Message: "missing required field"}).String(); got != "meta.owner: missing required field" {
		t.Errorf("String() = %q", got)
	}
}

func TestResultErr(t *testing.T) {
	r := &Result{Valid: false, Issues: []Issue{{Path: "name", Message: "missing required field"}}}
	if !errors.Is(r.Err(), report.ErrStructuralViolation) {
		t.Error("invalid result should wrap ErrStructuralViolation")
	}
	if (&Result{Valid: true}).Err() != nil {
		t.Error("valid result should have nil Err")
	}
}
