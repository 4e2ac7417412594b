package schema

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/report"
)

func TestBuiltinSchemasCompile(t *testing.T) {
	store := builtinStore(t)
	for _, typ := range document.ValidTypes {
		t.Run(string(typ), func(t *testing.T) {
			s, err := store.Get(typ)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if len(s.RequiredFields()) == 0 {
				t.Error("builtin schema should require at least one field")
			}
			if _, err := s.compile(); err != nil {
				t.Fatalf("compile: %v", err)
			}
		})
	}
	if got := len(store.Types()); got != len(document.ValidTypes) {
		t.Errorf("Types() = %d, want %d", got, len(document.ValidTypes))
	}
}

func TestMarshalIndentKeepsSchemaDocument(t *testing.T) {
	s, err := builtinStore(t).Get(document.TypeSkill)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, err := s.MarshalIndent()
	if err != nil {
		t.Fatalf("MarshalIndent: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if _, ok := doc["required"]; !ok {
		t.Errorf("rendered schema lacks required: %s", data)
	}
}

func TestStoreDirectoryOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	yamlSchema := "title: Custom skill\nx-component-type: skill\ntype: object\nrequired: [name, owner]\nproperties:\n  owner:\n    type: string\n"
	if err := os.WriteFile(filepath.Join(dir, "skill.schema.yaml"), []byte(yamlSchema), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	s, err := store.Get(document.TypeSkill)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Title != "Custom skill" {
		t.Errorf("Title = %q, want directory schema", s.Title)
	}
	if s.Source != filepath.Join(dir, "skill.schema.yaml") {
		t.Errorf("Source = %q", s.Source)
	}

	agent, err := store.Get(document.TypeAgent)
	if err != nil {
		t.Fatalf("Get(agent): %v", err)
	}
	if agent.Source != "builtin:agent" {
		t.Errorf("agent Source = %q, want builtin", agent.Source)
	}
}

func TestStoreRejectsMismatchedSchemaFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "rule.schema.json"), []byte(`{"x-component-type":"agent","type":"object"}`), 0644); err != nil {
		t.Fatal(err)
	}
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Get(document.TypeRule); err == nil {
		t.Fatal("expected error for schema declaring another component type")
	}
}

func TestNewStoreMissingDirWithoutBuiltin(t *testing.T) {
	_, err := NewStore(filepath.Join(t.TempDir(), "nope"), WithBuiltin(false))
	if !errors.Is(err, report.ErrSchemaNotFound) {
		t.Fatalf("error = %v, want ErrSchemaNotFound", err)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("STRICT"); err != nil || m != ModeStrict {
		t.Errorf("ParseMode(STRICT) = %v, %v", m, err)
	}
	if m, err := ParseMode(""); err != nil || m != ModeFast {
		t.Errorf("ParseMode(\"\") = %v, %v", m, err)
	}
	if _, err := ParseMode("paranoid"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
