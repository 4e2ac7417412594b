package scaffold

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"go.yaml.in/yaml/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/schema"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// DefaultGroup is the skill pattern directory used when none is given.
const DefaultGroup = "general"

// Request describes the document to create.
type Request struct {
	Type        document.ComponentType
	Name        string // kebab-case id
	Group       string // skill pattern directory; skills only
	Description string
	Force       bool // overwrite an existing file
}

// Data holds the template variables.
type Data struct {
	Name        string
	Title       string
	Type        string
	Description string
	Frontmatter string
}

// Result holds the outcome of a generation.
type Result struct {
	Path     string   `json:"path"`               // corpus-relative
	Warnings []string `json:"warnings,omitempty"` // validation messages for the generated document
}

// DefaultPath returns the conventional corpus-relative location of a new
// document.
func DefaultPath(t document.ComponentType, name, group string) string {
	switch t {
	case document.TypeSkill:
		if group == "" {
			group = DefaultGroup
		}
		return path.Join("skills", group, name, "SKILL.md")
	case document.TypeKnowledge:
		return path.Join("knowledge", name+".json")
	case document.TypeBlueprint:
		return path.Join("blueprints", name, "blueprint.yaml")
	case document.TypeAttestation:
		return path.Join("attestations", name+".yaml")
	default:
		return path.Join(t.Plural(), name+".md")
	}
}

// Generate writes a new document under root and validates it with v.
// Validation problems are returned as warnings, not errors.
func Generate(root string, req Request, s *schema.Schema, v *schema.Validator) (*Result, error) {
	if !namePattern.MatchString(req.Name) {
		return nil, fmt.Errorf("invalid name %q: use lowercase letters, digits and hyphens", req.Name)
	}
	rel := DefaultPath(req.Type, req.Name, req.Group)
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if _, err := os.Stat(abs); err == nil && !req.Force {
		return nil, fmt.Errorf("%s already exists; use --force to overwrite", rel)
	}

	title := cases.Title(language.English).String(strings.ReplaceAll(req.Name, "-", " "))
	desc := req.Description
	if desc == "" {
		desc = fmt.Sprintf("%s %s.", title, req.Type)
	}
	fields := initialFields(s, req.Name, title, desc)

	content, err := render(document.FormatOf(rel), Data{
		Name:        req.Name,
		Title:       title,
		Type:        string(req.Type),
		Description: desc,
	}, fields)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("creating directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, content, 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", rel, err)
	}

	result := &Result{Path: rel}
	doc, err := document.Load(document.Source{Root: root, RelPath: rel, Type: req.Type})
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("could not read back the document: %v", err))
		return result, nil
	}
	res, err := v.Validate(doc, req.Type)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("could not validate the document: %v", err))
		return result, nil
	}
	result.Warnings = append(result.Warnings, res.Messages()...)
	return result, nil
}

// field is one generated key in output order.
type field struct {
	key   string
	value any
}

// initialFields returns name first, then every required field, then the
// schema version when the schema constrains it.
func initialFields(s *schema.Schema, name, title, desc string) []field {
	var out []field
	seen := make(map[string]bool)
	add := func(k string, v any) {
		if !seen[k] {
			seen[k] = true
			out = append(out, field{k, v})
		}
	}

	var props map[string]*schema.Node
	if s.Root != nil {
		props = s.Root.Properties
	}
	if _, ok := props["name"]; ok {
		add("name", name)
	}
	for _, k := range s.RequiredFields() {
		add(k, placeholder(k, props[k], name, title, desc))
	}
	if s.VersionConstraint != nil {
		add(s.VersionField, "1.0.0")
	}
	return out
}

func placeholder(key string, n *schema.Node, name, title, desc string) any {
	switch key {
	case "name", "id":
		return name
	case "title":
		return title
	case "description", "summary":
		return desc
	}
	if n == nil {
		return ""
	}
	if len(n.Enum) > 0 {
		return n.Enum[0]
	}
	kind := schema.KindString
	if len(n.Kinds) > 0 {
		kind = n.Kinds[0]
	}
	switch kind {
	case schema.KindInteger, schema.KindNumber:
		if n.Minimum != nil {
			return *n.Minimum
		}
		return 0
	case schema.KindBoolean:
		return false
	case schema.KindArray:
		return []any{}
	case schema.KindObject:
		return map[string]any{}
	}
	if strings.HasSuffix(key, "_at") {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return "TODO " + strings.ReplaceAll(key, "_", " ")
}

func render(format document.Format, data Data, fields []field) ([]byte, error) {
	if format == document.FormatJSON {
		m := make(map[string]any, len(fields))
		for _, f := range fields {
			m[f.key] = f.value
		}
		out, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	}

	fm, err := orderedYAML(fields)
	if err != nil {
		return nil, err
	}
	data.Frontmatter = fm

	name := "markdown.tmpl"
	if format == document.FormatYAML {
		name = "yaml.tmpl"
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("executing template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// orderedYAML encodes fields as a YAML mapping in the given order.
func orderedYAML(fields []field) (string, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range fields {
		var val yaml.Node
		if err := val.Encode(f.value); err != nil {
			return "", fmt.Errorf("encoding %s: %w", f.key, err)
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: f.key}, &val)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
