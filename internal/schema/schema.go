package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentx-labs/capreg/internal/document"
)

// Kind is a coarse JSON value kind.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindNull    Kind = "null"
)

// Node is one schema level: the constraints on a single value.
type Node struct {
	Kinds       []Kind
	Required    []string
	Properties  map[string]*Node
	Items       *Node
	Pattern     *regexp.Regexp
	Enum        []any
	Minimum     *float64
	Maximum     *float64
	MinLength   *int
	MaxLength   *int
	MinItems    *int
	MaxItems    *int
	Description string
}

// Schema is the contract for one component type.
type Schema struct {
	Type              document.ComponentType
	Title             string
	TypeField         string // field carrying the declared type tag
	VersionField      string // field carrying the declared schema version
	VersionConstraint *semver.Constraints
	Root              *Node
	Source            string // file path, or "builtin:<type>"

	raw         map[string]any
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
}

// RequiredFields returns the top-level required field names in schema order.
func (s *Schema) RequiredFields() []string {
	if s.Root == nil {
		return nil
	}
	return append([]string(nil), s.Root.Required...)
}

// PropertyNames returns the top-level property names, sorted.
func (s *Schema) PropertyNames() []string {
	if s.Root == nil {
		return nil
	}
	names := make([]string, 0, len(s.Root.Properties))
	for k := range s.Root.Properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// MarshalIndent renders the schema document as indented JSON.
func (s *Schema) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(s.raw, "", "  ")
}

// parseSchema builds a Schema from a decoded schema document.
func parseSchema(t document.ComponentType, source string, raw map[string]any) (*Schema, error) {
	s := &Schema{
		Type:         t,
		Source:       source,
		TypeField:    "type",
		VersionField: "schema_version",
		raw:          raw,
	}
	if v, ok := raw["title"].(string); ok {
		s.Title = v
	}
	if v, ok := raw["x-component-type"].(string); ok && v != string(t) {
		return nil, fmt.Errorf("schema %s declares component type %q, want %q", source, v, t)
	}
	if v, ok := raw["x-type-field"].(string); ok && v != "" {
		s.TypeField = v
	}
	if v, ok := raw["x-version-field"].(string); ok && v != "" {
		s.VersionField = v
	}
	if v, ok := raw["x-version-constraint"].(string); ok && v != "" {
		c, err := semver.NewConstraint(v)
		if err != nil {
			return nil, fmt.Errorf("schema %s: parsing x-version-constraint %q: %w", source, v, err)
		}
		s.VersionConstraint = c
	}

	root, err := parseNode(raw, "")
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", source, err)
	}
	s.Root = root
	return s, nil
}

func parseNode(m map[string]any, at string) (*Node, error) {
	n := &Node{}
	if d, ok := m["description"].(string); ok {
		n.Description = d
	}

	switch tv := m["type"].(type) {
	case nil:
	case string:
		n.Kinds = []Kind{Kind(tv)}
	case []any:
		for _, item := range tv {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: type list must contain strings", label(at))
			}
			n.Kinds = append(n.Kinds, Kind(s))
		}
	default:
		return nil, fmt.Errorf("%s: type must be a string or list", label(at))
	}
	for _, k := range n.Kinds {
		switch k {
		case KindString, KindInteger, KindNumber, KindBoolean, KindArray, KindObject, KindNull:
		default:
			return nil, fmt.Errorf("%s: unsupported type %q", label(at), k)
		}
	}

	if req, ok := m["required"].([]any); ok {
		for _, item := range req {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: required must list strings", label(at))
			}
			n.Required = append(n.Required, s)
		}
	}

	if props, ok := m["properties"].(map[string]any); ok {
		n.Properties = make(map[string]*Node, len(props))
		for name, pv := range props {
			pm, ok := pv.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s: property schema must be an object", label(join(at, name)))
			}
			child, err := parseNode(pm, join(at, name))
			if err != nil {
				return nil, err
			}
			n.Properties[name] = child
		}
	}

	if items, ok := m["items"].(map[string]any); ok {
		child, err := parseNode(items, join(at, "*"))
		if err != nil {
			return nil, err
		}
		n.Items = child
	}

	if p, ok := m["pattern"].(string); ok {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid pattern %q: %w", label(at), p, err)
		}
		n.Pattern = re
	}
	if e, ok := m["enum"].([]any); ok {
		n.Enum = e
	}

	n.Minimum = number(m, "minimum")
	n.Maximum = number(m, "maximum")
	n.MinLength = integer(m, "minLength")
	n.MaxLength = integer(m, "maxLength")
	n.MinItems = integer(m, "minItems")
	n.MaxItems = integer(m, "maxItems")
	return n, nil
}

func number(m map[string]any, key string) *float64 {
	switch v := m[key].(type) {
	case int64:
		f := float64(v)
		return &f
	case float64:
		return &v
	}
	return nil
}

func integer(m map[string]any, key string) *int {
	switch v := m[key].(type) {
	case int64:
		i := int(v)
		return &i
	case float64:
		i := int(v)
		return &i
	}
	return nil
}

// join appends a dotted path segment.
func join(parent, seg string) string {
	if parent == "" {
		return seg
	}
	return parent + "." + seg
}

// label renders a field path for messages; the empty path is "(root)".
func label(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}
