package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/report"
)

var printer = message.NewPrinter(language.English)

// Mode selects how much of a schema is enforced.
type Mode string

const (
	// ModeFast checks required fields, type/version tags and coarse kinds.
	ModeFast Mode = "fast"
	// ModeStrict evaluates every constraint in the schema file.
	ModeStrict Mode = "strict"
)

// ParseMode converts a flag value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case ModeFast, "":
		return ModeFast, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", fmt.Errorf("unknown validation mode %q (want fast or strict)", s)
	}
}

// Issue is a single validation failure.
type Issue struct {
	Path    string `json:"path"` // dotted field path, "" for the document root
	Message string `json:"message"`
	Keyword string `json:"keyword,omitempty"`
}

// String renders the issue as "<dotted-path-or-(root)>: <message>".
func (i Issue) String() string {
	return label(i.Path) + ": " + i.Message
}

// Result contains the outcome of validating one document.
type Result struct {
	Type   document.ComponentType `json:"type"`
	Mode   Mode                   `json:"mode"`
	Valid  bool                   `json:"valid"`
	Issues []Issue                `json:"issues,omitempty"`
}

// Messages renders every issue.
func (r *Result) Messages() []string {
	out := make([]string, len(r.Issues))
	for i, issue := range r.Issues {
		out[i] = issue.String()
	}
	return out
}

// Err returns nil for a valid result, else an error wrapping
// report.ErrStructuralViolation.
func (r *Result) Err() error {
	if r.Valid {
		return nil
	}
	return &ViolationError{Issues: r.Issues}
}

// ViolationError carries the issues of an invalid document.
type ViolationError struct {
	Issues []Issue
}

func (e *ViolationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "; ")
}

func (e *ViolationError) Unwrap() error { return report.ErrStructuralViolation }

// TagMismatchError reports a document whose declared type tag names another
// component type than the one it is validated against.
type TagMismatchError struct {
	Path     string
	Field    string
	Declared string
	Expected document.ComponentType
}

func (e *TagMismatchError) Error() string {
	return fmt.Sprintf("%s declares %s %q but is validated as %q", e.Path, e.Field, e.Declared, e.Expected)
}

func (e *TagMismatchError) Unwrap() error { return report.ErrTypeMismatch }

// Validator checks documents against the schemas of a Store.
type Validator struct {
	store *Store
	mode  Mode
}

// NewValidator returns a validator using mode.
func NewValidator(store *Store, mode Mode) *Validator {
	if mode == "" {
		mode = ModeFast
	}
	return &Validator{store: store, mode: mode}
}

// Mode returns the validator's mode.
func (v *Validator) Mode() Mode { return v.mode }

// ValidateType parses typeName and validates doc against it.
func (v *Validator) ValidateType(doc *document.Document, typeName string) (*Result, error) {
	t, err := document.ParseType(typeName)
	if err != nil {
		return nil, err
	}
	return v.Validate(doc, t)
}

// Validate checks doc against the schema for t. The returned error is for a
// missing schema, a type-tag mismatch or a broken schema file; structural
// problems are reported in the Result. doc is never modified.
func (v *Validator) Validate(doc *document.Document, t document.ComponentType) (*Result, error) {
	if doc == nil {
		return nil, errors.New("validating nil document")
	}
	s, err := v.store.Get(t)
	if err != nil {
		return nil, err
	}
	if err := checkTag(s, doc); err != nil {
		return nil, err
	}

	fields := map[string]any(doc.Fields)
	if fields == nil {
		fields = map[string]any{}
	}

	issues := versionIssues(s, doc.Fields)
	switch v.mode {
	case ModeStrict:
		strict, err := strictIssues(s, fields)
		if err != nil {
			return nil, err
		}
		issues = append(issues, strict...)
	default:
		checkFast(s.Root, fields, "", &issues)
	}

	issues = sortIssues(deduplicateIssues(issues))
	return &Result{
		Type:   t,
		Mode:   v.mode,
		Valid:  len(issues) == 0,
		Issues: issues,
	}, nil
}

func checkTag(s *Schema, doc *document.Document) error {
	raw, ok := doc.Fields[s.TypeField]
	if !ok {
		return nil
	}
	declared, _ := raw.(string)
	if t, err := document.ParseType(declared); err == nil && t == s.Type {
		return nil
	}
	return &TagMismatchError{
		Path:     doc.RelPath,
		Field:    s.TypeField,
		Declared: fmt.Sprint(raw),
		Expected: s.Type,
	}
}

func versionIssues(s *Schema, fields document.Fields) []Issue {
	if s.VersionConstraint == nil {
		return nil
	}
	raw, ok := fields[s.VersionField]
	if !ok {
		return nil
	}
	var text string
	switch v := raw.(type) {
	case string:
		text = v
	case int64, float64:
		text = fmt.Sprint(v)
	default:
		return []Issue{{Path: s.VersionField, Message: fmt.Sprintf("got %s, want version string", document.KindOf(raw)), Keyword: "x-version-constraint"}}
	}
	ver, err := semver.NewVersion(text)
	if err != nil {
		return []Issue{{Path: s.VersionField, Message: fmt.Sprintf("%q is not a semantic version", text), Keyword: "x-version-constraint"}}
	}
	if !s.VersionConstraint.Check(ver) {
		return []Issue{{Path: s.VersionField, Message: fmt.Sprintf("version %s does not satisfy %s", ver, s.VersionConstraint), Keyword: "x-version-constraint"}}
	}
	return nil
}

// checkFast walks the schema tree checking required presence and kinds only.
func checkFast(n *Node, v any, path string, issues *[]Issue) {
	if n == nil {
		return
	}
	if len(n.Kinds) > 0 && !kindMatches(n.Kinds, v) {
		*issues = append(*issues, Issue{
			Path:    path,
			Message: fmt.Sprintf("got %s, want %s", document.KindOf(v), joinKinds(n.Kinds)),
			Keyword: "type",
		})
		return
	}

	if m, ok := v.(map[string]any); ok {
		for _, req := range n.Required {
			if _, has := m[req]; !has {
				*issues = append(*issues, Issue{Path: join(path, req), Message: "missing required field", Keyword: "required"})
			}
		}
		for name, child := range n.Properties {
			if cv, has := m[name]; has {
				checkFast(child, cv, join(path, name), issues)
			}
		}
	}

	if arr, ok := v.([]any); ok && n.Items != nil {
		for i, item := range arr {
			checkFast(n.Items, item, join(path, strconv.Itoa(i)), issues)
		}
	}
}

func kindMatches(kinds []Kind, v any) bool {
	got := Kind(document.KindOf(v))
	for _, k := range kinds {
		if k == got || (k == KindNumber && got == KindInteger) {
			return true
		}
	}
	return false
}

func joinKinds(kinds []Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, " or ")
}

// compile builds the full JSON Schema evaluator for s once.
func (s *Schema) compile() (*jsonschema.Schema, error) {
	s.compileOnce.Do(func() {
		data, err := json.Marshal(s.raw)
		if err != nil {
			s.compileErr = fmt.Errorf("encoding schema %s: %w", s.Source, err)
			return
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			s.compileErr = fmt.Errorf("unmarshaling schema %s: %w", s.Source, err)
			return
		}
		url := string(s.Type) + ".schema.json"
		c := jsonschema.NewCompiler()
		if err := c.AddResource(url, doc); err != nil {
			s.compileErr = fmt.Errorf("adding schema resource %s: %w", s.Source, err)
			return
		}
		s.compiled, s.compileErr = c.Compile(url)
		if s.compileErr != nil {
			s.compileErr = fmt.Errorf("compiling schema %s: %w", s.Source, s.compileErr)
		}
	})
	return s.compiled, s.compileErr
}

func strictIssues(s *Schema, fields map[string]any) ([]Issue, error) {
	sch, err := s.compile()
	if err != nil {
		return nil, err
	}

	// Round-trip through JSON so the evaluator sees json.Number values.
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("converting document to JSON: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("preparing JSON for validation: %w", err)
	}

	err = sch.Validate(inst)
	if err == nil {
		return nil, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, fmt.Errorf("unexpected validation error type: %w", err)
	}

	var issues []Issue
	collectIssues(ve, &issues)
	if len(issues) == 0 {
		issues = append(issues, Issue{Message: ve.Error()})
	}
	return issues, nil
}

// collectIssues walks the error tree and keeps leaf errors with a concrete
// keyword. Missing required properties are reported at the property's own
// path so fast and strict output name the same field.
func collectIssues(ve *jsonschema.ValidationError, issues *[]Issue) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			collectIssues(cause, issues)
		}
		return
	}

	base := strings.Join(ve.InstanceLocation, ".")
	if req, ok := ve.ErrorKind.(*kind.Required); ok {
		for _, missing := range req.Missing {
			*issues = append(*issues, Issue{Path: join(base, missing), Message: "missing required field", Keyword: "required"})
		}
		return
	}

	keyword := ""
	msg := ""
	if ve.ErrorKind != nil {
		if kw := ve.ErrorKind.KeywordPath(); len(kw) > 0 {
			keyword = kw[len(kw)-1]
		}
		msg = ve.ErrorKind.LocalizedString(printer)
	}
	if keyword == "oneOf" || keyword == "allOf" || keyword == "$ref" || keyword == "" {
		return
	}
	*issues = append(*issues, Issue{Path: base, Message: msg, Keyword: keyword})
}

func deduplicateIssues(issues []Issue) []Issue {
	seen := make(map[string]bool, len(issues))
	var result []Issue
	for _, issue := range issues {
		key := issue.Path + "|" + issue.Keyword + "|" + issue.Message
		if !seen[key] {
			seen[key] = true
			result = append(result, issue)
		}
	}
	return result
}

func sortIssues(issues []Issue) []Issue {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Path != issues[j].Path {
			return issues[i].Path < issues[j].Path
		}
		if issues[i].Keyword != issues[j].Keyword {
			return issues[i].Keyword < issues[j].Keyword
		}
		return issues[i].Message < issues[j].Message
	})
	return issues
}
