package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.yaml.in/yaml/v3"

	"github.com/agentx-labs/capreg/internal/report"
)

// Format is the on-disk encoding of a document.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// Document is a read-only view of one capability document.
type Document struct {
	ID      string
	Type    ComponentType
	Path    string // absolute path
	RelPath string // corpus-relative, slash separated
	Format  Format
	Raw     []byte
	Fields  Fields
	Body    string // Markdown body after the frontmatter; empty for data documents
}

// Source identifies a document file to load.
type Source struct {
	Root    string
	RelPath string
	Type    ComponentType
	ID      string // derived from RelPath when empty
}

// MalformedError reports content that could not be parsed at all.
type MalformedError struct {
	Path string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *MalformedError) Unwrap() []error { return []error{report.ErrMalformedDocument, e.Err} }

// MarkerFiles are file names whose document ID is the parent directory name
// rather than the file stem (skills/<pattern>/<skill>/SKILL.md).
var MarkerFiles = []string{"SKILL.md", "AGENT.md", "README.md", "index.md", "blueprint.yaml", "blueprint.yml", "blueprint.json", "blueprint.md"}

// IDFromPath derives a document ID from a corpus-relative path.
func IDFromPath(relPath string, markers []string) string {
	rel := filepath.ToSlash(relPath)
	base := path.Base(rel)
	for _, m := range markers {
		if strings.EqualFold(base, m) {
			dir := path.Base(path.Dir(rel))
			if dir != "." && dir != "/" {
				return dir
			}
		}
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// FormatOf infers the document format from a file name.
func FormatOf(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatMarkdown
	}
}

// Load reads and parses a document. Read failures are returned as-is;
// unparseable content yields a *MalformedError.
func Load(src Source) (*Document, error) {
	abs := filepath.Join(src.Root, filepath.FromSlash(src.RelPath))
	data, err := readFile(abs)
	if err != nil {
		return nil, err
	}
	id := src.ID
	if id == "" {
		id = IDFromPath(src.RelPath, MarkerFiles)
	}
	doc := &Document{
		ID:      id,
		Type:    src.Type,
		Path:    abs,
		RelPath: filepath.ToSlash(src.RelPath),
		Format:  FormatOf(src.RelPath),
		Raw:     data,
	}
	fields, body, err := Parse(data, doc.Format)
	if err != nil {
		return nil, &MalformedError{Path: doc.RelPath, Err: err}
	}
	doc.Fields = fields
	doc.Body = body
	return doc, nil
}

// Parse splits raw content into fields and body according to format.
func Parse(data []byte, format Format) (Fields, string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	switch format {
	case FormatJSON:
		f, err := parseJSON(data)
		return f, "", err
	case FormatYAML:
		f, err := parseYAML(data)
		return f, "", err
	default:
		return parseMarkdown(data)
	}
}

// parseMarkdown extracts YAML (---) or TOML (+++) frontmatter. A document
// without frontmatter has no fields; an unterminated block is malformed.
func parseMarkdown(data []byte) (Fields, string, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	var delim string
	switch {
	case strings.HasPrefix(text, "---\n"):
		delim = "---"
	case strings.HasPrefix(text, "+++\n"):
		delim = "+++"
	default:
		return Fields{}, text, nil
	}

	rest := text[len(delim)+1:]
	var block, body string
	if strings.HasPrefix(rest, delim+"\n") || rest == delim {
		body = strings.TrimPrefix(strings.TrimPrefix(rest, delim), "\n")
	} else {
		end := strings.Index(rest, "\n"+delim+"\n")
		switch {
		case end >= 0:
			block = rest[:end]
			body = rest[end+len(delim)+2:]
		case strings.HasSuffix(rest, "\n"+delim):
			block = strings.TrimSuffix(rest, "\n"+delim)
		default:
			return nil, "", errors.New("unterminated frontmatter block")
		}
	}

	var fields Fields
	var err error
	if delim == "+++" {
		fields, err = parseTOML([]byte(block))
	} else {
		fields, err = parseYAML([]byte(block))
	}
	if err != nil {
		return nil, "", err
	}
	return fields, body, nil
}

func parseYAML(data []byte) (Fields, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling YAML: %w", err)
	}
	return toFields(normalize(raw))
}

func parseTOML(data []byte) (Fields, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling TOML: %w", err)
	}
	return toFields(normalize(raw))
}

func parseJSON(data []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshaling JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unmarshaling JSON: trailing content after top-level value")
	}
	return toFields(normalize(raw))
}

func toFields(v any) (Fields, error) {
	switch m := v.(type) {
	case nil:
		return Fields{}, nil
	case map[string]any:
		return Fields(m), nil
	default:
		return nil, fmt.Errorf("top-level value is %s, want object", KindOf(v))
	}
}

// normalize converts decoder output into the JSON-compatible value set used by
// Fields: int64 for integers, float64 for other numbers, string map keys and
// RFC 3339 strings for timestamps.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = normalize(item)
		}
		return m
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[fmt.Sprint(k)] = normalize(item)
		}
		return m
	case []any:
		a := make([]any, len(val))
		for i, item := range val {
			a[i] = normalize(item)
		}
		return a
	case []map[string]any:
		a := make([]any, len(val))
		for i, item := range val {
			a[i] = normalize(item)
		}
		return a
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, err := val.Float64()
		if err != nil {
			return val.String()
		}
		return f
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return uintValue(uint64(val))
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return uintValue(val)
	case float32:
		return float64(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case nil, string, bool, int64, float64:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func uintValue(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

// readFile reads the contents of a file at the given path.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return data, nil
}
