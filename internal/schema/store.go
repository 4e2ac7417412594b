package schema

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/report"
)

//go:embed builtin/*.schema.json
var builtinFS embed.FS

// fileNames is the lookup order for a type's schema file inside the store dir.
var fileNames = []string{"%s.schema.json", "%s.schema.yaml", "%s.schema.yml", "%s.json"}

// Store holds one schema per component type. Schemas are read from the store
// directory first; the embedded defaults fill the gaps when enabled.
type Store struct {
	dir     string
	builtin bool

	mu      sync.Mutex
	schemas map[document.ComponentType]*Schema
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithBuiltin controls whether embedded default schemas back the directory.
func WithBuiltin(enabled bool) StoreOption {
	return func(s *Store) { s.builtin = enabled }
}

// NewStore opens a schema store rooted at dir. An empty dir means builtin
// schemas only. A missing directory with builtins disabled leaves nothing to
// validate against and is reported as ErrSchemaNotFound.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	s := &Store{
		dir:     dir,
		builtin: true,
		schemas: make(map[document.ComponentType]*Schema),
	}
	for _, opt := range opts {
		opt(s)
	}

	if dir != "" {
		info, err := os.Stat(dir)
		switch {
		case err == nil && !info.IsDir():
			return nil, fmt.Errorf("schema store %s is not a directory", dir)
		case err != nil && !s.builtin:
			return nil, fmt.Errorf("opening schema store %s: %w", dir, report.ErrSchemaNotFound)
		case err != nil:
			s.dir = ""
		}
	} else if !s.builtin {
		return nil, fmt.Errorf("no schema directory and builtin schemas disabled: %w", report.ErrSchemaNotFound)
	}
	return s, nil
}

// Dir returns the schema directory in use, or "" for builtins only.
func (s *Store) Dir() string { return s.dir }

// Get returns the schema for t, loading it on first use.
func (s *Store) Get(t document.ComponentType) (*Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sch, ok := s.schemas[t]; ok {
		return sch, nil
	}
	sch, err := s.load(t)
	if err != nil {
		return nil, err
	}
	s.schemas[t] = sch
	return sch, nil
}

// Types returns every component type the store has a schema for.
func (s *Store) Types() []document.ComponentType {
	var out []document.ComponentType
	for _, t := range document.ValidTypes {
		if _, err := s.Get(t); err == nil {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) load(t document.ComponentType) (*Schema, error) {
	if s.dir != "" {
		for _, pattern := range fileNames {
			p := filepath.Join(s.dir, fmt.Sprintf(pattern, t))
			data, err := os.ReadFile(p)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("reading schema %s: %w", p, err)
			}
			return decode(t, p, document.FormatOf(p), data)
		}
	}

	if s.builtin {
		name := fmt.Sprintf("builtin/%s.schema.json", t)
		data, err := builtinFS.ReadFile(name)
		if err == nil {
			return decode(t, "builtin:"+string(t), document.FormatJSON, data)
		}
	}
	return nil, &report.NotFoundError{Type: string(t), Dir: s.dir}
}

func decode(t document.ComponentType, source string, format document.Format, data []byte) (*Schema, error) {
	fields, _, err := document.Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing schema %s: %w", source, err)
	}
	return parseSchema(t, source, map[string]any(fields))
}
