package indexcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentx-labs/capreg/internal/report"
)

// FormatVersion is the version of the persisted cache layout. A store
// carrying another version is treated as fully stale.
const FormatVersion = 1

// Entry is the persisted state of one section.
type Entry struct {
	Section    string          `json:"section"`
	Payload    json.RawMessage `json:"payload"`
	ComputedAt time.Time       `json:"computed_at"`
	Signature  string          `json:"signature"`
}

// Store persists section entries across invocations. Load reports an
// undecodable or foreign state with report.ErrCacheSignatureMismatch.
type Store interface {
	Load() (map[string]Entry, error)
	Put(e Entry) error
	Delete(section string) error
	Close() error
}

// FileStore keeps every entry in one JSON file.
type FileStore struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
}

type fileState struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// NewFileStore returns a store persisted at path. The file is created on the
// first Put.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, entries: make(map[string]Entry)}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Load reads the file. A missing file is an empty cache.
func (s *FileStore) Load() (map[string]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache %s: %w", s.path, err)
	}

	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding cache %s: %w: %v", s.path, report.ErrCacheSignatureMismatch, err)
	}
	if st.Version != FormatVersion {
		return nil, fmt.Errorf("cache %s has format version %d, want %d: %w", s.path, st.Version, FormatVersion, report.ErrCacheSignatureMismatch)
	}

	s.entries = make(map[string]Entry, len(st.Entries))
	out := make(map[string]Entry, len(st.Entries))
	for name, e := range st.Entries {
		e.Section = name
		s.entries[name] = e
		out[name] = e
	}
	return out, nil
}

// Put stores e and rewrites the file.
func (s *FileStore) Put(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Section] = e
	return s.write()
}

// Delete removes a section and rewrites the file.
func (s *FileStore) Delete(section string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, section)
	return s.write()
}

// Close is a no-op; every Put is already on disk.
func (s *FileStore) Close() error { return nil }

// write replaces the file atomically: it writes a temp file next to it and
// renames it into place.
func (s *FileStore) write() error {
	data, err := json.MarshalIndent(fileState{Version: FormatVersion, Entries: s.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalizing cache: %w", err)
	}
	return nil
}

// MemoryStore keeps entries in memory only.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Load() (map[string]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Put(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Section] = e
	return nil
}

func (s *MemoryStore) Delete(section string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, section)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
