package indexcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx-labs/capreg/internal/report"
)

func sampleEntry(name string) Entry {
	return Entry{
		Section:    name,
		Payload:    json.RawMessage(`{"count":1}`),
		ComputedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Signature:  "00000000deadbeef",
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cache.json")
	s := NewFileStore(path)

	entries, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, s.Put(sampleEntry("graph")))
	require.NoError(t, s.Put(sampleEntry("skill_catalog")))
	require.NoError(t, s.Delete("graph"))

	entries, err = NewFileStore(path).Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	got := entries["skill_catalog"]
	assert.Equal(t, "00000000deadbeef", got.Signature)
	assert.JSONEq(t, `{"count":1}`, string(got.Payload))
	assert.True(t, got.ComputedAt.Equal(sampleEntry("x").ComputedAt))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreRejectsForeignVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "entries": {}}`), 0644))
	_, err := NewFileStore(path).Load()
	assert.ErrorIs(t, err, report.ErrCacheSignatureMismatch)
}

func TestFileStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("\x00\x01garbage"), 0644))
	_, err := NewFileStore(path).Load()
	assert.ErrorIs(t, err, report.ErrCacheSignatureMismatch)
}

func TestMemoryStoreLoadReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Put(sampleEntry("graph")))
	entries, err := s.Load()
	require.NoError(t, err)
	delete(entries, "graph")

	again, err := s.Load()
	require.NoError(t, err)
	assert.Contains(t, again, "graph")
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)

	require.NoError(t, s.Put(sampleEntry("graph")))
	updated := sampleEntry("graph")
	updated.Signature = "0000000000000001"
	require.NoError(t, s.Put(updated))
	require.NoError(t, s.Put(sampleEntry("integrity")))
	require.NoError(t, s.Delete("integrity"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0000000000000001", entries["graph"].Signature)
	assert.True(t, entries["graph"].ComputedAt.Equal(sampleEntry("x").ComputedAt))
}

func TestSQLiteStoreReplacesUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("this is not a sqlite database\n", 200)), 0644))

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load()
	assert.ErrorIs(t, err, report.ErrCacheSignatureMismatch)

	entries, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLiteStoreRejectsForeignVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.Exec(`UPDATE meta SET value = '99' WHERE key = 'format_version'`)
	require.NoError(t, err)
	_, err = s.Load()
	assert.ErrorIs(t, err, report.ErrCacheSignatureMismatch)
}
