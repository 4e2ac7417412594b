package indexcache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureTracksContributingFiles(t *testing.T) {
	root := corpus(t)
	skills := []string{"skills"}

	a, err := Signature(root, skills, nil)
	require.NoError(t, err)
	b, err := Signature(root, skills, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	touch(t, filepath.Join(root, "agents", "reviewer.md"), "changed")
	c, err := Signature(root, skills, nil)
	require.NoError(t, err)
	assert.Equal(t, a, c, "files outside the triggers do not count")

	touch(t, filepath.Join(root, "skills", "chain", "foo", "SKILL.md"), "changed")
	d, err := Signature(root, skills, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, d)
}

func TestSignatureGlobTrigger(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "knowledge/a.json", "{}")
	writeFile(t, root, "knowledge/notes.txt", "x")
	glob := []string{"knowledge/*.json"}

	a, err := Signature(root, glob, nil)
	require.NoError(t, err)
	touch(t, filepath.Join(root, "knowledge", "notes.txt"), "changed")
	b, err := Signature(root, glob, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	writeFile(t, root, "knowledge/b.json", "{}")
	c, err := Signature(root, glob, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSignatureSkipsAndMissingDirs(t *testing.T) {
	root := corpus(t)
	skip := func(rel string) bool { return strings.HasPrefix(rel, ".") }
	a, err := Signature(root, []string{"**", "missing"}, skip)
	require.NoError(t, err)

	writeFile(t, root, ".capreg/cache.json", "{}")
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, ".capreg", "cache.json"), later, later))
	b, err := Signature(root, []string{"**", "missing"}, skip)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMatches(t *testing.T) {
	tests := []struct {
		trigger, rel string
		want         bool
	}{
		{"skills", "skills/chain/foo/SKILL.md", true},
		{"skills/", "skills", true},
		{"./skills", "skills/a.md", true},
		{"skills", "skillset/a.md", false},
		{"skills/chain", "skills", true},
		{"skills", "agents/a.md", false},
		{"knowledge/*.json", "knowledge/a.json", true},
		{"knowledge/*.json", "knowledge/sub/a.json", false},
		{"knowledge/*.json", "knowledge", true},
		{"patterns/**/*.json", "patterns/agents/x.json", true},
		{"**", "anything/at/all.md", true},
		{"**/*.md", "agents/a.json", false},
		{"skills", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.trigger+"|"+tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.trigger, tt.rel))
		})
	}
}
