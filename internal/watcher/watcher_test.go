package watcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string, skip func(string) bool) <-chan Batch {
	t.Helper()
	w, err := New(Config{
		Root:     root,
		Debounce: 50 * time.Millisecond,
		Skip:     skip,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})
	ch, err := w.Start(ctx)
	require.NoError(t, err)
	return ch
}

func next(t *testing.T, ch <-chan Batch) Batch {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("expected a batch but got timeout")
		return Batch{}
	}
}

func TestWatcherCoalescesRapidWrites(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "skills", "lint"), 0755))
	file := filepath.Join(root, "skills", "lint", "SKILL.md")
	require.NoError(t, os.WriteFile(file, []byte("v0"), 0644))

	ch := startWatcher(t, root, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(file, []byte(fmt.Sprintf("v%d", i+1)), 0644))
		time.Sleep(10 * time.Millisecond)
	}

	b := next(t, ch)
	assert.Equal(t, []string{"skills/lint/SKILL.md"}, b.Paths)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected second batch %v", extra.Paths)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcherIgnoresHiddenAndSkipped(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{".capreg", "build", "agents"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0755))
	}
	skip := func(rel string) bool { return rel == "build" || strings.HasPrefix(rel, "build/") }
	ch := startWatcher(t, root, skip)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".capreg", "index.json"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "build", "out.md"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "agents", "a.md"), []byte("x"), 0644))

	b := next(t, ch)
	assert.Equal(t, []string{"agents/a.md"}, b.Paths)
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	ch := startWatcher(t, root, nil)

	dir := filepath.Join(root, "workflows")
	require.NoError(t, os.MkdirAll(dir, 0755))
	first := next(t, ch)
	assert.Equal(t, []string{"workflows"}, first.Paths)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "release.md"), []byte("x"), 0644))
	second := next(t, ch)
	assert.Contains(t, second.Paths, "workflows/release.md")
}

func TestWatcherStopClosesChannel(t *testing.T) {
	w, err := New(Config{Root: t.TempDir(), Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	ch, err := w.Start(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		assert.NoError(t, w.Stop())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop timed out")
	}
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("batch channel was not closed")
	}
}

func TestStartMissingRoot(t *testing.T) {
	w, err := New(Config{Root: filepath.Join(t.TempDir(), "absent")})
	require.NoError(t, err)
	defer w.Stop()
	_, err = w.Start(context.Background())
	assert.Error(t, err)
}
