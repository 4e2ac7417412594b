package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx-labs/capreg/internal/catalog"
	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/graph"
	"github.com/agentx-labs/capreg/internal/indexcache"
	"github.com/agentx-labs/capreg/internal/report"
)

func TestObserveTransitionTimesComputation(t *testing.T) {
	r := New()
	clock := time.Unix(1000, 0)
	r.now = func() time.Time { return clock }

	r.ObserveTransition(indexcache.Transition{Section: "graph", From: indexcache.Stale, To: indexcache.Computing})
	clock = clock.Add(250 * time.Millisecond)
	r.ObserveTransition(indexcache.Transition{Section: "graph", From: indexcache.Computing, To: indexcache.Fresh})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("graph", "computing", "fresh")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.compute))
	assert.Empty(t, r.started)
}

func TestObserveBatchReplacesCounts(t *testing.T) {
	r := New()
	r.ObserveBatch(report.Batch{Items: []report.Item{
		{Path: "a", Kind: report.KindOK},
		{Path: "b", Kind: report.KindOK},
		{Path: "c", Kind: report.KindStructuralViolation},
	}})
	assert.Equal(t, 2.0, testutil.ToFloat64(r.items.WithLabelValues("ok")))

	r.ObserveBatch(report.Batch{Items: []report.Item{{Path: "a", Kind: report.KindMalformedDocument}}})
	assert.Equal(t, 1, testutil.CollectAndCount(r.items))
}

func TestWriteFile(t *testing.T) {
	r := New()
	r.ObserveGraph(&graph.Report{Dangling: []graph.Finding{{Origin: "a.md", Raw: "b.md"}}})
	r.ObserveCatalogs(map[document.ComponentType]*catalog.Catalog{
		document.TypeSkill: {Type: document.TypeSkill, Entries: []catalog.Entry{{ID: "x"}}},
	})

	path := filepath.Join(t.TempDir(), "capreg.prom")
	require.NoError(t, r.WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `capreg_graph_findings{finding="dangling"} 1`)
	assert.Contains(t, out, `capreg_catalog_entries{type="skill"} 1`)
	assert.True(t, strings.Contains(out, "capreg_last_run_timestamp_seconds"))
}
