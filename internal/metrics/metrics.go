// Package metrics records maintenance pass outcomes as Prometheus metrics.
// A pass is a one-shot process, so metrics are written to a node_exporter
// textfile rather than served.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentx-labs/capreg/internal/catalog"
	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/graph"
	"github.com/agentx-labs/capreg/internal/indexcache"
	"github.com/agentx-labs/capreg/internal/report"
)

const namespace = "capreg"

// Recorder holds the metrics of one process.
type Recorder struct {
	reg *prometheus.Registry
	now func() time.Time

	items       *prometheus.GaugeVec
	findings    *prometheus.GaugeVec
	entries     *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	compute     *prometheus.HistogramVec
	lastRun     prometheus.Gauge

	mu      sync.Mutex
	started map[string]time.Time
}

// New returns a Recorder with every metric registered.
func New() *Recorder {
	r := &Recorder{
		reg:     prometheus.NewRegistry(),
		now:     time.Now,
		started: make(map[string]time.Time),
		items: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_items",
			Help:      "Items of the last batch by outcome kind.",
		}, []string{"kind"}),
		findings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_findings",
			Help:      "Integrity findings of the last graph build.",
		}, []string{"finding"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_entries",
			Help:      "Entries per component type catalog.",
		}, []string{"type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_transitions_total",
			Help:      "Index cache section state transitions.",
		}, []string{"section", "from", "to"}),
		compute: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_compute_seconds",
			Help:      "Time spent computing index cache sections.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"section"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the metrics were last written.",
		}),
	}
	r.reg.MustRegister(r.items, r.findings, r.entries, r.transitions, r.compute, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// ObserveTransition counts a cache transition and times computations. It is
// safe to use as an indexcache OnTransition hook.
func (r *Recorder) ObserveTransition(t indexcache.Transition) {
	r.transitions.WithLabelValues(t.Section, string(t.From), string(t.To)).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case t.To == indexcache.Computing:
		r.started[t.Section] = r.now()
	case t.From == indexcache.Computing:
		if start, ok := r.started[t.Section]; ok {
			r.compute.WithLabelValues(t.Section).Observe(r.now().Sub(start).Seconds())
			delete(r.started, t.Section)
		}
	}
}

// ObserveBatch replaces the per-kind item counts with those of b.
func (r *Recorder) ObserveBatch(b report.Batch) {
	counts := make(map[report.Kind]int)
	for _, it := range b.Items {
		counts[it.Kind]++
	}
	r.items.Reset()
	for kind, n := range counts {
		r.items.WithLabelValues(string(kind)).Set(float64(n))
	}
}

// ObserveGraph records the finding counts of rep.
func (r *Recorder) ObserveGraph(rep *graph.Report) {
	if rep == nil {
		return
	}
	r.findings.WithLabelValues("dangling").Set(float64(len(rep.Dangling)))
	r.findings.WithLabelValues("ambiguous").Set(float64(len(rep.Ambiguous)))
	r.findings.WithLabelValues("duplicates").Set(float64(len(rep.Duplicates)))
	r.findings.WithLabelValues("cycles").Set(float64(len(rep.Cycles)))
	r.findings.WithLabelValues("rewrites").Set(float64(len(rep.Rewrites)))
}

// ObserveCatalogs records the entry count of every catalog.
func (r *Recorder) ObserveCatalogs(cats map[document.ComponentType]*catalog.Catalog) {
	for t, c := range cats {
		r.entries.WithLabelValues(string(t)).Set(float64(c.Len()))
	}
}

// WriteFile stamps the run time and writes every metric to path in the
// text exposition format.
func (r *Recorder) WriteFile(path string) error {
	r.lastRun.Set(float64(r.now().Unix()))
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
