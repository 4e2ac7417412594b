package registry

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agentx-labs/capreg/internal/catalog"
	"github.com/agentx-labs/capreg/internal/config"
	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/indexcache"
)

// Section names besides the per-type catalogs.
const (
	CombinedSection  = "combined_catalog"
	GraphSection     = "graph"
	IntegritySection = "integrity"
)

// Persisted cache file names inside the cache directory.
const (
	cacheFile   = "index.json"
	cacheSQLite = "index.db"
)

// CatalogSection names the cache section holding the catalog of t.
func CatalogSection(t document.ComponentType) string {
	return string(t) + "_catalog"
}

// Triggers returns the directories whose changes affect the catalog of t:
// the static prefix of every root pattern of t, plus any extra patterns
// configured for its section.
func (r *Registry) Triggers(t document.ComponentType) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, pattern := range r.corpus.RootsFor(t) {
		base, _ := doublestar.SplitPattern(pattern)
		if base == "." {
			add("**")
			continue
		}
		add(base)
	}
	for _, extra := range r.corpus.Cache.Sections[CatalogSection(t)] {
		add(extra)
	}
	sort.Strings(out)
	return out
}

// Sections returns the cache sections of the corpus: one catalog per type,
// the combined catalog, the reference graph and the integrity report.
func (r *Registry) Sections() []indexcache.Section {
	var sections []indexcache.Section
	var all []string
	for _, t := range document.ValidTypes {
		triggers := r.Triggers(t)
		all = append(all, triggers...)
		sections = append(sections, indexcache.Section{
			Name:     CatalogSection(t),
			Triggers: triggers,
			Compute: func(ctx context.Context) (json.RawMessage, error) {
				cat, _, err := r.Catalog(ctx, t)
				if err != nil {
					return nil, err
				}
				return json.Marshal(cat)
			},
		})
	}

	sections = append(sections,
		indexcache.Section{
			Name:     CombinedSection,
			Triggers: r.withExtras(CombinedSection, dedupe(all)),
			Compute: func(ctx context.Context) (json.RawMessage, error) {
				cats, _, err := r.Catalogs(ctx)
				if err != nil {
					return nil, err
				}
				return json.Marshal(catalog.Combined(cats))
			},
		},
		indexcache.Section{
			Name:     GraphSection,
			Triggers: r.withExtras(GraphSection, []string{"**"}),
			Compute: func(ctx context.Context) (json.RawMessage, error) {
				g, _, err := r.BuildGraph(ctx)
				if err != nil {
					return nil, err
				}
				return json.Marshal(g.Snapshot())
			},
		},
		indexcache.Section{
			Name:     IntegritySection,
			Triggers: r.withExtras(IntegritySection, []string{"**"}),
			Compute: func(ctx context.Context) (json.RawMessage, error) {
				in, err := r.CheckIntegrity(ctx)
				if err != nil {
					return nil, err
				}
				return json.Marshal(in)
			},
		},
	)
	return sections
}

func (r *Registry) withExtras(section string, triggers []string) []string {
	return dedupe(append(triggers, r.corpus.Cache.Sections[section]...))
}

// OpenStore opens the persisted cache store configured for the corpus.
func (r *Registry) OpenStore() (indexcache.Store, error) {
	dir := r.corpus.CachePath()
	if r.corpus.Cache.Store == config.StoreSQLite {
		return indexcache.OpenSQLite(filepath.Join(dir, cacheSQLite))
	}
	return indexcache.NewFileStore(filepath.Join(dir, cacheFile)), nil
}

// OpenCache opens the index cache over every section. onTransition may be
// nil.
func (r *Registry) OpenCache(onTransition func(indexcache.Transition)) (*indexcache.Cache, error) {
	store, err := r.OpenStore()
	if err != nil {
		return nil, err
	}
	var ignore []string
	if rel, ok := r.Rel(r.corpus.CachePath()); ok && rel != "." {
		ignore = append(ignore, rel)
	}
	c, err := indexcache.New(indexcache.Options{
		Root:         r.corpus.Root,
		Store:        store,
		ReadMode:     indexcache.ReadMode(r.corpus.Cache.ReadMode),
		OnTransition: onTransition,
		Ignore:       ignore,
		Workers:      r.corpus.Workers,
		Logger:       r.logger,
	}, r.Sections()...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return c, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
