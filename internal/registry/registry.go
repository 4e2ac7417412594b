package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentx-labs/capreg/internal/catalog"
	"github.com/agentx-labs/capreg/internal/config"
	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/graph"
	"github.com/agentx-labs/capreg/internal/report"
	"github.com/agentx-labs/capreg/internal/resolver"
	"github.com/agentx-labs/capreg/internal/schema"
)

// Registry answers queries about one corpus. It holds no document state
// between calls: every query reads the files it needs.
type Registry struct {
	corpus    *config.Corpus
	schemas   *schema.Store
	validator *schema.Validator
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSchemaStore replaces the schema store read from the corpus config.
func WithSchemaStore(s *schema.Store) Option {
	return func(r *Registry) { r.schemas = s }
}

// New opens the corpus described by c. A missing corpus root or an unusable
// schema store is an error; everything else is reported per document later.
func New(c *config.Corpus, opts ...Option) (*Registry, error) {
	if c == nil {
		return nil, fmt.Errorf("registry needs a corpus config")
	}
	if info, err := os.Stat(c.Root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", c.Root, report.ErrCorpusRootMissing)
	}

	r := &Registry{corpus: c, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}

	if r.schemas == nil {
		store, err := schema.NewStore(c.SchemaPath(), schema.WithBuiltin(c.BuiltinSchemas))
		if err != nil {
			return nil, err
		}
		r.schemas = store
	}
	mode, err := schema.ParseMode(c.Mode)
	if err != nil {
		return nil, err
	}
	r.validator = schema.NewValidator(r.schemas, mode)
	return r, nil
}

// Corpus returns the configuration the registry was built from.
func (r *Registry) Corpus() *config.Corpus { return r.corpus }

// Root returns the absolute corpus root.
func (r *Registry) Root() string { return r.corpus.Root }

// Schemas returns the schema store.
func (r *Registry) Schemas() *schema.Store { return r.schemas }

// Validator returns the validator in the configured mode.
func (r *Registry) Validator() *schema.Validator { return r.validator }

// Logger returns the registry logger.
func (r *Registry) Logger() *slog.Logger { return r.logger }

// Documents loads every document of type t. Files that cannot be read or
// parsed are reported in the batch and left out. It implements
// catalog.Loader.
func (r *Registry) Documents(ctx context.Context, t document.ComponentType) ([]*document.Document, report.Batch, error) {
	paths, err := r.Discover(t)
	if err != nil {
		return nil, report.Batch{}, err
	}
	var (
		docs  []*document.Document
		batch report.Batch
	)
	for _, rel := range paths {
		d, err := document.Load(document.Source{Root: r.corpus.Root, RelPath: rel, Type: t})
		if err != nil {
			r.logger.Debug("skipping document", "path", rel, "error", err)
			batch.Add(report.FromError(rel, string(t), err))
			continue
		}
		docs = append(docs, d)
	}
	return docs, batch, nil
}

// LoadAll loads the documents of every type. Cancellation is checked
// between types.
func (r *Registry) LoadAll(ctx context.Context) ([]*document.Document, report.Batch, error) {
	var (
		all   []*document.Document
		batch report.Batch
	)
	for _, t := range document.ValidTypes {
		if err := ctx.Err(); err != nil {
			return nil, batch, err
		}
		docs, b, err := r.Documents(ctx, t)
		if err != nil {
			return nil, batch, err
		}
		all = append(all, docs...)
		batch.Merge(b)
	}
	return all, batch, nil
}

// Resolver indexes every file under the corpus root and returns a reference
// resolver over it.
func (r *Registry) Resolver() (*resolver.Resolver, error) {
	ix, err := resolver.BuildIndex(r.corpus.Root, r.skipDirs()...)
	if err != nil {
		return nil, err
	}
	return resolver.New(ix, resolver.Options{
		ExternalPrefixes: r.corpus.ExternalPrefixes,
		CanonicalDirs:    r.corpus.CanonicalDirs,
	}), nil
}

// BuildGraph loads the corpus and builds its reference graph. Load failures
// are returned in the batch; they never stop the build.
func (r *Registry) BuildGraph(ctx context.Context) (*graph.Graph, report.Batch, error) {
	pass := uuid.NewString()
	docs, batch, err := r.LoadAll(ctx)
	if err != nil {
		return nil, batch, err
	}
	res, err := r.Resolver()
	if err != nil {
		return nil, batch, err
	}
	g, err := graph.Build(ctx, docs, res)
	if err != nil {
		return nil, batch, err
	}
	rep := g.Report()
	r.logger.Debug("graph built", "pass", pass, "nodes", len(g.Nodes), "edges", len(g.Edges),
		"dangling", len(rep.Dangling), "ambiguous", len(rep.Ambiguous))
	return g, batch, nil
}

func (r *Registry) generator() *catalog.Generator {
	return catalog.NewGenerator(r, catalog.WithWorkers(r.corpus.Workers), catalog.WithLogger(r.logger))
}

// Catalog generates the catalog of one type.
func (r *Registry) Catalog(ctx context.Context, t document.ComponentType) (*catalog.Catalog, report.Batch, error) {
	return r.generator().Generate(ctx, t)
}

// Catalogs generates the catalog of every type.
func (r *Registry) Catalogs(ctx context.Context) (map[document.ComponentType]*catalog.Catalog, report.Batch, error) {
	return r.generator().GenerateAll(ctx)
}

// CheckIntegrity validates every document and builds the reference graph.
func (r *Registry) CheckIntegrity(ctx context.Context) (*Integrity, error) {
	batch, err := r.ValidateAll(ctx)
	if err != nil {
		return nil, err
	}
	g, _, err := r.BuildGraph(ctx)
	if err != nil {
		return nil, err
	}
	checked, passed, _ := batch.Counts()
	failed := batch.Failed()
	if failed == nil {
		failed = []report.Item{}
	}
	return &Integrity{
		OK:      len(failed) == 0 && g.Report().OK(),
		Checked: checked,
		Passed:  passed,
		Failed:  failed,
		Graph:   g.Report(),
		Batch:   batch,
	}, nil
}

// Rel converts path, absolute or corpus-relative, to a corpus-relative
// slash path. ok is false when path lies outside the corpus.
func (r *Registry) Rel(path string) (rel string, ok bool) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.corpus.Root, path)
	}
	rel, err := filepath.Rel(r.corpus.Root, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// ResolveKey parses "type:id", a bare id or a document path into a graph
// node key.
func (r *Registry) ResolveKey(g *graph.Graph, spec string) (graph.NodeKey, error) {
	if typ, id, found := strings.Cut(spec, ":"); found {
		t, err := document.ParseType(typ)
		if err != nil {
			return graph.NodeKey{}, err
		}
		key := graph.NodeKey{Type: string(t), ID: id}
		if _, ok := g.Nodes[key]; !ok {
			return graph.NodeKey{}, fmt.Errorf("no %s named %q", t, id)
		}
		return key, nil
	}

	if rel, ok := r.Rel(spec); ok {
		for _, n := range g.Nodes {
			if n.Path == rel && n.Key.Type != graph.FileType {
				return n.Key, nil
			}
		}
	}

	var matches []graph.NodeKey
	for _, n := range g.SortedNodes() {
		if n.Key.ID == spec && n.Key.Type != graph.FileType {
			matches = append(matches, n.Key)
		}
	}
	switch len(matches) {
	case 0:
		return graph.NodeKey{}, fmt.Errorf("no document named %q", spec)
	case 1:
		return matches[0], nil
	}
	names := make([]string, len(matches))
	for i, k := range matches {
		names[i] = k.String()
	}
	return graph.NodeKey{}, fmt.Errorf("%q is ambiguous: %s", spec, strings.Join(names, ", "))
}

// parallel runs fn for every index in [0, n) on the configured workers.
func (r *Registry) parallel(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.corpus.Workers)
	for i := 0; i < n; i++ {
		eg.Go(func() error { return fn(egCtx, i) })
	}
	return eg.Wait()
}

// skipDirs returns the corpus-relative directories that never hold
// documents: the state directory and node_modules trees.
func (r *Registry) skipDirs() []string {
	skip := []string{"node_modules"}
	if rel, ok := r.Rel(r.corpus.CachePath()); ok && rel != "." {
		skip = append(skip, rel)
	}
	return skip
}
