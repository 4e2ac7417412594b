package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/sync/errgroup"

	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/report"
)

// descriptionFields are checked in order for a one-line description.
var descriptionFields = []string{"description", "summary", "purpose", "about"}

// nameFields are checked in order for a display name.
var nameFields = []string{"name", "title"}

// Loader supplies the parsed documents of one type. Per-file failures are
// returned in the batch; the error is reserved for run-level problems.
type Loader interface {
	Documents(ctx context.Context, t document.ComponentType) ([]*document.Document, report.Batch, error)
}

// Generator builds catalogs from a Loader.
type Generator struct {
	loader  Loader
	workers int
	logger  *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithWorkers bounds how many types are generated concurrently.
func WithWorkers(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator returns a Generator reading through loader.
func NewGenerator(loader Loader, opts ...Option) *Generator {
	g := &Generator{loader: loader, workers: 4, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate builds the catalog for one type. Documents that cannot be read
// are reported in the batch and left out of the catalog.
func (g *Generator) Generate(ctx context.Context, t document.ComponentType) (*Catalog, report.Batch, error) {
	docs, batch, err := g.loader.Documents(ctx, t)
	if err != nil {
		return nil, batch, fmt.Errorf("loading %s documents: %w", t, err)
	}
	cat := &Catalog{Type: t, Entries: make([]Entry, 0, len(docs))}
	for _, d := range docs {
		cat.Entries = append(cat.Entries, EntryFor(d))
	}
	cat.Sort()
	g.logger.Debug("catalog generated", "type", t, "entries", len(cat.Entries), "failed", len(batch.Failed()))
	return cat, batch, nil
}

// GenerateAll builds a catalog for every type. Types are generated in
// parallel; each worker fills only its own slot and results are merged after
// all workers finish. Cancellation is checked before each type starts.
func (g *Generator) GenerateAll(ctx context.Context) (map[document.ComponentType]*Catalog, report.Batch, error) {
	types := document.ValidTypes
	cats := make([]*Catalog, len(types))
	batches := make([]report.Batch, len(types))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, t := range types {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			cat, batch, err := g.Generate(egCtx, t)
			if err != nil {
				return err
			}
			cats[i] = cat
			batches[i] = batch
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, report.Batch{}, err
	}

	out := make(map[document.ComponentType]*Catalog, len(types))
	var merged report.Batch
	for i, t := range types {
		out[t] = cats[i]
		merged.Merge(batches[i])
	}
	return out, merged, nil
}

// EntryFor summarizes one document.
func EntryFor(d *document.Document) Entry {
	e := Entry{
		ID:       d.ID,
		Name:     d.ID,
		Location: d.RelPath,
		Type:     string(d.Type),
	}
	for _, f := range nameFields {
		if v := d.Fields.String(f); v.Ok() && strings.TrimSpace(v.V) != "" {
			e.Name = oneLine(v.V)
			break
		}
	}
	for _, f := range descriptionFields {
		if v := d.Fields.String(f); v.Ok() && strings.TrimSpace(v.V) != "" {
			e.Description = oneLine(v.V)
			break
		}
	}
	if e.Description == "" && d.Format == document.FormatMarkdown {
		e.Description = FirstHeading([]byte(d.Body))
	}
	if v := d.Fields.String("version"); v.Ok() {
		e.Version = strings.TrimSpace(v.V)
	} else if n, ok := d.Fields["version"]; ok && n != nil {
		switch n.(type) {
		case int64, float64:
			e.Version = fmt.Sprint(n)
		}
	}
	if v := d.Fields.Strings("tags"); v.Ok() {
		e.Tags = v.V
	}
	return e
}

var markdown = goldmark.New()

// FirstHeading returns the text of the first Markdown heading in src, or "".
func FirstHeading(src []byte) string {
	root := markdown.Parser().Parse(text.NewReader(src))
	var heading string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			heading = oneLine(plainText(h, src))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return heading
}

func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		default:
			b.WriteString(plainText(c, src))
		}
	}
	return b.String()
}

// oneLine keeps the first non-empty line with inner whitespace collapsed.
func oneLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if f := strings.Fields(line); len(f) > 0 {
			return strings.Join(f, " ")
		}
	}
	return ""
}
