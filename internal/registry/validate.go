package registry

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/report"
)

// ValidateFile validates one document. path is absolute or corpus-relative.
// typeName is optional; when empty the type is inferred from the corpus
// roots, then from the document's own type tag. The outcome is always an
// item, never an error: a missing schema, an unknown type or an unparseable
// file each get their own kind.
func (r *Registry) ValidateFile(path, typeName string) report.Item {
	src := document.Source{Root: r.corpus.Root}
	rel, inside := r.Rel(path)
	if inside {
		src.RelPath = rel
	} else {
		abs, _ := filepath.Abs(path)
		src.Root, src.RelPath = filepath.Dir(abs), filepath.Base(abs)
		rel = filepath.ToSlash(abs)
	}

	if typeName == "" && inside {
		if t, ok := r.TypeOf(rel); ok {
			typeName = string(t)
		}
	}
	if typeName != "" {
		t, err := document.ParseType(typeName)
		if err != nil {
			return report.FromError(rel, typeName, err)
		}
		src.Type = t
	}

	doc, err := document.Load(src)
	if err != nil {
		return report.FromError(rel, typeName, err)
	}
	if typeName == "" {
		declared := doc.Fields.String("type")
		if !declared.Ok() {
			given := ""
			if declared.Raw != nil {
				given = fmt.Sprint(declared.Raw)
			}
			return report.FromError(rel, "", fmt.Errorf("cannot infer the type of %s: %w", rel, &document.UnknownTypeError{Given: given}))
		}
		typeName = declared.V
	}

	res, err := r.validator.ValidateType(doc, typeName)
	if err != nil {
		return report.FromError(rel, typeName, err)
	}
	it := report.Item{Path: rel, Type: string(res.Type), Kind: report.KindOK}
	if !res.Valid {
		it.Kind = report.KindStructuralViolation
		it.Messages = res.Messages()
	}
	return it
}

// ValidatePaths validates paths on the configured workers. Items come back
// in input order. Only cancellation stops the batch.
func (r *Registry) ValidatePaths(ctx context.Context, paths []string, typeName string) (report.Batch, error) {
	items := make([]report.Item, len(paths))
	err := r.parallel(ctx, len(paths), func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		items[i] = r.ValidateFile(paths[i], typeName)
		return nil
	})
	if err != nil {
		return report.Batch{}, err
	}
	var b report.Batch
	b.Add(items...)
	return b, nil
}

// ValidateAll validates every discovered document against the type whose
// roots it was found under.
func (r *Registry) ValidateAll(ctx context.Context) (report.Batch, error) {
	located, err := r.DiscoverAll(ctx)
	if err != nil {
		return report.Batch{}, err
	}
	items := make([]report.Item, len(located))
	err = r.parallel(ctx, len(located), func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		items[i] = r.ValidateFile(located[i].RelPath, string(located[i].Type))
		return nil
	})
	if err != nil {
		return report.Batch{}, err
	}
	var b report.Batch
	b.Add(items...)
	r.logger.Debug("validated corpus", "documents", len(items))
	return b, nil
}
