package watcher

import "context"

// Invalidator is the part of the index cache a batch is applied to.
type Invalidator interface {
	Invalidate(path string) []string
	RefreshStale(ctx context.Context) error
	RebuildAll(ctx context.Context) error
}

// Outcome summarizes one applied batch.
type Outcome struct {
	Paths    int
	Affected []string // sections marked stale, in first-seen order
	Rebuilt  bool
}

// Apply invalidates every path of b and recomputes the stale sections. A
// change to one of the configFiles, or to a path no section covers, means
// the trigger map itself may be out of date, so every section is rebuilt
// instead. configFiles are relative to the root.
func Apply(ctx context.Context, inv Invalidator, b Batch, configFiles ...string) (Outcome, error) {
	out := Outcome{Paths: len(b.Paths)}
	seen := make(map[string]bool)
	rebuild := false
	for _, p := range b.Paths {
		for _, cf := range configFiles {
			if p == cf {
				rebuild = true
			}
		}
		affected := inv.Invalidate(p)
		if len(affected) == 0 {
			rebuild = true
		}
		for _, s := range affected {
			if !seen[s] {
				seen[s] = true
				out.Affected = append(out.Affected, s)
			}
		}
	}
	if rebuild {
		out.Rebuilt = true
		return out, inv.RebuildAll(ctx)
	}
	return out, inv.RefreshStale(ctx)
}
