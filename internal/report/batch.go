package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Item is the result of processing one document (or one reference).
type Item struct {
	Path     string   `json:"path"`
	Type     string   `json:"type,omitempty"`
	Kind     Kind     `json:"kind"`
	Messages []string `json:"messages,omitempty"`
}

// OK reports whether the item passed.
func (i Item) OK() bool { return i.Kind == KindOK }

// Skipped reports whether the item could not be checked at all, as opposed to
// being checked and failing.
func (i Item) Skipped() bool {
	return i.Kind == KindMalformedDocument || i.Kind == KindReadError || i.Kind == KindSchemaNotFound
}

// FromError builds an item for path from err. A nil err yields a passing item.
func FromError(path, typ string, err error) Item {
	it := Item{Path: path, Type: typ, Kind: KindOf(err)}
	if err != nil {
		it.Messages = []string{err.Error()}
	}
	return it
}

// Batch accumulates items for one pass.
type Batch struct {
	Items []Item `json:"items"`
}

// Add appends items to the batch.
func (b *Batch) Add(items ...Item) {
	b.Items = append(b.Items, items...)
}

// Merge appends every item of other.
func (b *Batch) Merge(other Batch) {
	b.Items = append(b.Items, other.Items...)
}

// Counts returns checked, passed and failed totals.
func (b *Batch) Counts() (checked, passed, failed int) {
	for _, it := range b.Items {
		checked++
		if it.OK() {
			passed++
		} else {
			failed++
		}
	}
	return checked, passed, failed
}

// Failed returns only the failing items, ordered by path then kind.
func (b *Batch) Failed() []Item {
	var out []Item
	for _, it := range b.Items {
		if !it.OK() {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// HasFailures reports whether any item failed.
func (b *Batch) HasFailures() bool {
	for _, it := range b.Items {
		if !it.OK() {
			return true
		}
	}
	return false
}

// Print writes the summary line followed by one line per failure message.
func (b *Batch) Print(w io.Writer) {
	checked, passed, failed := b.Counts()
	fmt.Fprintf(w, "checked: %d  passed: %d  failed: %d\n", checked, passed, failed)
	PrintItems(w, b.Failed())
}

// PrintItems writes one line per message of every item.
func PrintItems(w io.Writer, items []Item) {
	for _, it := range items {
		if len(it.Messages) == 0 {
			fmt.Fprintf(w, "  %s: %s\n", it.Path, it.Kind)
			continue
		}
		for _, msg := range it.Messages {
			fmt.Fprintf(w, "  %s: %s: %s\n", it.Path, it.Kind, strings.TrimSpace(msg))
		}
	}
}
