// Package catalog derives per-type indexes of capability documents. Output is
// deterministic: an unchanged corpus yields byte-identical JSON.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/agentx-labs/capreg/internal/document"
)

// Entry is the summary of one document.
type Entry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Type        string   `json:"type"`
	Version     string   `json:"version,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Key returns the cross-type identity "type:id".
func (e Entry) Key() string { return e.Type + ":" + e.ID }

// Catalog is the ordered index of one component type. The combined catalog
// has an empty Type.
type Catalog struct {
	Type    document.ComponentType
	Entries []Entry
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.Entries) }

// Lookup returns the first entry with id.
func (c *Catalog) Lookup(id string) (Entry, bool) {
	for _, e := range c.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Sort orders entries by lower-cased name, then ID, then location.
func (c *Catalog) Sort() {
	sort.SliceStable(c.Entries, func(i, j int) bool {
		return less(c.Entries[i], c.Entries[j])
	})
}

func less(a, b Entry) bool {
	an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if an != bn {
		return an < bn
	}
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	if a.Location != b.Location {
		return a.Location < b.Location
	}
	return a.Type < b.Type
}

// mapKey is the preferred key an entry is written under: the ID within a
// type, "type:id" across types.
func (c *Catalog) mapKey(e Entry) string {
	if c.Type == "" {
		return e.Key()
	}
	return e.ID
}

// MarshalJSON writes {"type": ..., "count": N, "entries": {key: entry}} with
// keys in catalog order. A key already taken falls back to the location.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	typ, _ := json.Marshal(string(c.Type))
	fmt.Fprintf(&buf, `{"type":%s,"count":%d,"entries":{`, typ, len(c.Entries))

	used := make(map[string]bool, len(c.Entries))
	for i, e := range c.Entries {
		key := c.mapKey(e)
		if used[key] {
			key = e.Location
		}
		used[key] = true

		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the form written by MarshalJSON. Entry order is
// restored by sorting.
func (c *Catalog) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    string           `json:"type"`
		Entries map[string]Entry `json:"entries"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Type = document.ComponentType(raw.Type)
	c.Entries = make([]Entry, 0, len(raw.Entries))
	for _, e := range raw.Entries {
		c.Entries = append(c.Entries, e)
	}
	c.Sort()
	return nil
}

// WriteJSON writes the catalog as indented JSON followed by a newline.
func (c *Catalog) WriteJSON(w io.Writer) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding %s catalog: %w", c.label(), err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return fmt.Errorf("indenting %s catalog: %w", c.label(), err)
	}
	out.WriteByte('\n')
	_, err = w.Write(out.Bytes())
	return err
}

func (c *Catalog) label() string {
	if c.Type == "" {
		return "combined"
	}
	return string(c.Type)
}

// Combined merges per-type catalogs into one cross-type catalog.
func Combined(cats map[document.ComponentType]*Catalog) *Catalog {
	out := &Catalog{}
	for _, t := range document.ValidTypes {
		if c, ok := cats[t]; ok && c != nil {
			out.Entries = append(out.Entries, c.Entries...)
		}
	}
	out.Sort()
	return out
}

// Search returns the entries whose ID, name, description or tags contain
// every whitespace-separated term of query, case-insensitively.
func (c *Catalog) Search(query string) []Entry {
	terms := strings.Fields(strings.ToLower(query))
	var out []Entry
	for _, e := range c.Entries {
		hay := strings.ToLower(strings.Join(append([]string{e.ID, e.Name, e.Description, e.Type}, e.Tags...), " "))
		match := true
		for _, t := range terms {
			if !strings.Contains(hay, t) {
				match = false
				break
			}
		}
		if match {
			out = append(out, e)
		}
	}
	return out
}
