package graph

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/agentx-labs/capreg/internal/document"
)

// RawRef is one reference found in a document.
type RawRef struct {
	Text  string `json:"text"`
	Line  int    `json:"line,omitempty"`  // 1-based line in the body; 0 for field values
	Field string `json:"field,omitempty"` // dotted field path for JSON/YAML values
	Wiki  bool   `json:"wiki,omitempty"`
	Image bool   `json:"image,omitempty"`
}

var (
	linkRe   = regexp.MustCompile(`(!?)\[((?:[^\[\]]|\[[^\[\]]*\])*)\]\(\s*(<[^>]*>|[^()\s]+(?:\([^()\s]*\)[^()\s]*)*)(?:\s+(?:"[^"]*"|'[^']*'))?\s*\)`)
	wikiRe   = regexp.MustCompile(`\[\[([^\[\]|]+)(?:\|[^\[\]]*)?\]\]`)
	inlineRe = regexp.MustCompile("(`+)[^`]*?(`+)")
)

// ExtractReferences returns every reference in doc using a single grammar:
// [text](target), ![alt](target), [[target]], [[target|alias]] and
// [[type:id]]. Markdown bodies are scanned outside fenced and inline code.
// JSON and YAML documents are scanned in every string value.
func ExtractReferences(doc *document.Document) []RawRef {
	if doc == nil {
		return nil
	}
	switch doc.Format {
	case document.FormatJSON, document.FormatYAML:
		var refs []RawRef
		walkStrings(map[string]any(doc.Fields), "", func(field, s string) {
			for _, r := range scanLine(s) {
				r.Field = field
				refs = append(refs, r)
			}
		})
		return refs
	default:
		return scanMarkdown(doc.Body)
	}
}

func scanMarkdown(body string) []RawRef {
	var refs []RawRef
	var fence string
	for i, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if fence != "" {
			if strings.HasPrefix(trimmed, fence) && strings.TrimSpace(strings.TrimLeft(trimmed, fence[:1])) == "" {
				fence = ""
			}
			continue
		}
		if f := fenceOpener(trimmed); f != "" {
			fence = f
			continue
		}
		for _, r := range scanLine(stripInlineCode(line)) {
			r.Line = i + 1
			refs = append(refs, r)
		}
	}
	return refs
}

// fenceOpener returns the fence marker opening a code block, or "".
func fenceOpener(line string) string {
	for _, ch := range []string{"`", "~"} {
		n := 0
		for n < len(line) && line[n] == ch[0] {
			n++
		}
		if n >= 3 {
			return strings.Repeat(ch, n)
		}
	}
	return ""
}

func stripInlineCode(line string) string {
	if !strings.Contains(line, "`") {
		return line
	}
	return inlineRe.ReplaceAllStringFunc(line, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
}

func scanLine(s string) []RawRef {
	var refs []RawRef
	for _, m := range wikiRe.FindAllStringSubmatch(s, -1) {
		if t := strings.TrimSpace(m[1]); t != "" {
			refs = append(refs, RawRef{Text: t, Wiki: true})
		}
	}
	// Blank out wikilinks so "[[a]](b)" is not read twice.
	rest := wikiRe.ReplaceAllStringFunc(s, func(m string) string { return strings.Repeat(" ", len(m)) })
	for _, m := range linkRe.FindAllStringSubmatch(rest, -1) {
		t := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(m[3], "<"), ">"))
		if t == "" {
			continue
		}
		refs = append(refs, RawRef{Text: t, Image: m[1] == "!"})
	}
	return refs
}

func walkStrings(v any, at string, fn func(field, s string)) {
	switch x := v.(type) {
	case string:
		fn(at, x)
	case []any:
		for i, item := range x {
			walkStrings(item, joinField(at, strconv.Itoa(i)), fn)
		}
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkStrings(x[k], joinField(at, k), fn)
		}
	}
}

func joinField(parent, seg string) string {
	if parent == "" {
		return seg
	}
	return parent + "." + seg
}
