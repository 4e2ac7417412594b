package document

import "testing"

func TestFieldsPresence(t *testing.T) {
	f := Fields{
		"name":    "reviewer",
		"count":   int64(2),
		"half":    1.5,
		"whole":   4.0,
		"flag":    true,
		"tags":    []any{"a", "b"},
		"mixed":   []any{"a", int64(1)},
		"meta":    map[string]any{"owner": "docs"},
		"nothing": nil,
	}

	if v := f.String("name"); v.State != Present || v.V != "reviewer" {
		t.Errorf("String(name) = %+v", v)
	}
	if v := f.String("missing"); v.State != Absent {
		t.Errorf("String(missing) state = %v, want absent", v.State)
	}
	if v := f.String("count"); v.State != Malformed {
		t.Errorf("String(count) state = %v, want malformed", v.State)
	}
	if v := f.String("nothing"); v.State != Malformed {
		t.Errorf("String(nothing) state = %v, want malformed", v.State)
	}
	if v := f.Int("whole"); !v.Ok() || v.V != 4 {
		t.Errorf("Int(whole) = %+v", v)
	}
	if v := f.Int("half"); v.State != Malformed {
		t.Errorf("Int(half) state = %v, want malformed", v.State)
	}
	if v := f.Int("flag"); v.State != Malformed {
		t.Errorf("Int(flag) must not accept booleans, got %v", v.State)
	}
	if v := f.Bool("flag"); !v.Ok() || !v.V {
		t.Errorf("Bool(flag) = %+v", v)
	}
	if v := f.Strings("tags"); !v.Ok() || len(v.V) != 2 {
		t.Errorf("Strings(tags) = %+v", v)
	}
	if v := f.Strings("mixed"); v.State != Malformed {
		t.Errorf("Strings(mixed) state = %v, want malformed", v.State)
	}
	if v := f.Map("meta"); !v.Ok() || v.V.String("owner").V != "docs" {
		t.Errorf("Map(meta) = %+v", v)
	}
	if v := f.String("meta.owner"); v.V != "docs" {
		t.Errorf("dotted lookup = %+v", v)
	}
	if got := f.String("missing").Or("fallback"); got != "fallback" {
		t.Errorf("Or = %q", got)
	}
}

func TestFieldsCloneIsDeep(t *testing.T) {
	f := Fields{"meta": map[string]any{"tags": []any{"a"}}}
	c := f.Clone()
	c["meta"].(map[string]any)["tags"].([]any)[0] = "changed"
	if f["meta"].(map[string]any)["tags"].([]any)[0] != "a" {
		t.Error("Clone shares nested state with the original")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		v    any
		want string
	}{
		{nil, "null"},
		{"s", "string"},
		{true, "boolean"},
		{int64(1), "integer"},
		{2.0, "integer"},
		{2.5, "number"},
		{[]any{}, "array"},
		{map[string]any{}, "object"},
	}
	for _, tt := range tests {
		if got := KindOf(tt.v); got != tt.want {
			t.Errorf("KindOf(%#v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
