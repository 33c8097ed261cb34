package displayrules

import (
	"errors"
	"reflect"
	"testing"
)

func homeRoute() map[string]any {
	return map[string]any{
		"thisName":    "handlerHome",
		"c1":          []any{true, false},
		"c2":          []any{true, true},
		"c3":          []any{false, true},
		"c11_content": []any{"testComponent/test.js"},
		"c21_content": "<p>c21 {{ .ejstest }}</p>",
		"c23_content": "<p>c23_content from viewModel</p>",
		"c11_ejsData": []any{map[string]any{"testString": "apple theft"}},
		"c21_ejsData": map[string]any{"ejstest": "apple theft"},
		"c40_content": "<p>extra</p>",
		"c4_content":  "<p>four</p>",
		"footerNote":  "kept",
	}
}

func TestFromMapParsesConvention(t *testing.T) {
	r, err := FromMap(homeRoute())
	if err != nil {
		t.Fatalf("FromMap failed: %v", err)
	}
	if r.Name != "handlerHome" {
		t.Fatalf("expected name handlerHome, got %q", r.Name)
	}
	flags, ok := r.Flags("1")
	if !ok || !flags.First() || flags.Last() {
		t.Fatalf("unexpected c1 flags: %v (found=%v)", flags, ok)
	}

	var ids []string
	for _, s := range r.Slots {
		ids = append(ids, s.ID)
	}
	want := []string{"4", "11", "21", "23", "40"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("slot order mismatch: got %v want %v", ids, want)
	}

	c11 := r.Slot("11")
	if !c11.Content.Multi || c11.Content.Len() != 1 {
		t.Fatalf("c11 should be a sequence of 1, got %+v", c11.Content)
	}
	if !c11.Data.Multi || c11.Data.At(0)["testString"] != "apple theft" {
		t.Fatalf("c11 data not parsed: %+v", c11.Data)
	}
	if r.Slot("21").Content.Multi {
		t.Fatalf("c21 should be scalar")
	}
	if r.Extra["footerNote"] != "kept" {
		t.Fatalf("unknown keys must pass through, got %v", r.Extra)
	}
}

func TestFromMapRejectsBadFlags(t *testing.T) {
	_, err := FromMap(map[string]any{"c1": []any{true, false, true}})
	if err == nil {
		t.Fatal("expected error for 3 flags")
	}
	_, err = FromMap(map[string]any{"c1": []any{true, "no"}})
	if err == nil {
		t.Fatal("expected error for non-bool flag")
	}
}

func TestFromMapNestedLinks(t *testing.T) {
	r, err := FromMap(map[string]any{
		"headCssLinks": []any{"css/a.css", []any{"css/b.css", []any{"css/c.css"}}},
	})
	if err != nil {
		t.Fatalf("FromMap failed: %v", err)
	}
	got := Flatten(r.HeadCSSLinks)
	want := []string{"css/a.css", "css/b.css", "css/c.css"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestFlattenIsIdempotent(t *testing.T) {
	nodes := []LinkNode{
		Link("css/a.css"),
		Group("css/b.css", "css/a.css"),
		{Group: []LinkNode{Group("css/c.css")}},
	}
	once := Flatten(nodes)
	twice := Flatten(Leaves(once))
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("flatten not idempotent: %v vs %v", once, twice)
	}
	// duplicates are kept, deduplication is by position only
	if len(once) != 4 {
		t.Fatalf("expected 4 links, got %v", once)
	}
}

func TestMergeKeepsBaseAndRouteUntouched(t *testing.T) {
	route, err := FromMap(homeRoute())
	if err != nil {
		t.Fatalf("FromMap failed: %v", err)
	}
	base := Base()
	merged := Merge(base, route)

	if base.Slot("11").Content.declared() {
		t.Fatal("merge modified the base value")
	}
	merged.Slot("11").Content.Items[0] = "changed"
	if route.Slot("11").Content.Items[0] != "testComponent/test.js" {
		t.Fatal("merged value shares memory with the route")
	}

	// base slots first, route-only slots appended in order
	var ids []string
	for _, s := range merged.Slots {
		ids = append(ids, s.ID)
	}
	want := []string{"11", "13", "21", "23", "31", "32", "33", "4", "40"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("merged slot order: got %v want %v", ids, want)
	}

	// c23 declared only content: data falls back to the base's empty table
	c23 := merged.Slot("23")
	if c23.Data.Single == nil || len(c23.Data.Single) != 0 {
		t.Fatalf("c23 should keep the base data, got %+v", c23.Data)
	}
	if flags, _ := merged.Flags("2"); flags != (Flags{true, true}) {
		t.Fatalf("c2 flags not merged: %v", flags)
	}
}

func TestToMapRoundTripKeepsShape(t *testing.T) {
	route, err := FromMap(homeRoute())
	if err != nil {
		t.Fatalf("FromMap failed: %v", err)
	}
	again, err := FromMap(route.ToMap())
	if err != nil {
		t.Fatalf("FromMap(ToMap) failed: %v", err)
	}
	if !reflect.DeepEqual(route.Slot("11"), again.Slot("11")) {
		t.Fatalf("c11 changed: %+v vs %+v", route.Slot("11"), again.Slot("11"))
	}
	if again.Name != route.Name {
		t.Fatalf("name lost: %q", again.Name)
	}
}

func TestNewSlotEnforcesPairing(t *testing.T) {
	_, err := NewSlot("1", Multi("a.comp", "b.comp"), Many(map[string]any{}))
	var cerr *ConsistencyError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConsistencyError, got %v", err)
	}
	if cerr.Want != 2 || cerr.Got != 1 {
		t.Fatalf("unexpected lengths: %+v", cerr)
	}

	s, err := NewSlot("1", Single("<p>x</p>"), One(nil))
	if err != nil {
		t.Fatalf("scalar slot rejected: %v", err)
	}
	if s.ContentKey() != "c1_content" || s.DataKey() != "c1_ejsData" {
		t.Fatalf("unexpected keys %s %s", s.ContentKey(), s.DataKey())
	}

	if _, err := NewSlot("x y", Single(""), One(nil)); err == nil {
		t.Fatal("expected invalid id error")
	}
}

func TestSectionIDAndKeys(t *testing.T) {
	tests := []struct {
		key  string
		id   string
		ok   bool
		data string
	}{
		{"c11_content", "11", true, "c11_ejsData"},
		{"c2b_content", "2b", true, "c2b_ejsData"},
		{"cx_content", "", false, ""},
		{"headCssLinks", "", false, ""},
	}
	for _, tt := range tests {
		id, ok := SectionID(tt.key)
		if id != tt.id || ok != tt.ok {
			t.Errorf("SectionID(%q) = %q, %v", tt.key, id, ok)
			continue
		}
		if ok && DataKey(id) != tt.data {
			t.Errorf("DataKey(%q) = %q", id, DataKey(id))
		}
	}
}
