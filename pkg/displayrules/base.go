package displayrules

import (
	"sort"

	"github.com/maruel/natural"
)

// baseSectionIDs and baseSlotIDs describe the canonical page shape: three
// sections, each with an optional first (N1) and last (N3) partial around an
// always-present middle one (N2). c32 is the only middle partial that holds
// content.
var (
	baseSectionIDs = []string{"1", "2", "3"}
	baseSlotIDs    = []string{"11", "13", "21", "23", "31", "32", "33"}
)

// Base returns a fresh, empty view-model with the canonical shape. Every
// request starts from its own Base value.
func Base() *DisplayRules {
	r := &DisplayRules{
		Sections:     make([]Section, 0, len(baseSectionIDs)),
		Slots:        make([]*Slot, 0, len(baseSlotIDs)),
		HeadCSSLinks: []LinkNode{},
		Extra:        map[string]any{},
	}
	for _, id := range baseSectionIDs {
		r.Sections = append(r.Sections, Section{ID: id})
	}
	for _, id := range baseSlotIDs {
		r.Slots = append(r.Slots, &Slot{ID: id, Data: One(nil)})
	}
	return r
}

// BaseSlotIDs returns the slot ids of the canonical shape in order.
func BaseSlotIDs() []string {
	out := make([]string, len(baseSlotIDs))
	copy(out, baseSlotIDs)
	return out
}

// Merge shallow-merges route on top of base and returns a new value; neither
// argument is modified. Merging happens key by key as on the wire: a route
// slot that only declares content keeps the base data, and so on. Slots the
// base doesn't know are appended in the route's order.
func Merge(base, route *DisplayRules) *DisplayRules {
	out := base.Clone()
	if out == nil {
		out = &DisplayRules{}
	}
	if route == nil {
		return out
	}
	if route.Name != "" {
		out.Name = route.Name
	}
	for _, s := range route.Sections {
		out.SetFlags(s.ID, s.Flags)
	}
	for _, rs := range route.Slots {
		existing := out.Slot(rs.ID)
		if existing == nil {
			out.Slots = append(out.Slots, rs.clone())
			continue
		}
		if rs.Content.declared() {
			existing.Content = rs.Content.clone()
		}
		if rs.Data.declared() {
			existing.Data = rs.Data.clone()
		}
		if rs.Style != "" {
			existing.Style = rs.Style
		}
	}
	if route.HeadCSSLinks != nil {
		out.HeadCSSLinks = route.Clone().HeadCSSLinks
	}
	if len(route.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = map[string]any{}
		}
		for k, v := range route.Extra {
			out.Extra[k] = cloneValue(v)
		}
	}
	return out
}

// sortIDs orders slot or section ids naturally, so c4 comes before c10.
func sortIDs(ids []string) {
	sort.Sort(natural.StringSlice(ids))
}
