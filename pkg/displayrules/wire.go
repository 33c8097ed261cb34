package displayrules

import (
	"fmt"
)

// FromMap parses display rules written with the slot naming convention, as
// decoded from a TOML route table:
//
//	thisName    = "handlerHome"
//	c1          = [true, false]
//	c11_content = ["testComponent/test.js"]
//	c11_ejsData = [{ testString = "apple theft" }]
//	c21_content = "<p>{{ .ejstest }}</p>"
//	c21_ejsData = { ejstest = "apple theft" }
//
// Slots are ordered naturally by id. Keys that don't follow the convention
// are kept in Extra. The content/data pairing is not validated here; Check
// does that before resolution.
func FromMap(raw map[string]any) (*DisplayRules, error) {
	r := &DisplayRules{Extra: map[string]any{}}
	slots := map[string]*Slot{}
	slotFor := func(id string) *Slot {
		s, ok := slots[id]
		if !ok {
			s = &Slot{ID: id}
			slots[id] = s
		}
		return s
	}
	var sectionIDs []string
	sections := map[string]Flags{}

	for key, value := range raw {
		switch {
		case key == NameKey:
			name, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be a string, got %T", key, value)
			}
			r.Name = name
		case key == HeadCSSLinksKey:
			links, err := parseLinks(value)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", key, err)
			}
			r.HeadCSSLinks = links
		case contentKeyPattern.MatchString(key):
			id := contentKeyPattern.FindStringSubmatch(key)[1]
			if value == nil {
				continue
			}
			content, err := parseContent(value)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", key, err)
			}
			slotFor(id).Content = content
		case dataKeyPattern.MatchString(key):
			id := dataKeyPattern.FindStringSubmatch(key)[1]
			if value == nil {
				continue
			}
			data, err := parseData(value)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", key, err)
			}
			slotFor(id).Data = data
		case styleKeyPattern.MatchString(key):
			id := styleKeyPattern.FindStringSubmatch(key)[1]
			style, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be a string, got %T", key, value)
			}
			slotFor(id).Style = style
		case sectionKeyPattern.MatchString(key) && isList(value):
			id := sectionKeyPattern.FindStringSubmatch(key)[1]
			flags, err := parseFlags(value)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", key, err)
			}
			sections[id] = flags
			sectionIDs = append(sectionIDs, id)
		default:
			r.Extra[key] = cloneValue(value)
		}
	}

	sortIDs(sectionIDs)
	for _, id := range sectionIDs {
		r.Sections = append(r.Sections, Section{ID: id, Flags: sections[id]})
	}
	ids := make([]string, 0, len(slots))
	for id := range slots {
		ids = append(ids, id)
	}
	sortIDs(ids)
	for _, id := range ids {
		r.Slots = append(r.Slots, slots[id])
	}
	return r, nil
}

// ToMap renders display rules back into the wire form.
func (r *DisplayRules) ToMap() map[string]any {
	out := make(map[string]any, len(r.Extra)+len(r.Slots)*2+len(r.Sections)+2)
	for k, v := range r.Extra {
		out[k] = cloneValue(v)
	}
	if r.Name != "" {
		out[NameKey] = r.Name
	}
	for _, s := range r.Sections {
		out[s.Key()] = []any{s.Flags[0], s.Flags[1]}
	}
	for _, s := range r.Slots {
		switch {
		case s.Content.Multi:
			items := make([]any, len(s.Content.Items))
			for i, item := range s.Content.Items {
				items[i] = item
			}
			out[s.ContentKey()] = items
		case s.Content.declared():
			out[s.ContentKey()] = s.Content.Value()
		default:
			out[s.ContentKey()] = nil
		}
		switch {
		case s.Data.Multi:
			items := make([]any, len(s.Data.Items))
			for i, item := range s.Data.Items {
				items[i] = cloneMap(item)
			}
			out[s.DataKey()] = items
		case s.Data.Single != nil:
			out[s.DataKey()] = cloneMap(s.Data.Single)
		}
		if s.Style != "" {
			out[s.StyleKey()] = s.Style
		}
	}
	out[HeadCSSLinksKey] = linksToWire(r.HeadCSSLinks)
	return out
}

func isList(v any) bool {
	switch v.(type) {
	case []any, []bool:
		return true
	}
	return false
}

func parseFlags(v any) (Flags, error) {
	var flags Flags
	switch t := v.(type) {
	case []bool:
		if len(t) != 2 {
			return flags, fmt.Errorf("expected exactly 2 flags, got %d", len(t))
		}
		copy(flags[:], t)
		return flags, nil
	case []any:
		if len(t) != 2 {
			return flags, fmt.Errorf("expected exactly 2 flags, got %d", len(t))
		}
		for i, item := range t {
			b, ok := item.(bool)
			if !ok {
				return flags, fmt.Errorf("flag %d must be a bool, got %T", i, item)
			}
			flags[i] = b
		}
		return flags, nil
	}
	return flags, fmt.Errorf("expected a list of 2 bools, got %T", v)
}

func parseContent(v any) (Content, error) {
	switch t := v.(type) {
	case string:
		return Single(t), nil
	case []string:
		return Multi(t...), nil
	case []any:
		items := make([]string, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return Content{}, fmt.Errorf("element %d must be a string, got %T", i, item)
			}
			items[i] = s
		}
		return Multi(items...), nil
	}
	return Content{}, fmt.Errorf("expected a string or a list of strings, got %T", v)
}

func parseData(v any) (Data, error) {
	switch t := v.(type) {
	case map[string]any:
		return One(cloneMap(t)), nil
	case []map[string]any:
		items := make([]map[string]any, len(t))
		for i, item := range t {
			items[i] = cloneMap(item)
		}
		return Many(items...), nil
	case []any:
		items := make([]map[string]any, len(t))
		for i, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return Data{}, fmt.Errorf("element %d must be a table, got %T", i, item)
			}
			items[i] = cloneMap(m)
		}
		return Many(items...), nil
	}
	return Data{}, fmt.Errorf("expected a table or a list of tables, got %T", v)
}

func parseLinks(v any) ([]LinkNode, error) {
	switch t := v.(type) {
	case nil:
		return []LinkNode{}, nil
	case string:
		return []LinkNode{Link(t)}, nil
	case []string:
		return Leaves(t), nil
	case []any:
		nodes := make([]LinkNode, 0, len(t))
		for i, item := range t {
			switch it := item.(type) {
			case string:
				nodes = append(nodes, Link(it))
			default:
				children, err := parseLinks(it)
				if err != nil {
					return nil, fmt.Errorf("element %d: %w", i, err)
				}
				nodes = append(nodes, LinkNode{Group: children})
			}
		}
		return nodes, nil
	}
	return nil, fmt.Errorf("expected a string or a (nested) list of strings, got %T", v)
}

func linksToWire(nodes []LinkNode) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		if n.IsGroup() {
			out[i] = linksToWire(n.Group)
			continue
		}
		out[i] = n.URL
	}
	return out
}
