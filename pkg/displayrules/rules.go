package displayrules

import (
	"fmt"
	"regexp"
)

// Wire keys shared between route authors and the engine.
const (
	ContentSuffix   = "_content"
	DataSuffix      = "_ejsData"
	StyleSuffix     = "_style"
	HeadCSSLinksKey = "headCssLinks"
	NameKey         = "thisName"
)

var (
	contentKeyPattern = regexp.MustCompile(`^c([0-9][0-9A-Za-z]*)_content$`)
	dataKeyPattern    = regexp.MustCompile(`^c([0-9][0-9A-Za-z]*)_ejsData$`)
	styleKeyPattern   = regexp.MustCompile(`^c([0-9][0-9A-Za-z]*)_style$`)
	sectionKeyPattern = regexp.MustCompile(`^c([0-9][0-9A-Za-z]*)$`)
)

// SectionID returns the token between "c" and "_content" in a content key.
// The second return value is false for keys that don't follow the
// convention.
func SectionID(contentKey string) (string, bool) {
	m := contentKeyPattern.FindStringSubmatch(contentKey)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ContentKey returns the content key for a slot id, e.g. "c11_content".
func ContentKey(id string) string { return "c" + id + ContentSuffix }

// DataKey returns the data key paired with a slot id, e.g. "c11_ejsData".
func DataKey(id string) string { return "c" + id + DataSuffix }

// StyleKey returns the static stylesheet key of a slot id.
func StyleKey(id string) string { return "c" + id + StyleSuffix }

// Flags marks which of the two fixed partial positions of a section are
// active: index 0 is the "first" partial, index 1 the "last" one.
type Flags [2]bool

func (f Flags) First() bool { return f[0] }
func (f Flags) Last() bool  { return f[1] }

// Section is a c<N> entry of the display rules.
type Section struct {
	ID    string
	Flags Flags
}

// Key returns the wire key of the section, e.g. "c1".
func (s Section) Key() string { return "c" + s.ID }

// Content is what fills a slot: a single fragment reference or an ordered
// sequence of them. Multi is fixed at construction; resolution replaces
// element values but never changes the shape.
type Content struct {
	Items []string
	Multi bool
}

// Single builds scalar content.
func Single(ref string) Content {
	return Content{Items: []string{ref}}
}

// Multi builds sequence content.
func Multi(refs ...string) Content {
	items := make([]string, len(refs))
	copy(items, refs)
	return Content{Items: items, Multi: true}
}

// Value returns the scalar value, or "" for empty content.
func (c Content) Value() string {
	if len(c.Items) == 0 {
		return ""
	}
	return c.Items[0]
}

// Len is the number of fragment references held.
func (c Content) Len() int { return len(c.Items) }

// declared reports whether the content was set at all. A zero Content
// mirrors a null slot of the base shape.
func (c Content) declared() bool { return c.Multi || c.Items != nil }

func (c Content) clone() Content {
	if c.Items == nil {
		return Content{Multi: c.Multi}
	}
	items := make([]string, len(c.Items))
	copy(items, c.Items)
	return Content{Items: items, Multi: c.Multi}
}

// Data is the payload handed to the components of a slot: one mapping for
// scalar content, one mapping per element for sequence content.
type Data struct {
	Single map[string]any
	Items  []map[string]any
	Multi  bool
}

// One builds a single data mapping.
func One(m map[string]any) Data {
	if m == nil {
		m = map[string]any{}
	}
	return Data{Single: m}
}

// Many builds positional data, one mapping per content element.
func Many(items ...map[string]any) Data {
	out := make([]map[string]any, len(items))
	copy(out, items)
	return Data{Items: out, Multi: true}
}

// Len returns the number of positional items, or -1 when the data is not a
// sequence.
func (d Data) Len() int {
	if !d.Multi {
		return -1
	}
	return len(d.Items)
}

// At returns the mapping for a position. Scalar data ignores the index.
func (d Data) At(index int) map[string]any {
	if !d.Multi {
		return d.Single
	}
	if index < 0 || index >= len(d.Items) {
		return nil
	}
	return d.Items[index]
}

func (d Data) declared() bool { return d.Multi || d.Single != nil }

func (d Data) clone() Data {
	out := Data{Multi: d.Multi}
	if d.Single != nil {
		out.Single = cloneMap(d.Single)
	}
	if d.Items != nil {
		out.Items = make([]map[string]any, len(d.Items))
		for i, item := range d.Items {
			out.Items[i] = cloneMap(item)
		}
	}
	return out
}

// Slot is the typed record behind the c<N>_content, c<N>_ejsData and
// c<N>_style keys.
type Slot struct {
	ID      string
	Content Content
	Data    Data
	Style   string
}

// NewSlot builds a slot and enforces the content/data pairing: sequence
// content requires positional data of the same length.
func NewSlot(id string, content Content, data Data) (*Slot, error) {
	if !sectionKeyPattern.MatchString("c" + id) {
		return nil, fmt.Errorf("invalid slot id %q", id)
	}
	s := &Slot{ID: id, Content: content.clone(), Data: data.clone()}
	if err := s.check(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Slot) ContentKey() string { return ContentKey(s.ID) }
func (s *Slot) DataKey() string    { return DataKey(s.ID) }
func (s *Slot) StyleKey() string   { return StyleKey(s.ID) }

func (s *Slot) check() error {
	if !s.Content.Multi {
		return nil
	}
	if s.Data.Multi && len(s.Data.Items) == s.Content.Len() {
		return nil
	}
	return &ConsistencyError{
		ContentKey: s.ContentKey(),
		DataKey:    s.DataKey(),
		Want:       s.Content.Len(),
		Got:        s.Data.Len(),
	}
}

func (s *Slot) clone() *Slot {
	return &Slot{
		ID:      s.ID,
		Content: s.Content.clone(),
		Data:    s.Data.clone(),
		Style:   s.Style,
	}
}

// LinkNode is an entry of the head stylesheet list. A node is either a URL
// leaf or a group of nodes; groups appear when a component contributes
// several stylesheets at once.
type LinkNode struct {
	URL   string
	Group []LinkNode
}

// Link builds a leaf node.
func Link(url string) LinkNode { return LinkNode{URL: url} }

// Group builds a group of leaves.
func Group(urls ...string) LinkNode {
	nodes := make([]LinkNode, len(urls))
	for i, u := range urls {
		nodes[i] = Link(u)
	}
	return LinkNode{Group: nodes}
}

// IsGroup reports whether the node holds children instead of a URL.
func (n LinkNode) IsGroup() bool { return n.Group != nil }

func (n LinkNode) clone() LinkNode {
	if n.Group == nil {
		return n
	}
	group := make([]LinkNode, len(n.Group))
	for i, child := range n.Group {
		group[i] = child.clone()
	}
	return LinkNode{URL: n.URL, Group: group}
}

// Flatten returns the URLs of a node list depth-first, keeping order and
// duplicates. Flatten(Leaves(Flatten(x))) equals Flatten(x).
func Flatten(nodes []LinkNode) []string {
	out := make([]string, 0, len(nodes))
	var walk func([]LinkNode)
	walk = func(ns []LinkNode) {
		for _, n := range ns {
			if n.IsGroup() {
				walk(n.Group)
				continue
			}
			out = append(out, n.URL)
		}
	}
	walk(nodes)
	return out
}

// Leaves turns a flat URL list back into leaf nodes.
func Leaves(urls []string) []LinkNode {
	nodes := make([]LinkNode, len(urls))
	for i, u := range urls {
		nodes[i] = Link(u)
	}
	return nodes
}

// DisplayRules is the per-request view-model: section flags, content slots,
// the head stylesheet list and any unknown keys declared by the route.
type DisplayRules struct {
	Name         string
	Sections     []Section
	Slots        []*Slot
	HeadCSSLinks []LinkNode
	Extra        map[string]any
}

// Slot returns the slot with the given id, or nil.
func (r *DisplayRules) Slot(id string) *Slot {
	for _, s := range r.Slots {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// SlotForDataKey returns the slot paired with a c<N>_ejsData key, or nil.
func (r *DisplayRules) SlotForDataKey(key string) *Slot {
	m := dataKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return nil
	}
	return r.Slot(m[1])
}

// Flags returns the flags of a section.
func (r *DisplayRules) Flags(id string) (Flags, bool) {
	for _, s := range r.Sections {
		if s.ID == id {
			return s.Flags, true
		}
	}
	return Flags{}, false
}

// SetFlags replaces or adds the flags of a section.
func (r *DisplayRules) SetFlags(id string, flags Flags) {
	for i := range r.Sections {
		if r.Sections[i].ID == id {
			r.Sections[i].Flags = flags
			return
		}
	}
	r.Sections = append(r.Sections, Section{ID: id, Flags: flags})
}

// AddSlot appends a slot, or replaces the slot with the same id in place.
func (r *DisplayRules) AddSlot(slot *Slot) {
	for i, s := range r.Slots {
		if s.ID == slot.ID {
			r.Slots[i] = slot
			return
		}
	}
	r.Slots = append(r.Slots, slot)
}

// AppendLinks appends nodes to the head stylesheet list.
func (r *DisplayRules) AppendLinks(nodes ...LinkNode) {
	r.HeadCSSLinks = append(r.HeadCSSLinks, nodes...)
}

// Clone returns a deep copy. Stages of the pipeline work on clones so the
// value they received stays untouched.
func (r *DisplayRules) Clone() *DisplayRules {
	if r == nil {
		return nil
	}
	out := &DisplayRules{Name: r.Name}
	if r.Sections != nil {
		out.Sections = make([]Section, len(r.Sections))
		copy(out.Sections, r.Sections)
	}
	if r.Slots != nil {
		out.Slots = make([]*Slot, len(r.Slots))
		for i, s := range r.Slots {
			out.Slots[i] = s.clone()
		}
	}
	if r.HeadCSSLinks != nil {
		out.HeadCSSLinks = make([]LinkNode, len(r.HeadCSSLinks))
		for i, n := range r.HeadCSSLinks {
			out.HeadCSSLinks[i] = n.clone()
		}
	}
	if r.Extra != nil {
		out.Extra = cloneMap(r.Extra)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, item := range t {
			out[i] = cloneMap(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
