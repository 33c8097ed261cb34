package render

import (
	"html/template"

	"github.com/rubiojr/slotweave/pkg/displayrules"
)

// View is what layouts and partials execute against. It is built from an
// assembled view-model, so every slot holds a single string.
//
//	{{ if (.Section "1").First }}...{{ end }}
//	{{ .Slot "11" }}
//	{{ with .Data "11" }}{{ .title }}{{ end }}
//	{{ range .Links }}<link rel="stylesheet" href="{{ . }}">{{ end }}
type View struct {
	Name     string
	Links    []string
	Extra    map[string]any
	Reload   bool
	sections map[string]displayrules.Flags
	slots    map[string]template.HTML
	data     map[string]displayrules.Data
	styles   map[string]string
}

// NewView converts an assembled view-model. Slot content is trusted markup:
// it was either authored in the route table or produced by a component.
func NewView(rules *displayrules.DisplayRules, links []string) *View {
	v := &View{
		Name:     rules.Name,
		Links:    links,
		Extra:    rules.Extra,
		sections: make(map[string]displayrules.Flags, len(rules.Sections)),
		slots:    make(map[string]template.HTML, len(rules.Slots)),
		data:     make(map[string]displayrules.Data, len(rules.Slots)),
		styles:   make(map[string]string),
	}
	for _, s := range rules.Sections {
		v.sections[s.ID] = s.Flags
	}
	for _, s := range rules.Slots {
		v.slots[s.ID] = template.HTML(s.Content.Value())
		v.data[s.ID] = s.Data
		if s.Style != "" {
			v.styles[s.ID] = s.Style
		}
	}
	return v
}

// Section returns the flags of a section; unknown sections are hidden.
func (v *View) Section(id string) displayrules.Flags {
	return v.sections[id]
}

// Slot returns the rendered content of a slot.
func (v *View) Slot(id string) template.HTML {
	return v.slots[id]
}

// HasSlot reports whether the slot has any content.
func (v *View) HasSlot(id string) bool {
	return v.slots[id] != ""
}

// Data returns the data of a slot: its single mapping, or the list of
// mappings of a sequence slot.
func (v *View) Data(id string) any {
	d, ok := v.data[id]
	if !ok {
		return nil
	}
	if d.Multi {
		return d.Items
	}
	return d.Single
}

// Style returns the stylesheet declared by c<id>_style, if any.
func (v *View) Style(id string) string {
	return v.styles[id]
}
