package component

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// TemplComponent adapts a templ component factory to the resolver. The
// factory receives the data mapping of each invocation.
type TemplComponent struct {
	name        string
	build       func(data map[string]any) templ.Component
	stylesheets []string
}

// NewTemplComponent creates a named templ-backed component. Stylesheets,
// when given, are declared relative to the component's directory under the
// components root.
func NewTemplComponent(name string, build func(data map[string]any) templ.Component, stylesheets ...string) *TemplComponent {
	return &TemplComponent{name: name, build: build, stylesheets: stylesheets}
}

func (c *TemplComponent) Name() string { return c.name }

// Location places the component in the components tree by name so
// declared stylesheets resolve next to it.
func (c *TemplComponent) Location() string { return c.name }

func (c *TemplComponent) Stylesheets(_ context.Context) []string {
	out := make([]string, len(c.stylesheets))
	copy(out, c.stylesheets)
	return out
}

func (c *TemplComponent) Fragment(ctx context.Context, req Request) (string, error) {
	var buf strings.Builder
	if err := c.build(req.Data()).Render(ctx, &buf); err != nil {
		return "", fmt.Errorf("rendering %s: %w", c.name, err)
	}
	return buf.String(), nil
}

func init() {
	RegisterGlobal(NewTemplComponent("core/list", listView, "list.css"))
}

// listView renders data["items"] as an unordered list, with an optional
// data["title"] heading.
func listView(data map[string]any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		if title, ok := data["title"].(string); ok && title != "" {
			b.WriteString("<h3>" + templ.EscapeString(title) + "</h3>")
		}
		b.WriteString(`<ul class="core-list">`)
		for _, item := range stringItems(data["items"]) {
			b.WriteString("<li>" + templ.EscapeString(item) + "</li>")
		}
		b.WriteString("</ul>")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func stringItems(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(t)}
	}
}
