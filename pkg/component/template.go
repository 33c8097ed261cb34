package component

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
	texttemplate "text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// TemplateComponent renders an html/template file of the components
// directory. The file is read on every call so edits show up without a
// restart. The template sees:
//
//	.partialData  the data mapping of this invocation
//	.dataKey      the c<N>_ejsData key of the slot
//	.index        the element position (0 for scalar slots)
type TemplateComponent struct {
	fsys     fs.FS
	location string
	funcs    template.FuncMap
}

// NewTemplateComponent creates a component for the template at location,
// a slash-separated path inside fsys.
func NewTemplateComponent(fsys fs.FS, location string, funcs template.FuncMap) *TemplateComponent {
	return &TemplateComponent{fsys: fsys, location: location, funcs: funcs}
}

// Name is the location without its extension.
func (c *TemplateComponent) Name() string {
	return strings.TrimSuffix(c.location, path.Ext(c.location))
}

// Location returns the template path inside the components directory.
func (c *TemplateComponent) Location() string {
	return c.location
}

// Fragment executes the template with the request's data.
func (c *TemplateComponent) Fragment(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := fs.ReadFile(c.fsys, c.location)
	if err != nil {
		return "", fmt.Errorf("reading template %s: %w", c.location, err)
	}
	tmpl, err := template.New(c.location).Funcs(c.funcs).Parse(string(src))
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", c.location, err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, templateData(req)); err != nil {
		return "", fmt.Errorf("executing template %s: %w", c.location, err)
	}
	return buf.String(), nil
}

// MarkdownComponent renders a markdown file of the components directory.
// The file is first executed as a text template with the same data as
// TemplateComponent, then converted to HTML. Raw HTML in the markdown is
// not passed through.
type MarkdownComponent struct {
	fsys     fs.FS
	location string
	funcs    template.FuncMap
	md       goldmark.Markdown
}

// NewMarkdownComponent creates a component for the markdown file at
// location.
func NewMarkdownComponent(fsys fs.FS, location string, funcs template.FuncMap) *MarkdownComponent {
	return &MarkdownComponent{
		fsys:     fsys,
		location: location,
		funcs:    funcs,
		md:       goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Name is the location without its extension.
func (c *MarkdownComponent) Name() string {
	return strings.TrimSuffix(c.location, path.Ext(c.location))
}

// Location returns the markdown path inside the components directory.
func (c *MarkdownComponent) Location() string {
	return c.location
}

// Fragment expands and converts the markdown file.
func (c *MarkdownComponent) Fragment(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := fs.ReadFile(c.fsys, c.location)
	if err != nil {
		return "", fmt.Errorf("reading markdown %s: %w", c.location, err)
	}
	tmpl, err := texttemplate.New(c.location).Funcs(texttemplate.FuncMap(c.funcs)).Parse(string(src))
	if err != nil {
		return "", fmt.Errorf("parsing markdown %s: %w", c.location, err)
	}
	var expanded bytes.Buffer
	if err := tmpl.Execute(&expanded, templateData(req)); err != nil {
		return "", fmt.Errorf("executing markdown %s: %w", c.location, err)
	}
	var out bytes.Buffer
	if err := c.md.Convert(expanded.Bytes(), &out); err != nil {
		return "", fmt.Errorf("converting markdown %s: %w", c.location, err)
	}
	return out.String(), nil
}

func templateData(req Request) map[string]any {
	return map[string]any{
		"partialData": req.Data(),
		"dataKey":     req.DataKey,
		"index":       req.Index,
	}
}

// Discover registers a TemplateComponent for every .html file and a
// MarkdownComponent for every .md file below the root of fsys. It returns
// the number of components registered.
func (r *Registry) Discover(fsys fs.FS, funcs template.FuncMap) (int, error) {
	count := 0
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		var unit Unit
		switch path.Ext(p) {
		case ".html":
			unit = NewTemplateComponent(fsys, p, funcs)
		case ".md":
			unit = NewMarkdownComponent(fsys, p, funcs)
		default:
			return nil
		}
		if err := r.Register(unit); err != nil {
			return fmt.Errorf("discovering %s: %w", p, err)
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("walking components: %w", err)
	}
	return count, nil
}
