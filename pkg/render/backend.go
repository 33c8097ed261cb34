package render

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
	"sync"
)

// Backend renders assembled pages and evaluates inline expressions.
type Backend interface {
	RenderTemplate(ctx context.Context, name string, view *View) (string, error)
	Evaluate(ctx context.Context, raw string, data map[string]any) (string, error)
}

// IsExpression reports whether a slot value carries template syntax.
func IsExpression(s string) bool {
	return strings.Contains(s, "{{")
}

var _ Backend = &HTMLBackend{}

// HTMLBackend renders html/template files from a views filesystem. Every
// *.html file of the views root is parsed into one set, named by its file
// name, so the layout can pull partials in with {{ template "c11.html" . }}.
//
// Parsed sets and inline expressions are cached; NoCache re-parses on every
// call, which is what dev mode wants.
type HTMLBackend struct {
	NoCache bool

	views fs.FS
	funcs template.FuncMap

	setMu sync.RWMutex
	set   *template.Template

	exprMu    sync.RWMutex
	exprCache map[string]*template.Template
}

// NewHTMLBackend creates a backend for the templates in views.
func NewHTMLBackend(views fs.FS, funcs template.FuncMap) *HTMLBackend {
	if funcs == nil {
		funcs = GetTemplateFuncs()
	}
	return &HTMLBackend{
		views:     views,
		funcs:     funcs,
		exprCache: map[string]*template.Template{},
	}
}

func (b *HTMLBackend) templates() (*template.Template, error) {
	if !b.NoCache {
		b.setMu.RLock()
		set := b.set
		b.setMu.RUnlock()
		if set != nil {
			return set, nil
		}
	}
	set, err := template.New("").Funcs(b.funcs).ParseFS(b.views, "*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing views: %w", err)
	}
	if !b.NoCache {
		b.setMu.Lock()
		b.set = set
		b.setMu.Unlock()
	}
	return set, nil
}

// RenderTemplate executes the named view file.
func (b *HTMLBackend) RenderTemplate(ctx context.Context, name string, view *View) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	set, err := b.templates()
	if err != nil {
		return "", err
	}
	if set.Lookup(name) == nil {
		return "", fmt.Errorf("view %s not found", name)
	}
	var buf strings.Builder
	if err := set.ExecuteTemplate(&buf, name, view); err != nil {
		return "", fmt.Errorf("executing view %s: %w", name, err)
	}
	return buf.String(), nil
}

// Evaluate executes raw as an inline template against data.
func (b *HTMLBackend) Evaluate(ctx context.Context, raw string, data map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tmpl, err := b.expression(raw)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (b *HTMLBackend) expression(raw string) (*template.Template, error) {
	b.exprMu.RLock()
	tmpl, ok := b.exprCache[raw]
	b.exprMu.RUnlock()
	if ok {
		return tmpl, nil
	}
	tmpl, err := template.New("expression").Funcs(b.funcs).Option("missingkey=zero").Parse(raw)
	if err != nil {
		return nil, err
	}
	if !b.NoCache {
		b.exprMu.Lock()
		b.exprCache[raw] = tmpl
		b.exprMu.Unlock()
	}
	return tmpl, nil
}

// Invalidate drops cached templates so the next render re-reads the views.
func (b *HTMLBackend) Invalidate() {
	b.setMu.Lock()
	b.set = nil
	b.setMu.Unlock()
	b.exprMu.Lock()
	b.exprCache = map[string]*template.Template{}
	b.exprMu.Unlock()
}

// ExpressionError is the fragment substituted for an inline expression that
// failed to parse or execute.
func ExpressionError(err error) string {
	return `<span style="color:red">Template error: ` + template.HTMLEscapeString(err.Error()) + `</span>`
}
