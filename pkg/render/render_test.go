package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubiojr/slotweave/pkg/assets"
	"github.com/rubiojr/slotweave/pkg/component"
	"github.com/rubiojr/slotweave/pkg/displayrules"
)

// staticUnit returns a fixed fragment and counts its invocations.
type staticUnit struct {
	name     string
	location string
	html     string
	delay    time.Duration
	calls    atomic.Int32
}

func (u *staticUnit) Name() string     { return u.name }
func (u *staticUnit) Location() string { return u.location }

func (u *staticUnit) Fragment(ctx context.Context, req component.Request) (string, error) {
	u.calls.Add(1)
	if u.delay > 0 {
		select {
		case <-time.After(u.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if req.Positional {
		return fmt.Sprintf("%s#%d", u.html, req.Index), nil
	}
	return u.html, nil
}

// bareUnit lacks the Fragment capability.
type bareUnit struct{ name, location string }

func (u bareUnit) Name() string     { return u.name }
func (u bareUnit) Location() string { return u.location }

type failingUnit struct{ name string }

func (u failingUnit) Name() string { return u.name }
func (u failingUnit) Fragment(context.Context, component.Request) (string, error) {
	return "", errors.New("boom")
}

func sources() fstest.MapFS {
	return fstest.MapFS{
		"components/a/a.html":   {Data: []byte(`<a></a>`)},
		"components/a/a1.css":   {Data: []byte(`.a1{}`)},
		"components/a/a2.scss":  {Data: []byte(`.a2{}`)},
		"components/b/b.html":   {Data: []byte(`<b></b>`)},
		"components/b/b.css":    {Data: []byte(`.b{}`)},
		"components/bare/x.js":  {Data: []byte(``)},
		"components/bare/x.css": {Data: []byte(`.x{}`)},
	}
}

type fixture struct {
	reg      *component.Registry
	a, b     *staticUnit
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		reg: component.NewRegistry(),
		a:   &staticUnit{name: "a", location: "a/a.html", html: "<i>A</i>"},
		b:   &staticUnit{name: "b", location: "b/b.html", html: "<i>B</i>"},
	}
	require.NoError(t, f.reg.Register(f.a))
	require.NoError(t, f.reg.Register(f.b))
	require.NoError(t, f.reg.Register(bareUnit{name: "bare", location: "bare/x.js"}))
	require.NoError(t, f.reg.Register(failingUnit{name: "broken"}))
	collector := assets.NewCollector(sources(), "components", "css")
	f.resolver = NewResolver(f.reg, collector, NewHTMLBackend(fstest.MapFS{}, nil))
	return f
}

func rules(t *testing.T, raw map[string]any) *displayrules.DisplayRules {
	t.Helper()
	r, err := displayrules.FromMap(raw)
	require.NoError(t, err)
	return r
}

func items(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = map[string]any{"i": i}
	}
	return out
}

func TestResolveSequenceKeepsPositionAndLinkOrder(t *testing.T) {
	f := newFixture(t)
	in := rules(t, map[string]any{
		"c11_content": []any{"a.comp", "<p>literal</p>", "b.comp"},
		"c11_ejsData": items(3),
	})

	out, err := f.resolver.Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"<i>A</i>#0", "<p>literal</p>", "<i>B</i>#2"}, out.Slot("11").Content.Items)
	assert.Equal(t, []string{
		"css/components/a/a1.css",
		"css/components/a/a2.css",
		"css/components/b/b.css",
	}, displayrules.Flatten(out.HeadCSSLinks))

	assembled, err := Assemble(out, time.UnixMilli(1000))
	require.NoError(t, err)
	assert.Equal(t, "<i>A</i>#0<p>literal</p><i>B</i>#2", assembled.Slot("11").Content.Value())
}

func TestResolveLeavesInputUntouched(t *testing.T) {
	f := newFixture(t)
	in := rules(t, map[string]any{
		"c11_content": []any{"a.comp"},
		"c11_ejsData": items(1),
	})
	before := in.ToMap()

	_, err := f.resolver.Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, before, in.ToMap())
}

func TestResolveScalarLiteralIsNotDispatched(t *testing.T) {
	f := newFixture(t)
	in := rules(t, map[string]any{
		"c2_content":  "<p>literal</p>",
		"c21_content": "example.com",
		"c22_content": "v1.2",
	})

	out, err := f.resolver.Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "<p>literal</p>", out.Slot("2").Content.Value())
	assert.Equal(t, "example.com", out.Slot("21").Content.Value())
	assert.Equal(t, "v1.2", out.Slot("22").Content.Value())
	assert.Zero(t, f.a.calls.Load()+f.b.calls.Load())
	assert.Empty(t, out.HeadCSSLinks)

	assembled, err := Assemble(out, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "<p>literal</p>", assembled.Slot("2").Content.Value())
}

func TestResolveScalarReference(t *testing.T) {
	f := newFixture(t)
	in := rules(t, map[string]any{
		"c21_content": "b.comp",
		"c21_ejsData": map[string]any{"x": 1},
	})
	out, err := f.resolver.Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "<i>B</i>", out.Slot("21").Content.Value())
	assert.EqualValues(t, 1, f.b.calls.Load())
}

func TestResolveFallbacks(t *testing.T) {
	f := newFixture(t)
	in := rules(t, map[string]any{
		"c11_content": []any{"bare.js", "missing.comp", "broken.comp", "b.comp"},
		"c11_ejsData": items(4),
	})

	out, err := f.resolver.Resolve(context.Background(), in)
	require.NoError(t, err)
	got := out.Slot("11").Content.Items
	assert.Equal(t, component.FallbackContract, got[0])
	assert.Equal(t, component.FallbackNotFound("missing.comp"), got[1])
	assert.Equal(t, component.FallbackFailed("broken.comp"), got[2])
	assert.Equal(t, "<i>B</i>#3", got[3], "siblings still resolve")

	// the contract violation still contributes its stylesheets, the unknown
	// reference has nowhere to look
	assert.Equal(t, []string{
		"css/components/bare/x.css",
		"css/components/b/b.css",
	}, displayrules.Flatten(out.HeadCSSLinks))
}

func TestResolveEvaluatesExpressions(t *testing.T) {
	f := newFixture(t)
	in := rules(t, map[string]any{
		"c21_content": "<p>c21 {{ .ejstest }}</p>",
		"c21_ejsData": map[string]any{"ejstest": "apple theft"},
		"c23_content": "{{ .x | nosuchfunc }}",
		"c31_content": "{{ index .list 5 }}",
		"c31_ejsData": map[string]any{"list": []any{1}},
	})

	out, err := f.resolver.Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "<p>c21 apple theft</p>", out.Slot("21").Content.Value())
	assert.True(t, strings.HasPrefix(out.Slot("23").Content.Value(), `<span style="color:red">Template error: `))
	assert.True(t, strings.HasPrefix(out.Slot("31").Content.Value(), `<span style="color:red">Template error: `))
}

func TestResolveParallelMatchesSequential(t *testing.T) {
	reg := component.NewRegistry()
	fsys := fstest.MapFS{}
	var refs []any
	var wantLinks []string
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("u%d", i)
		// later units finish first
		u := &staticUnit{
			name:     name,
			location: name + "/" + name + ".html",
			html:     fmt.Sprintf("<u%d>", i),
			delay:    time.Duration(6-i) * 5 * time.Millisecond,
		}
		require.NoError(t, reg.Register(u))
		fsys["components/"+name+"/"+name+".html"] = &fstest.MapFile{Data: []byte(u.html)}
		fsys["components/"+name+"/"+name+".css"] = &fstest.MapFile{Data: []byte("." + name + "{}")}
		refs = append(refs, name+".comp")
		wantLinks = append(wantLinks, "css/components/"+name+"/"+name+".css")
	}
	wantLinks = append(wantLinks, "css/components/u0/u0.css")

	in := rules(t, map[string]any{
		"c11_content": refs,
		"c11_ejsData": items(len(refs)),
		"c13_content": "u0.comp",
	})
	collector := assets.NewCollector(fsys, "components", "css")

	seq := NewResolver(reg, collector, nil)
	want, err := seq.Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, wantLinks, displayrules.Flatten(want.HeadCSSLinks))

	par := NewResolver(reg, collector, nil)
	par.Parallel = true
	got, err := par.Resolve(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, wantLinks, displayrules.Flatten(got.HeadCSSLinks), "links follow declaration order, not completion order")
	assert.Equal(t, want.ToMap(), got.ToMap())
}

func TestResolveHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.resolver.Resolve(ctx, rules(t, map[string]any{"c21_content": "b.comp"}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAssembleStampsDistinctVersions(t *testing.T) {
	in := rules(t, map[string]any{
		"headCssLinks": []any{[]any{"css/a.css", "css/b.css"}, "css/c.css"},
	})
	out, err := Assemble(in, time.UnixMilli(1000))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"css/a.css?v=1000",
		"css/b.css?v=1001",
		"css/c.css?v=1002",
	}, displayrules.Flatten(out.HeadCSSLinks))
}

func TestResolveAppendsSlotStylesLast(t *testing.T) {
	f := newFixture(t)
	in := rules(t, map[string]any{
		"c21_content": "b.comp",
		"c21_style":   "css/page.css",
		"c31_content": "<p>footer</p>",
		"c31_style":   "css/footer.css",
	})
	resolved, err := f.resolver.Resolve(context.Background(), in)
	require.NoError(t, err)
	out, err := Assemble(resolved, time.UnixMilli(1000))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"css/components/b/b.css?v=1000",
		"css/page.css?v=1001",
		"css/footer.css?v=1002",
	}, displayrules.Flatten(out.HeadCSSLinks))
}

func TestAssembleTwiceDoesNotCorrupt(t *testing.T) {
	in := rules(t, map[string]any{
		"headCssLinks": []any{[]any{"css/a.css"}, "css/b.css?theme=dark"},
		"c11_content":  []any{"<p>1</p>", "<p>2</p>"},
		"c11_ejsData":  items(2),
		"c21_content":  "<p>x</p>",
		"c21_style":    "css/page.css",
	})
	once, err := Assemble(in, time.UnixMilli(1000))
	require.NoError(t, err)
	twice, err := Assemble(once, time.UnixMilli(5000))
	require.NoError(t, err)

	assert.Equal(t, "<p>1</p><p>2</p>", twice.Slot("11").Content.Value())
	assert.Equal(t, "css/page.css", twice.Slot("21").Style)
	assert.Equal(t, []string{
		"css/a.css?v=5000",
		"css/b.css?theme=dark&v=5001",
	}, displayrules.Flatten(twice.HeadCSSLinks))
	assert.Len(t, once.HeadCSSLinks, len(twice.HeadCSSLinks))

	flat := displayrules.Flatten(once.HeadCSSLinks)
	assert.Equal(t, flat, displayrules.Flatten(displayrules.Leaves(flat)))
}

func TestAssembleRejectsMalformedLinks(t *testing.T) {
	in := rules(t, map[string]any{})
	in.HeadCSSLinks = []displayrules.LinkNode{{URL: "css/a.css", Group: []displayrules.LinkNode{displayrules.Link("x")}}}
	_, err := Assemble(in, time.Now())
	var ae *AssemblyError
	require.ErrorAs(t, err, &ae)

	in.HeadCSSLinks = []displayrules.LinkNode{displayrules.Group("css/a.css", " ")}
	_, err = Assemble(in, time.Now())
	require.ErrorAs(t, err, &ae)
}

var views = fstest.MapFS{
	"layout.html": {Data: []byte(`<html><head>{{ range .Links }}<link rel="stylesheet" href="{{ . }}">{{ end }}</head>` +
		`<body>{{ if (.Section "1").First }}{{ template "c11.html" . }}{{ end }}{{ .Slot "21" }}</body></html>`)},
	"c11.html": {Data: []byte(`<section id="c11">{{ .Slot "11" }}</section>`)},
}

func newEngine(t *testing.T) (*Engine, *fixture) {
	t.Helper()
	f := newFixture(t)
	backend := NewHTMLBackend(views, nil)
	f.resolver.Backend = backend
	e := NewEngine(f.resolver, backend, "layout.html")
	e.SetClock(func() time.Time { return time.UnixMilli(1000) })
	return e, f
}

func TestEngineRendersPage(t *testing.T) {
	e, _ := newEngine(t)
	route := rules(t, map[string]any{
		"thisName":    "handlerHome",
		"c1":          []any{true, false},
		"c11_content": []any{"b.comp", "bare.js"},
		"c11_ejsData": items(2),
		"c21_content": "<p>c21 {{ .ejstest }}</p>",
		"c21_ejsData": map[string]any{"ejstest": "apple theft"},
	})

	html, err := e.RenderPage(context.Background(), route)
	require.NoError(t, err)
	assert.Contains(t, html, `<link rel="stylesheet" href="css/components/b/b.css?v=1000">`)
	assert.Contains(t, html, `<link rel="stylesheet" href="css/components/bare/x.css?v=1001">`)
	assert.Contains(t, html, `<section id="c11"><i>B</i>#0`+component.FallbackContract+`</section>`)
	assert.Contains(t, html, `<p>c21 apple theft</p>`)
}

func TestEngineHidesSections(t *testing.T) {
	e, _ := newEngine(t)
	html, err := e.RenderPage(context.Background(), rules(t, map[string]any{
		"c11_content": "<p>hidden</p>",
	}))
	require.NoError(t, err)
	assert.NotContains(t, html, "hidden")
}

func TestEngineConsistencyGate(t *testing.T) {
	e, f := newEngine(t)
	route := rules(t, map[string]any{
		"c1_content": []any{"a.comp", "b.comp"},
		"c1_ejsData": items(1),
	})

	_, err := e.RenderPage(context.Background(), route)
	var re *RequestError
	require.ErrorAs(t, err, &re)
	var ce *displayrules.ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "c1_ejsData", ce.DataKey)
	assert.Zero(t, f.a.calls.Load()+f.b.calls.Load(), "no component may run")

	assert.Equal(t, "ConsistencyError", re.Kind())
	report := re.Report(true)
	assert.True(t, strings.HasPrefix(report, "Error: ConsistencyError\nMessage: checking display rules: c1_ejsData must be the same length array"))
	assert.Contains(t, report, "Stack:\n")
	assert.NotContains(t, re.Report(false), "Stack:")
}

func TestEngineMissingLayout(t *testing.T) {
	e, _ := newEngine(t)
	e.Layout = "nope.html"
	_, err := e.RenderPage(context.Background(), rules(t, map[string]any{}))
	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "Error", re.Kind())
}

func TestHTMLBackendNoCacheRereads(t *testing.T) {
	fsys := fstest.MapFS{"layout.html": {Data: []byte(`one`)}}
	b := NewHTMLBackend(fsys, nil)
	out, err := b.RenderTemplate(context.Background(), "layout.html", &View{})
	require.NoError(t, err)
	assert.Equal(t, "one", out)

	fsys["layout.html"] = &fstest.MapFile{Data: []byte(`two`)}
	out, err = b.RenderTemplate(context.Background(), "layout.html", &View{})
	require.NoError(t, err)
	assert.Equal(t, "one", out, "cached set is reused")

	b.Invalidate()
	out, err = b.RenderTemplate(context.Background(), "layout.html", &View{})
	require.NoError(t, err)
	assert.Equal(t, "two", out)

	b.NoCache = true
	fsys["layout.html"] = &fstest.MapFile{Data: []byte(`three`)}
	out, err = b.RenderTemplate(context.Background(), "layout.html", &View{})
	require.NoError(t, err)
	assert.Equal(t, "three", out)
}

func TestTemplateFuncs(t *testing.T) {
	b := NewHTMLBackend(fstest.MapFS{}, nil)
	data := map[string]any{
		"name":  "apple theft",
		"long":  "abcdefghij",
		"n":     int64(3),
		"limit": "2.5",
		"pad":   "  Fruit  ",
		"tags":  []string{"red", "green"},
		"html":  "<b>ripe</b>",
		"empty": "",
	}
	tests := []struct {
		expr string
		want string
	}{
		{`{{ title .name }}`, "Apple Theft"},
		{`{{ truncate .long 6 }}`, "abc..."},
		{`{{ truncate .long 2 }}`, "ab"},
		{`{{ truncate .name 40 }}`, "apple theft"},
		{`{{ if gt .n 2 }}big{{ end }}`, "big"},
		{`{{ if lt .n .limit }}small{{ else }}large{{ end }}`, "large"},
		{`{{ upper .name }}`, "APPLE THEFT"},
		{`{{ lower (trim .pad) }}`, "fruit"},
		{`{{ join .tags ", " }}`, "red, green"},
		{`{{ safeHTML .html }}`, "<b>ripe</b>"},
		{`{{ default "none" .empty }}|{{ default "none" .missing }}|{{ default "none" .name }}`, "none|none|apple theft"},
	}
	for _, tt := range tests {
		out, err := b.Evaluate(context.Background(), tt.expr, data)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, out, tt.expr)
	}
}
