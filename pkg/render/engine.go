package render

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"reflect"
	"strings"
	"time"

	"github.com/go-stack/stack"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rubiojr/slotweave/pkg/displayrules"
	"github.com/rubiojr/slotweave/pkg/log"
)

/*
Engine (page pipeline)

	route rules -> Check -> Merge(Base(), route) -> Resolve -> Assemble -> View -> Backend

Each stage returns a new view-model; none of them modifies its input, so a
route table loaded once can serve every request.

Errors:
  - a consistency failure stops the request before any component runs
  - slot-level failures are absorbed by the Resolver
  - assembly and backend failures stop the request
Whatever stops a request comes back as a *RequestError.
*/

// Engine renders pages from route display rules.
type Engine struct {
	Resolver *Resolver
	Backend  Backend
	Layout   string

	// Reload marks rendered views as live-reloading (dev mode).
	Reload bool

	now func() time.Time
}

// NewEngine creates an engine rendering through layout.
func NewEngine(resolver *Resolver, backend Backend, layout string) *Engine {
	return &Engine{Resolver: resolver, Backend: backend, Layout: layout, now: time.Now}
}

// SetClock replaces the time source used for stylesheet versions.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Prepare runs every stage up to the view: check, merge, resolve and
// assemble. The result is what the layout will see.
func (e *Engine) Prepare(ctx context.Context, route *displayrules.DisplayRules) (*displayrules.DisplayRules, error) {
	logger := log.ForRequest(ctx, "engine")

	if err := displayrules.Check(route); err != nil {
		return nil, newRequestError("checking display rules", err)
	}
	logger.Infof("display rules are consistent on %s", route.Name)

	merged := displayrules.Merge(displayrules.Base(), route)
	resolved, err := e.Resolver.Resolve(ctx, merged)
	if err != nil {
		return nil, newRequestError("resolving content", err)
	}
	assembled, err := Assemble(resolved, e.now())
	if err != nil {
		return nil, newRequestError("assembling page", err)
	}
	return assembled, nil
}

// RenderPage renders a route to HTML.
func (e *Engine) RenderPage(ctx context.Context, route *displayrules.DisplayRules) (string, error) {
	ctx, span := tracer.Start(ctx, "render.Page", trace.WithAttributes(attribute.String("route", route.Name)))
	defer span.End()

	html, err := e.renderPage(ctx, route)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return html, err
}

func (e *Engine) renderPage(ctx context.Context, route *displayrules.DisplayRules) (string, error) {
	assembled, err := e.Prepare(ctx, route)
	if err != nil {
		return "", err
	}
	view := NewView(assembled, displayrules.Flatten(assembled.HeadCSSLinks))
	view.Reload = e.Reload
	html, err := e.Backend.RenderTemplate(ctx, e.Layout, view)
	if err != nil {
		return "", newRequestError("rendering "+e.Layout, err)
	}
	return html, nil
}

// RequestError is the single error a failed page render surfaces: what
// failed, the cause and where it was raised.
type RequestError struct {
	Op    string
	Err   error
	Trace stack.CallStack
}

func newRequestError(op string, err error) *RequestError {
	var re *RequestError
	if errors.As(err, &re) {
		return re
	}
	return &RequestError{Op: op, Err: err, Trace: stack.Trace().TrimBelow(stack.Caller(1)).TrimRuntime()}
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Kind names the cause's type, e.g. "ConsistencyError". fmt wrappers are
// looked through; unexported types report as "Error".
func (e *RequestError) Kind() string {
	cause := e.Err
	for isFmtWrap(cause) {
		next := errors.Unwrap(cause)
		if next == nil {
			break
		}
		cause = next
	}
	if cause == nil {
		return "Error"
	}
	t := reflect.TypeOf(cause)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if !token.IsExported(t.Name()) {
		return "Error"
	}
	return t.Name()
}

func isFmtWrap(err error) bool {
	return err != nil && strings.HasPrefix(reflect.TypeOf(err).String(), "*fmt.")
}

// Stack renders the captured call stack, one frame per line.
func (e *RequestError) Stack() string {
	var b strings.Builder
	for _, call := range e.Trace {
		frame := call.Frame()
		fmt.Fprintf(&b, "    at %s (%s:%d)\n", frame.Function, frame.File, frame.Line)
	}
	return b.String()
}

// Report is the plain-text error body: Error, Message and, when withStack is
// set, the Stack lines.
func (e *RequestError) Report(withStack bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n", e.Kind())
	fmt.Fprintf(&b, "Message: %s\n", e.Error())
	if withStack {
		b.WriteString("Stack:\n")
		b.WriteString(e.Stack())
	}
	return b.String()
}
