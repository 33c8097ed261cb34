package render

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/rubiojr/slotweave/pkg/assets"
	"github.com/rubiojr/slotweave/pkg/component"
	"github.com/rubiojr/slotweave/pkg/displayrules"
	"github.com/rubiojr/slotweave/pkg/log"
)

var tracer trace.Tracer = otel.Tracer("github.com/rubiojr/slotweave/pkg/render")

/*
Resolver

Turns component references of a merged view-model into HTML fragments.

For every slot, in declaration order:
  - sequence content: each element that is a component reference is
    replaced by the component's fragment, invoked with the element index
  - scalar reference: replaced by the fragment of a single invocation
  - scalar inline expression ("{{ ... }}"): evaluated by the backend
    against the slot's single data mapping
  - anything else is left untouched

Every invocation of a component that exists also contributes its
stylesheets as one link group, appended to HeadCSSLinks in declaration
order. The c<N>_style paths of the slots follow as a last group.

Failure model:
  - unknown reference, missing Fragment capability or a failing Fragment
    call: the value becomes an HTML comment and resolution continues
  - failing expression: the value becomes a red inline error
  - only context cancellation aborts Resolve

Components see the view-model as it was before resolution, whichever mode
is used, and never the partially resolved copy.
*/

// Resolver resolves component references and inline expressions.
type Resolver struct {
	Registry *component.Registry
	Assets   *assets.Collector
	Backend  Backend

	// Parallel runs the component invocations of one request concurrently.
	// Output and link order are the same as in sequential mode.
	Parallel bool
}

// NewResolver creates a sequential resolver. assets and backend may be nil:
// no stylesheets are collected and inline expressions are left as they are.
func NewResolver(reg *component.Registry, collector *assets.Collector, backend Backend) *Resolver {
	return &Resolver{Registry: reg, Assets: collector, Backend: backend}
}

// invocation is one component call and where its result goes.
type invocation struct {
	slot       *displayrules.Slot
	ref        string
	index      int
	positional bool

	fragment string
	links    []string
}

// Resolve returns a resolved copy of rules. rules itself is not modified.
func (r *Resolver) Resolve(ctx context.Context, rules *displayrules.DisplayRules) (*displayrules.DisplayRules, error) {
	ctx, span := tracer.Start(ctx, "render.Resolve", trace.WithAttributes(
		attribute.String("route", rules.Name),
		attribute.Bool("parallel", r.Parallel),
	))
	defer span.End()

	logger := log.ForRequest(ctx, "resolver")
	out := rules.Clone()

	var calls []*invocation
	for _, slot := range out.Slots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if slot.Content.Multi {
			for i, item := range slot.Content.Items {
				if component.IsRef(item) {
					calls = append(calls, &invocation{slot: slot, ref: item, index: i, positional: true})
				}
			}
			continue
		}
		value := slot.Content.Value()
		switch {
		case component.IsRef(value):
			calls = append(calls, &invocation{slot: slot, ref: value})
		case IsExpression(value) && r.Backend != nil:
			slot.Content.Items[0] = r.evaluate(ctx, slot, value)
		}
	}
	span.SetAttributes(attribute.Int("components", len(calls)))

	if err := r.run(ctx, rules, calls); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for _, call := range calls {
		call.slot.Content.Items[call.index] = call.fragment
		if len(call.links) > 0 {
			out.AppendLinks(displayrules.Group(call.links...))
		}
	}
	if styles := slotStyles(out); len(styles) > 0 {
		out.AppendLinks(displayrules.Group(styles...))
	}
	logger.Debugf("resolved %d component(s) on %s", len(calls), rules.Name)
	return out, nil
}

func (r *Resolver) run(ctx context.Context, snapshot *displayrules.DisplayRules, calls []*invocation) error {
	if !r.Parallel || len(calls) < 2 {
		for _, call := range calls {
			if err := r.invoke(ctx, snapshot, call); err != nil {
				return err
			}
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, call := range calls {
		g.Go(func() error {
			return r.invoke(gctx, snapshot, call)
		})
	}
	return g.Wait()
}

// invoke fills call.fragment and call.links. The only error it returns is
// the context's.
func (r *Resolver) invoke(ctx context.Context, snapshot *displayrules.DisplayRules, call *invocation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "render.Component", trace.WithAttributes(
		attribute.String("component", call.ref),
		attribute.String("slot", call.slot.ContentKey()),
	))
	defer span.End()
	logger := log.ForRequest(ctx, "resolver")

	unit, err := r.Registry.Lookup(call.ref)
	if err != nil {
		logger.Warnf("%s[%d]: %v", call.slot.ContentKey(), call.index, err)
		span.SetStatus(codes.Error, err.Error())
		call.fragment = component.FallbackNotFound(call.ref)
		return nil
	}

	call.links = r.stylesheets(ctx, unit)

	producer, ok := unit.(component.FragmentProducer)
	if !ok {
		err := fmt.Errorf("%w: %s does not produce fragments", component.ErrContractViolation, call.ref)
		logger.Warnf("%s[%d]: %v", call.slot.ContentKey(), call.index, err)
		span.SetStatus(codes.Error, err.Error())
		call.fragment = component.FallbackContract
		return nil
	}

	html, err := producer.Fragment(ctx, component.Request{
		Rules:      snapshot,
		DataKey:    call.slot.DataKey(),
		Index:      call.index,
		Positional: call.positional,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}
		logger.Warnf("%s[%d]: component %s failed: %v", call.slot.ContentKey(), call.index, call.ref, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		call.fragment = component.FallbackFailed(call.ref)
		return nil
	}
	call.fragment = html
	return nil
}

// slotStyles lists the c<N>_style paths in slot order.
func slotStyles(rules *displayrules.DisplayRules) []string {
	var styles []string
	for _, slot := range rules.Slots {
		if slot.Style != "" {
			styles = append(styles, slot.Style)
		}
	}
	return styles
}

func (r *Resolver) stylesheets(ctx context.Context, unit component.Unit) []string {
	if r.Assets == nil {
		return nil
	}
	links, err := r.Assets.ForUnit(ctx, unit)
	if err != nil {
		log.ForRequest(ctx, "assets").Warnf("collecting stylesheets of %s: %v", unit.Name(), err)
		return nil
	}
	return links
}

func (r *Resolver) evaluate(ctx context.Context, slot *displayrules.Slot, raw string) string {
	out, err := r.Backend.Evaluate(ctx, raw, slot.Data.Single)
	if err != nil {
		log.ForRequest(ctx, "resolver").Warnf("%s: template error: %v", slot.ContentKey(), err)
		return ExpressionError(err)
	}
	return out
}
