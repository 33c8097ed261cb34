package component

import (
	"context"
	"errors"
	"fmt"
	"html"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/rubiojr/slotweave/pkg/displayrules"
)

var (
	// ErrNotFound is returned by Registry.Lookup for references no
	// component was registered under.
	ErrNotFound = errors.New("component not found")

	// ErrContractViolation reports a registered unit that doesn't
	// implement FragmentProducer.
	ErrContractViolation = errors.New("component does not implement Fragment")
)

// Fallback fragments written into a slot when a component can't produce
// markup. They are HTML comments so the page still renders.
const (
	FallbackContract = "<!-- Error: needed Fragment() -->"
)

// FallbackNotFound is the fragment used for unknown references.
func FallbackNotFound(ref string) string {
	return fmt.Sprintf("<!-- Error: component not found: %s -->", commentSafe(ref))
}

// FallbackFailed is the fragment used when Fragment returned an error.
func FallbackFailed(ref string) string {
	return fmt.Sprintf("<!-- Error: component failed: %s -->", commentSafe(ref))
}

// Unit is anything that can be registered. Units are looked up by Name.
type Unit interface {
	Name() string
}

// FragmentProducer is the capability the resolver needs from a unit.
// Fragment may perform I/O (reading its own template, for instance).
type FragmentProducer interface {
	Fragment(ctx context.Context, req Request) (string, error)
}

// Locator is implemented by units backed by a source file. Location is the
// path relative to the components root, e.g. "testComponent/test.html";
// stylesheets are discovered next to it.
type Locator interface {
	Location() string
}

// StylesheetDeclarer is implemented by units that list their stylesheets
// explicitly instead of relying on directory scanning. Paths are relative to
// the unit's directory.
type StylesheetDeclarer interface {
	Stylesheets(ctx context.Context) []string
}

// Request is what a component receives: the whole view-model, the data key
// paired with its slot and, for sequence slots, its position.
type Request struct {
	Rules      *displayrules.DisplayRules
	DataKey    string
	Index      int
	Positional bool
}

// Data returns the mapping meant for this invocation: the item at Index for
// positional requests, the slot's single mapping otherwise.
func (r Request) Data() map[string]any {
	if r.Rules == nil {
		return nil
	}
	slot := r.Rules.SlotForDataKey(r.DataKey)
	if slot == nil {
		return nil
	}
	if r.Positional {
		return slot.Data.At(r.Index)
	}
	return slot.Data.Single
}

var refPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+(?:/[A-Za-z0-9_\-]+)*(?:\.[A-Za-z0-9]+)?$`)

// RefExtensions are the extensions that mark a content value as a
// component reference.
var RefExtensions = []string{".js", ".comp", ".html", ".md"}

// IsRef reports whether a content value names a component rather than
// holding markup or text. A reference ends in one of RefExtensions
// ("testComponent/test.js", "card.comp") or is an extensionless path
// ("core/list"). Values like "example.com" or "v1.2" are literals.
func IsRef(s string) bool {
	if !refPattern.MatchString(s) {
		return false
	}
	ext := path.Ext(s)
	if ext == "" {
		return strings.Contains(s, "/")
	}
	return slices.Contains(RefExtensions, ext)
}

func commentSafe(s string) string {
	return html.EscapeString(s)
}
