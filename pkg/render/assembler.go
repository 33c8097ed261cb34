package render

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rubiojr/slotweave/pkg/displayrules"
)

// VersionParam is the query parameter used to bust stylesheet caches.
const VersionParam = "v"

// AssemblyError reports a view-model that cannot be flattened for the
// templating backend.
type AssemblyError struct {
	Reason string
}

func (e *AssemblyError) Error() string {
	return "assembling page: " + e.Reason
}

// Assemble prepares a resolved view-model for rendering and returns a new
// one: sequence content is joined into one string, and the head stylesheet
// list is flattened and version-stamped with now.UnixMilli()+position.
// Assembling an assembled model again only refreshes the stamps.
func Assemble(rules *displayrules.DisplayRules, now time.Time) (*displayrules.DisplayRules, error) {
	if err := validateLinks(rules.HeadCSSLinks, 0); err != nil {
		return nil, err
	}
	out := rules.Clone()
	for _, slot := range out.Slots {
		if slot.Content.Multi {
			slot.Content = displayrules.Single(strings.Join(slot.Content.Items, ""))
		}
	}

	links := displayrules.Flatten(out.HeadCSSLinks)
	base := now.UnixMilli()
	for i, link := range links {
		links[i] = stamp(link, base+int64(i))
	}
	out.HeadCSSLinks = displayrules.Leaves(links)
	return out, nil
}

// validateLinks rejects nodes that are both a URL and a group, and empty
// leaves.
func validateLinks(nodes []displayrules.LinkNode, depth int) error {
	for i, n := range nodes {
		if n.IsGroup() {
			if n.URL != "" {
				return &AssemblyError{Reason: fmt.Sprintf("link node %d at depth %d has both a URL and children", i, depth)}
			}
			if err := validateLinks(n.Group, depth+1); err != nil {
				return err
			}
			continue
		}
		if strings.TrimSpace(n.URL) == "" {
			return &AssemblyError{Reason: fmt.Sprintf("link node %d at depth %d is empty", i, depth)}
		}
	}
	return nil
}

// stamp sets the version parameter of a link, replacing an existing one so
// that stamping twice never piles up tokens.
func stamp(link string, version int64) string {
	path, query, _ := strings.Cut(link, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		values = url.Values{}
	}
	values.Set(VersionParam, strconv.FormatInt(version, 10))
	return path + "?" + values.Encode()
}
