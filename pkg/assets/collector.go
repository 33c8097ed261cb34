// Package assets finds and publishes the stylesheets of components.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/rubiojr/slotweave/pkg/component"
)

// Mode selects how a component's stylesheets are found.
type Mode string

const (
	// ModeScan lists the component's source directory.
	ModeScan Mode = "scan"
	// ModeManifest only uses stylesheets a component declares.
	ModeManifest Mode = "manifest"
	// ModeAuto uses the declaration when there is one and scans otherwise.
	ModeAuto Mode = "auto"
)

// ParseMode validates a configured discovery mode. The empty string means
// ModeScan.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeScan:
		return ModeScan, nil
	case ModeManifest, ModeAuto:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown asset discovery mode %q (want scan, manifest or auto)", s)
}

// Collector maps a component onto the public stylesheet URLs it needs.
//
// Component sources live under ComponentsDir inside Source; the publisher
// mirrors their stylesheets to the same relative path below Mount, so
// "components/card/card.scss" in the source tree is served as
// "css/components/card/card.css".
type Collector struct {
	Source        fs.FS
	ComponentsDir string
	Mount         string
	Mode          Mode
}

// NewCollector returns a scanning collector.
func NewCollector(source fs.FS, componentsDir, mount string) *Collector {
	return &Collector{
		Source:        source,
		ComponentsDir: componentsDir,
		Mount:         mount,
		Mode:          ModeScan,
	}
}

// CollectStylesheets lists the stylesheet sources next to a component and
// returns their public URLs. location is the component's path relative to
// the components root. A missing directory yields no links and no error:
// publishing may not have run for every component yet.
func (c *Collector) CollectStylesheets(ctx context.Context, location string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := c.sourceDir(location)
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(c.Source, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var urls []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name, ok := StylesheetName(entry.Name())
		if !ok {
			continue
		}
		urls = append(urls, path.Join(c.Mount, dir, name))
	}
	return urls, nil
}

// Declared maps stylesheets declared by a component (relative to its
// directory) onto public URLs, normalising preprocessor names.
func (c *Collector) Declared(location string, declared []string) ([]string, error) {
	dir, err := c.sourceDir(location)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(declared))
	for _, d := range declared {
		d = strings.TrimPrefix(path.Clean("/"+d), "/")
		name, ok := StylesheetName(path.Base(d))
		if !ok {
			return nil, fmt.Errorf("declared stylesheet %q is not a .css, .scss or .sass file", d)
		}
		urls = append(urls, path.Join(c.Mount, dir, path.Dir(d), name))
	}
	return urls, nil
}

// ForUnit collects the stylesheets of a registered component according to
// the collector's mode. Units without a location contribute nothing.
func (c *Collector) ForUnit(ctx context.Context, unit component.Unit) ([]string, error) {
	loc, ok := unit.(component.Locator)
	if !ok {
		return nil, nil
	}
	decl, declares := unit.(component.StylesheetDeclarer)
	switch c.Mode {
	case ModeManifest:
		if !declares {
			return nil, nil
		}
		return c.Declared(loc.Location(), decl.Stylesheets(ctx))
	case ModeAuto:
		if declares {
			return c.Declared(loc.Location(), decl.Stylesheets(ctx))
		}
	}
	return c.CollectStylesheets(ctx, loc.Location())
}

func (c *Collector) sourceDir(location string) (string, error) {
	dir := path.Join(c.ComponentsDir, path.Dir(location))
	if !fs.ValidPath(dir) {
		return "", fmt.Errorf("component location %q escapes the source tree", location)
	}
	return dir, nil
}

// StylesheetName returns the published file name of a stylesheet source:
// .css files keep their name, .scss and .sass files become .css. The second
// value is false for anything else.
func StylesheetName(name string) (string, bool) {
	switch ext := path.Ext(name); ext {
	case ".css":
		return name, true
	case ".scss", ".sass":
		return strings.TrimSuffix(name, ext) + ".css", true
	}
	return "", false
}
