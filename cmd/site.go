package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/rubiojr/slotweave/pkg/assets"
	"github.com/rubiojr/slotweave/pkg/component"
	"github.com/rubiojr/slotweave/pkg/config"
	"github.com/rubiojr/slotweave/pkg/log"
	"github.com/rubiojr/slotweave/pkg/render"
	"github.com/rubiojr/slotweave/pkg/server"
)

// site wires the rendering pipeline described by a config.
type site struct {
	cfg       *config.Config
	registry  *component.Registry
	collector *assets.Collector
	backend   *render.HTMLBackend
	engine    *render.Engine
	routes    []server.Route
}

// loadSite loads the config at configPath and builds its site.
func loadSite(configPath string) (*site, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newSite(cfg)
}

func newSite(cfg *config.Config) (*site, error) {
	logger := log.ForService("site")
	funcs := render.GetTemplateFuncs()

	registry := component.GetGlobalRegistry()
	componentsDir := cfg.ComponentsPath()
	if info, err := os.Stat(componentsDir); err == nil && info.IsDir() {
		n, err := registry.Discover(os.DirFS(componentsDir), funcs)
		if err != nil {
			return nil, fmt.Errorf("discovering components: %w", err)
		}
		logger.Debugf("discovered %d component(s) in %s", n, componentsDir)
	} else {
		logger.Warnf("components directory %s not found, only built-in components are available", componentsDir)
	}

	mode, err := assets.ParseMode(cfg.AssetDiscovery)
	if err != nil {
		return nil, err
	}
	collector := assets.NewCollector(os.DirFS(cfg.SourcePath()), cfg.ComponentsDir, cfg.CSSMount)
	collector.Mode = mode

	backend := render.NewHTMLBackend(os.DirFS(cfg.ViewsPath()), funcs)
	backend.NoCache = cfg.Dev

	resolver := render.NewResolver(registry, collector, backend)
	resolver.Parallel = cfg.ParallelComponents

	engine := render.NewEngine(resolver, backend, cfg.Layout)
	engine.Reload = cfg.Dev

	routes, err := server.RoutesFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &site{
		cfg:       cfg,
		registry:  registry,
		collector: collector,
		backend:   backend,
		engine:    engine,
		routes:    routes,
	}, nil
}

func (s *site) publisher() *assets.Publisher {
	return assets.NewPublisher(s.cfg.SourcePath(), s.cfg.ComponentsDir, s.cfg.PublicPath(), s.cfg.CSSMount, s.cfg.SassBinary)
}

// matchRoute returns the first route whose pattern matches urlPath.
func matchRoute(routes []server.Route, urlPath string) (server.Route, bool) {
	noop := func(http.ResponseWriter, *http.Request) {}
	for _, route := range routes {
		mux := chi.NewRouter()
		mux.Get(route.Pattern, noop)
		if mux.Match(chi.NewRouteContext(), http.MethodGet, urlPath) {
			return route, true
		}
	}
	return server.Route{}, false
}
