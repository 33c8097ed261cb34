// Package server serves rendered pages, static files and, in dev mode, the
// live-reload socket.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	"github.com/rubiojr/slotweave/pkg/config"
	"github.com/rubiojr/slotweave/pkg/displayrules"
	"github.com/rubiojr/slotweave/pkg/log"
	"github.com/rubiojr/slotweave/pkg/realtime"
	"github.com/rubiojr/slotweave/pkg/render"
	"github.com/rubiojr/slotweave/pkg/version"
)

// NotFoundBody is written for requests no file or route matches.
const NotFoundBody = "404 Not Found"

// Route binds a URL pattern to the display rules rendered for it.
type Route struct {
	Pattern string
	Rules   *displayrules.DisplayRules
}

// RoutesFromConfig parses the route table of a config.
func RoutesFromConfig(cfg *config.Config) ([]Route, error) {
	routes := make([]Route, 0, len(cfg.Routes))
	for _, r := range cfg.Routes {
		rules, err := r.Rules()
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", r.Pattern, err)
		}
		routes = append(routes, Route{Pattern: r.Pattern, Rules: rules})
	}
	return routes, nil
}

// Options configures a Server.
type Options struct {
	Engine    *render.Engine
	PublicDir string
	// Dev shows error stacks and enables the reload socket when Hub is set.
	Dev bool
	Hub *realtime.Hub
}

// Server is an http.Handler. The route table can be swapped while serving.
type Server struct {
	engine    *render.Engine
	publicDir string
	dev       bool
	hub       *realtime.Hub
	logger    *log.Logger

	pages   atomic.Pointer[chi.Mux]
	handler http.Handler
}

// New creates a server for routes.
func New(opts Options, routes []Route) *Server {
	s := &Server{
		engine:    opts.Engine,
		publicDir: opts.PublicDir,
		dev:       opts.Dev,
		hub:       opts.Hub,
		logger:    log.ForService("server"),
	}
	s.SetRoutes(routes)

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(serverHeader)

	r.Get("/_health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})
	if s.dev && s.hub != nil {
		r.Get(reloadPath, s.serveReload)
	}
	r.NotFound(gzhttp.GzipHandler(http.HandlerFunc(s.dispatch)))
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "405 Method Not Allowed", http.StatusMethodNotAllowed)
	})

	s.handler = r
	return s
}

// SetRoutes replaces the route table. Requests in flight finish on the
// table they started with.
func (s *Server) SetRoutes(routes []Route) {
	mux := chi.NewRouter()
	mux.Use(middleware.GetHead)
	for _, route := range routes {
		mux.Get(route.Pattern, s.page(route))
	}
	mux.NotFound(notFound)
	mux.MethodNotAllowed(notFound)
	s.pages.Store(mux)
	s.logger.Infof("serving %d route(s)", len(routes))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// dispatch serves an existing public file, or falls through to the route
// table.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	if file, ok := s.publicFile(r.URL.Path); ok {
		if !s.dev {
			w.Header().Set("Cache-Control", "public, max-age=3600")
		}
		http.ServeFile(w, r, file)
		return
	}
	// the route table matches on its own routing context
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, nil))
	s.pages.Load().ServeHTTP(w, r)
}

func (s *Server) publicFile(urlPath string) (string, bool) {
	if s.publicDir == "" || urlPath == "/" {
		return "", false
	}
	clean := path.Clean("/" + urlPath)
	file := filepath.Join(s.publicDir, filepath.FromSlash(clean))
	info, err := os.Stat(file)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return file, true
}

func (s *Server) page(route Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html, err := s.engine.RenderPage(r.Context(), route.Rules)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if s.dev && s.hub != nil {
			html = appendReloadScript(html)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, html)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.ForRequest(r.Context(), "server")
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		logger.Debugf("client went away: %v", err)
		return
	}
	logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)

	var body string
	var re *render.RequestError
	if errors.As(err, &re) {
		body = re.Report(s.dev)
	} else {
		body = fmt.Sprintf("Error: Error\nMessage: %s\n", err)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = io.WriteString(w, body)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, NotFoundBody)
}

// requestID tags every request with a uuid, echoed in X-Request-Id and
// carried in the context for request-scoped loggers.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(log.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log.ForRequest(r.Context(), "server").Infof("%s %s %d %s", r.Method, r.URL.Path, status, time.Since(start).Round(time.Microsecond))
	})
}

func serverHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", version.ServerHeader())
		next.ServeHTTP(w, r)
	})
}

// Run serves on addr until ctx is done, then shuts down gracefully within
// timeout.
func (s *Server) Run(ctx context.Context, addr string, timeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("listening on %s", displayAddr(addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
