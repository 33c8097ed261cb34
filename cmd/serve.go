package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rubiojr/slotweave/pkg/assets"
	"github.com/rubiojr/slotweave/pkg/config"
	"github.com/rubiojr/slotweave/pkg/log"
	"github.com/rubiojr/slotweave/pkg/realtime"
	"github.com/rubiojr/slotweave/pkg/server"
	"github.com/urfave/cli/v3"
)

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the site",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Address to listen on (overrides the config)",
			},
			&cli.BoolFlag{
				Name:  "dev",
				Usage: "Development mode: error stacks, live reload and stylesheet watching",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c.String("config"), c.String("listen"), c.Bool("dev"))
		},
	}
}

// serve runs the HTTP server until SIGINT or SIGTERM. Route changes in the
// config file are picked up without a restart.
func serve(ctx context.Context, configPath, listen string, dev bool) error {
	logger := log.ForService("serve")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if listen != "" {
		cfg.Listen = listen
	}
	cfg.Dev = cfg.Dev || dev

	st, err := newSite(cfg)
	if err != nil {
		return err
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var hub *realtime.Hub
	var wg sync.WaitGroup
	if cfg.Dev {
		hub = realtime.NewHub(0)
		publisher := st.publisher()
		if report, err := publisher.Publish(serveCtx); err != nil {
			logger.Warnf("publishing stylesheets: %v", err)
		} else {
			logger.Infof("published %d stylesheet(s) to %s", report.Total(), publisher.TargetRoot())
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := publisher.Watch(serveCtx, func(report *assets.Report) {
				files := append(append([]string{}, report.Copied...), report.Compiled...)
				hub.Broadcast(realtime.NewEvent(realtime.KindCSS, "stylesheets published", files...))
			})
			if err != nil {
				logger.Warnf("stylesheet watcher stopped: %v", err)
			}
		}()
	}

	srv := server.New(server.Options{
		Engine:    st.engine,
		PublicDir: cfg.PublicPath(),
		Dev:       cfg.Dev,
		Hub:       hub,
	}, st.routes)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(serveCtx, cfg.Listen, cfg.ShutdownTimeout.Duration)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("failed to create config file watcher: %v", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warnf("failed to close config file watcher: %v", err)
			}
		}()
		if err := watcher.Add(configPath); err != nil {
			logger.Warnf("failed to watch config file %s: %v", configPath, err)
		} else {
			logger.Infof("watching config file for changes: %s", configPath)
		}
	}

	reload := func(reason string) {
		if err := reloadRoutes(configPath, srv); err != nil {
			logger.Errorf("failed to reload routes: %v", err)
			return
		}
		if hub != nil {
			hub.Broadcast(realtime.NewEvent(realtime.KindReload, reason))
		}
	}

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if watcher != nil {
		events, watchErrs = watcher.Events, watcher.Errors
	}

	shutdown := func() error {
		cancel()
		err := <-errCh
		wg.Wait()
		return err
	}

	for {
		select {
		case err := <-errCh:
			cancel()
			wg.Wait()
			return err
		case <-ctx.Done():
			return shutdown()
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Infof("received SIGHUP, reloading routes...")
				reload("SIGHUP")
			case syscall.SIGINT, syscall.SIGTERM:
				fmt.Println("\nShutting down...")
				return shutdown()
			}
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// editors often replace the file instead of writing it
			if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)) {
				continue
			}
			logger.Infof("config file changed: %s (event: %s), reloading routes...", event.Name, event.Op.String())
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(200 * time.Millisecond)
				if _, err := os.Stat(configPath); os.IsNotExist(err) {
					logger.Warnf("config file was removed and not replaced, keeping current routes")
					continue
				}
				if err := watcher.Add(configPath); err != nil {
					logger.Warnf("failed to re-add config file to watcher: %v", err)
				}
			} else {
				time.Sleep(100 * time.Millisecond)
			}
			reload("config reloaded")
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			logger.Warnf("config file watcher error: %v", err)
		}
	}
}

// reloadRoutes parses the config again and swaps the server's route table.
// Server settings such as the listen address need a restart.
func reloadRoutes(configPath string, srv *server.Server) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading new config: %w", err)
	}
	routes, err := server.RoutesFromConfig(cfg)
	if err != nil {
		return err
	}
	srv.SetRoutes(routes)
	return nil
}
