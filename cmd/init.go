package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rubiojr/slotweave/pkg/config"
	"github.com/urfave/cli/v3"
)

const scaffoldLayout = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{{ .Name }}</title>
  {{- range .Links }}
  <link rel="stylesheet" href="/{{ . }}">
  {{- end }}
</head>
<body>
  {{- if (.Section "2").First }}
  <main>{{ .Slot "21" }}</main>
  {{- end }}
</body>
</html>
`

// InitCommand creates the init command
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize configuration",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing configuration file",
			},
			&cli.BoolFlag{
				Name:  "scaffold",
				Usage: "Also create the source, views and public directories next to the config",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return initConfig(c.String("config"), c.Bool("force"), c.Bool("scaffold"))
		},
	}
}

// initConfig writes the sample configuration and optionally the directory
// skeleton it refers to.
func initConfig(configPath string, force, scaffold bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite it", configPath)
	}
	cfg := config.GetDefaultConfig()
	if err := cfg.SaveTemplateConfig(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration initialized at %s\n", configPath)

	if !scaffold {
		return nil
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	for _, dir := range []string{cfg.ComponentsPath(), cfg.ViewsPath(), cfg.PublicPath()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	layout := filepath.Join(cfg.ViewsPath(), cfg.Layout)
	if _, err := os.Stat(layout); os.IsNotExist(err) {
		if err := os.WriteFile(layout, []byte(scaffoldLayout), 0644); err != nil {
			return fmt.Errorf("writing layout: %w", err)
		}
	}
	fmt.Printf("Site skeleton created in %s\n", cfg.Root())
	return nil
}
