package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// RenderCommand creates the render command
func RenderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render the page of a URL path to stdout",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dump",
				Usage: "Print the assembled display rules as TOML instead of HTML",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return cli.Exit("usage: slotweave render <path>", 1)
			}
			st, err := loadSite(c.String("config"))
			if err != nil {
				return err
			}
			return renderPath(ctx, os.Stdout, st, c.Args().First(), c.Bool("dump"))
		},
	}
}

func renderPath(ctx context.Context, w io.Writer, st *site, urlPath string, dump bool) error {
	route, ok := matchRoute(st.routes, urlPath)
	if !ok {
		return fmt.Errorf("no route matches %s", urlPath)
	}

	if !dump {
		html, err := st.engine.RenderPage(ctx, route.Rules)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, html)
		return err
	}

	prepared, err := st.engine.Prepare(ctx, route.Rules)
	if err != nil {
		return err
	}
	doc := prepared.ToMap()
	for k, v := range doc {
		if v == nil {
			delete(doc, k)
		}
	}
	out, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding display rules: %w", err)
	}
	_, err = w.Write(out)
	return err
}
