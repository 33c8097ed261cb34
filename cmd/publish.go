package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/rubiojr/slotweave/pkg/assets"
	"github.com/rubiojr/slotweave/pkg/config"
	"github.com/urfave/cli/v3"
)

// PublishCommand creates the publish command
func PublishCommand() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Copy and compile component stylesheets into the public directory",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Keep running and publish again when a stylesheet changes",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			publisher := assets.NewPublisher(cfg.SourcePath(), cfg.ComponentsDir, cfg.PublicPath(), cfg.CSSMount, cfg.SassBinary)

			report, err := publisher.Publish(ctx)
			if err != nil {
				return err
			}
			printReport(publisher.TargetRoot(), report)

			if !c.Bool("watch") {
				return nil
			}
			return publisher.Watch(ctx, func(r *assets.Report) {
				printReport(publisher.TargetRoot(), r)
			})
		},
	}
}

func printReport(target string, report *assets.Report) {
	fmt.Println(titleStyle.Render("Published to " + target))
	section := func(name string, files []string) {
		if len(files) == 0 {
			return
		}
		fmt.Println(headerStyle.Render(fmt.Sprintf("%s (%d)", name, len(files))))
		for _, f := range files {
			fmt.Println("  " + urlStyle.Render(f))
		}
	}
	section("Copied", report.Copied)
	section("Compiled", report.Compiled)
	if len(report.Skipped) > 0 {
		fmt.Println(failStyle.Render(fmt.Sprintf("Skipped (%d), sass binary not found", len(report.Skipped))))
		fmt.Println(metaStyle.Render("  " + strings.Join(report.Skipped, "\n  ")))
	}
	fmt.Println(summaryStyle.Render(fmt.Sprintf("%d stylesheet(s) published", report.Total())))
}
