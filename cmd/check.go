package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rubiojr/slotweave/pkg/render"
	"github.com/urfave/cli/v3"
)

// CheckCommand creates the check command
func CheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Validate the display rules of every route without serving",
		Action: func(ctx context.Context, c *cli.Command) error {
			st, err := loadSite(c.String("config"))
			if err != nil {
				return err
			}
			failed := checkRoutes(ctx, st)
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d route(s) failed", failed), 1)
			}
			return nil
		},
	}
}

// checkRoutes prepares every route and prints one line per route. It
// returns the number of routes that failed.
func checkRoutes(ctx context.Context, st *site) int {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Checking %d route(s)", len(st.routes))))

	failed := 0
	for _, route := range st.routes {
		prepared, err := st.engine.Prepare(ctx, route.Rules)
		if err != nil {
			failed++
			kind := "Error"
			var re *render.RequestError
			if errors.As(err, &re) {
				kind = re.Kind()
			}
			fmt.Printf("%s %s %s\n  %s\n", failStyle.Render("✗"), urlStyle.Render(route.Pattern),
				headerStyle.Render(kind), err)
			continue
		}
		fmt.Printf("%s %s %s\n", okStyle.Render("✓"), urlStyle.Render(route.Pattern),
			metaStyle.Render(fmt.Sprintf("%s, %d stylesheet(s)", prepared.Name, len(prepared.HeadCSSLinks))))
	}

	summary := fmt.Sprintf("%d ok, %d failed", len(st.routes)-failed, failed)
	if failed > 0 {
		fmt.Println(failStyle.Render(strings.ToUpper(summary)))
	} else {
		fmt.Println(summaryStyle.Render(summary))
	}
	return failed
}
