package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/maruel/natural"
	"github.com/urfave/cli/v3"
)

// ComponentsCommand creates the components command
func ComponentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "components",
		Usage: "List the registered components and their stylesheets",
		Action: func(ctx context.Context, c *cli.Command) error {
			st, err := loadSite(c.String("config"))
			if err != nil {
				return err
			}
			return listComponents(ctx, os.Stdout, st)
		},
	}
}

func listComponents(ctx context.Context, w io.Writer, st *site) error {
	names := st.registry.Names()
	sort.Slice(names, func(i, j int) bool { return natural.Less(names[i], names[j]) })

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%d component(s)", len(names))))
	for _, name := range names {
		unit, err := st.registry.Lookup(name)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, headerStyle.Render(name))
		sheets, err := st.collector.ForUnit(ctx, unit)
		if err != nil {
			fmt.Fprintln(w, "  "+failStyle.Render(err.Error()))
			continue
		}
		if len(sheets) == 0 {
			fmt.Fprintln(w, "  "+metaStyle.Render("no stylesheets"))
			continue
		}
		for _, s := range sheets {
			fmt.Fprintln(w, "  "+urlStyle.Render(s))
		}
	}
	return nil
}
