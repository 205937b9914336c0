package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/samirrijal/bodegamap/internal/core/explorer"
)

func newSearchCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search sites or items",
		Example: `  bodegactl search -t sites --lat 40.7589 --lng -73.9851 --radius 2
  bodegactl search -q tabby --friendly yes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := opts.compose(cmd)
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			results, err := c.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), results)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tID\tNAME\tDISTANCE")
			for _, l := range results {
				dist := "-"
				if d, ok := l.Distance(); ok {
					dist = explorer.FormatDistance(d)
				}
				ref := l.Ref()
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ref.Kind, ref.ID, l.Title(), dist)
			}
			return w.Flush()
		},
	}
	queryFlags(cmd, opts)
	return cmd
}
