package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newFiltersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "filters",
		Short: "List the filter values offered by the service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			f, err := c.Facets(cmd.Context())
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), f)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "categories: %s\n", strings.Join(f.Categories, ", "))
			fmt.Fprintf(out, "tags:       %s\n", strings.Join(f.Tags, ", "))
			fmt.Fprintf(out, "rating:     %.1f - %.1f (avg %.2f)\n", f.RatingRange.Min, f.RatingRange.Max, f.RatingRange.Average)
			return nil
		},
	}
}
