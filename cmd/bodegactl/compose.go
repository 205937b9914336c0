package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newComposeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Print the request a query would send, without sending it",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := opts.compose(cmd)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), q)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "GET /search/%s?%s\n", q.EntityType, q.Params().Encode())
			return err
		},
	}
	queryFlags(cmd, opts)
	return cmd
}
