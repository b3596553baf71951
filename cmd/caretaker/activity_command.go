package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newActivityCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent daemon activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := ctx.client().Activity(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No recorded activity")
				return nil
			}
			for _, entry := range entries {
				fmt.Fprintf(out, "%-14s %-16s %s\n",
					humanize.Time(entry.CreatedAt), entry.Kind, entry.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries to show")
	return cmd
}
