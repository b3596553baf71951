package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newRecommendationsCommand(ctx *commandContext) *cobra.Command {
	recCmd := &cobra.Command{
		Use:     "recommendations",
		Aliases: []string{"recs"},
		Short:   "Review and act on acquisition suggestions",
	}
	recCmd.AddCommand(newRecommendationsListCommand(ctx))
	recCmd.AddCommand(newRecommendationsRequestCommand(ctx))
	recCmd.AddCommand(newRecommendationsIgnoreCommand(ctx))
	return recCmd
}

func newRecommendationsListCommand(ctx *commandContext) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List suggestions",
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := ctx.client().Recommendations(cmd.Context(), state)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "No recommendations")
				return nil
			}

			rows := make([][]string, 0, len(recs))
			for _, rec := range recs {
				year := ""
				if rec.Year != 0 {
					year = strconv.Itoa(rec.Year)
				}
				rows = append(rows, []string{
					strconv.FormatInt(rec.ID, 10),
					rec.Kind,
					rec.Title,
					year,
					rec.State,
					rec.Reason,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Kind", "Title", "Year", "State", "Reason"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "pending", "Filter by state (empty for all)")
	return cmd
}

func newRecommendationsRequestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "request <id>",
		Short: "Submit a pending suggestion to the request manager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid recommendation id %q", args[0])
			}
			if err := ctx.client().RequestRecommendation(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recommendation %d requested\n", id)
			return nil
		},
	}
}

func newRecommendationsIgnoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ignore <id>",
		Short: "Dismiss a pending suggestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid recommendation id %q", args[0])
			}
			if err := ctx.client().IgnoreRecommendation(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recommendation %d ignored\n", id)
			return nil
		},
	}
}
