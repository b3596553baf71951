package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newIssuesCommand(ctx *commandContext) *cobra.Command {
	var state, issueType, severity string

	cmd := &cobra.Command{
		Use:   "issues",
		Short: "List recorded library defects",
		RunE: func(cmd *cobra.Command, args []string) error {
			issues, err := ctx.client().Issues(cmd.Context(), state, issueType, severity)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(issues) == 0 {
				fmt.Fprintln(out, "No issues found")
				return nil
			}

			rows := make([][]string, 0, len(issues))
			for _, issue := range issues {
				target := ""
				if issue.ItemID != 0 {
					target = "item " + strconv.FormatInt(issue.ItemID, 10)
				}
				if issue.FileID != 0 {
					target = "file " + strconv.FormatInt(issue.FileID, 10)
				}
				rows = append(rows, []string{
					strconv.FormatInt(issue.ID, 10),
					issue.Type,
					issue.Severity,
					target,
					issue.Description,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Type", "Severity", "Target", "Description"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			fmt.Fprintf(out, "%d issue(s)\n", len(issues))
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "Filter by state (open, resolved; default open)")
	cmd.Flags().StringVar(&issueType, "type", "", "Filter by issue type")
	cmd.Flags().StringVar(&severity, "severity", "", "Filter by severity")
	return cmd
}
