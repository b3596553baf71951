package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newServicesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "Probe connectivity of the configured integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := ctx.client().Services(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				state := "unconfigured"
				switch {
				case status.Configured && status.Success:
					state = statusLabel("succeeded", colorize)
				case status.Configured:
					state = statusLabel("failed", colorize)
				}
				rows = append(rows, []string{status.Name, state, status.Message})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Service", "Status", "Message"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
