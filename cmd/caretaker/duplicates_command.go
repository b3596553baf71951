package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newDuplicatesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "duplicates",
		Short: "List duplicate groups and reclaimable space",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().Duplicates(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(resp.Groups) == 0 {
				fmt.Fprintln(out, "No duplicates found")
				return nil
			}

			rows := make([][]string, 0, len(resp.Groups))
			for _, group := range resp.Groups {
				rows = append(rows, []string{
					group.Title,
					strconv.Itoa(len(group.MemberFileIDs)),
					strconv.FormatInt(group.KeepFileID, 10),
					humanize.IBytes(uint64(group.ReclaimableBytes)),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Title", "Copies", "Keep File", "Reclaimable"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
			))
			fmt.Fprintf(out, "Total reclaimable: %s\n", humanize.IBytes(uint64(resp.ReclaimableBytes)))
			return nil
		},
	}
}
