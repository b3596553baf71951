package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"caretaker/internal/api"
	"caretaker/internal/progress"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Control and observe analysis scans",
	}
	scanCmd.AddCommand(newScanStartCommand(ctx))
	scanCmd.AddCommand(newScanStopCommand(ctx))
	scanCmd.AddCommand(newScanStatusCommand(ctx))
	scanCmd.AddCommand(newScanWatchCommand(ctx))
	return scanCmd
}

func newScanStartCommand(ctx *commandContext) *cobra.Command {
	var phases []int
	var watch bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a scan run",
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := ctx.client().StartScan(cmd.Context(), phases)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scan %d started\n", runID)
			if watch {
				return watchScan(cmd, ctx)
			}
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&phases, "phases", nil, "Phase numbers to run (default: all)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow live progress until the run ends")
	return cmd
}

func newScanStopCommand(ctx *commandContext) *cobra.Command {
	var runID int64

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Request cooperative cancellation of the active scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().StopScan(cmd.Context(), runID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stop requested; the run ends at the next item boundary")
			return nil
		},
	}
	cmd.Flags().Int64Var(&runID, "run", 0, "Run id (default: the active run)")
	return cmd
}

func newScanStatusCommand(ctx *commandContext) *cobra.Command {
	var runID int64

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show scan run status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := ctx.client().ScanStatus(cmd.Context(), runID)
			if err != nil {
				return err
			}
			renderScanStatus(cmd, snapshot)
			return nil
		},
	}
	cmd.Flags().Int64Var(&runID, "run", 0, "Run id (default: active or most recent)")
	return cmd
}

func renderScanStatus(cmd *cobra.Command, snapshot *api.ScanSnapshot) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintf(out, "Scan %d: %s (started %s)\n",
		snapshot.ID, statusLabel(snapshot.Status, colorize), formatTimestamp(snapshot.StartedAt))
	if snapshot.FinishedAt != nil {
		fmt.Fprintf(out, "Finished: %s\n", formatTimestamp(*snapshot.FinishedAt))
	}
	if snapshot.StopRequested && snapshot.Status == "running" {
		fmt.Fprintln(out, "Stop requested")
	}
	if snapshot.ErrorSummary != "" {
		fmt.Fprintf(out, "Error: %s\n", snapshot.ErrorSummary)
	}
	if len(snapshot.Phases) == 0 {
		return
	}

	rows := make([][]string, 0, len(snapshot.Phases))
	for _, phase := range snapshot.Phases {
		detail := phase.CurrentItem
		if phase.Error != "" {
			detail = phase.Error
		}
		rows = append(rows, []string{
			strconv.Itoa(phase.Num),
			phase.Name,
			statusLabel(phase.Status, colorize),
			formatPercent(phase.ProgressPercent),
			detail,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Phase", "Status", "Progress", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func newScanWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream live scan progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchScan(cmd, ctx)
		},
	}
}

// watchScan follows the daemon's event stream until the run reaches a
// terminal state or the user interrupts.
func watchScan(cmd *cobra.Command, ctx *commandContext) error {
	watchCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	endpoint := url.URL{Scheme: "ws", Host: ctx.address(), Path: "/ws/scan"}
	header := http.Header{}
	if token := ctx.token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(watchCtx, endpoint.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect to %s: %s", endpoint.String(), resp.Status)
		}
		return fmt.Errorf("connect to %s: %w", endpoint.String(), err)
	}
	defer conn.Close()

	go func() {
		<-watchCtx.Done()
		conn.Close()
	}()

	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if watchCtx.Err() != nil {
				return nil
			}
			return fmt.Errorf("event stream closed: %w", err)
		}
		var event progress.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			continue
		}
		switch event.Type {
		case progress.TypeScanProgress:
			line := fmt.Sprintf("[%2d] %-22s %4s", event.Phase, event.PhaseName, formatPercent(event.ProgressPercent))
			if event.CurrentItem != "" {
				line += "  " + event.CurrentItem
			}
			fmt.Fprintln(out, line)
		case progress.TypeScanComplete, progress.TypeScanStopped:
			fmt.Fprintf(out, "Scan %d %s\n", event.ScanID, statusLabel(event.Status, colorize))
			return nil
		}
	}
}
