package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// statusLabel colorizes run and phase states for terminals and leaves plain
// text for pipes.
func statusLabel(status string, colorize bool) string {
	if !colorize {
		return status
	}
	switch status {
	case "completed", "succeeded":
		return text.FgGreen.Sprint(status)
	case "failed":
		return text.FgRed.Sprint(status)
	case "running":
		return text.FgCyan.Sprint(status)
	case "cancelled", "skipped":
		return text.FgYellow.Sprint(status)
	default:
		return status
	}
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func formatPercent(percent float64) string {
	return fmt.Sprintf("%.0f%%", percent)
}
