package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ternarybob/ecrop/internal/models"
)

// logPrinter echoes Workflow Log entries to the terminal, colored by level
type logPrinter struct {
	out  io.Writer
	warn *color.Color
	err  *color.Color
	ok   *color.Color
}

func newLogPrinter(out io.Writer) *logPrinter {
	return &logPrinter{
		out:  out,
		warn: color.New(color.FgYellow),
		err:  color.New(color.FgRed, color.Bold),
		ok:   color.New(color.FgGreen),
	}
}

func (p *logPrinter) Print(entry models.WorkflowLogEntry) {
	stamp := entry.Time.Format("15:04:05")
	switch entry.Level {
	case "warn":
		fmt.Fprintf(p.out, "%s %s\n", stamp, p.warn.Sprint(entry.Message))
	case "error":
		fmt.Fprintf(p.out, "%s %s\n", stamp, p.err.Sprint(entry.Message))
	default:
		fmt.Fprintf(p.out, "%s %s\n", stamp, entry.Message)
	}
}

// Summary prints the per-run totals once the browser has closed
func (p *logPrinter) Summary(report *models.RunReport) {
	status := p.ok.Sprint(report.Status)
	if report.Status != models.RunStatusCompleted {
		status = p.err.Sprint(report.Status)
	}

	fmt.Fprintf(p.out, "\nRun %s: %s\n", report.ID, status)
	fmt.Fprintf(p.out, "  rows updated : %d\n", report.TotalUpdated())
	fmt.Fprintf(p.out, "  khatas       : %d (%d without update)\n", len(report.Khatas), report.SkippedKhatas())
	if report.ScreenshotPath != "" {
		fmt.Fprintf(p.out, "  screenshot   : %s\n", report.ScreenshotPath)
	}
}
