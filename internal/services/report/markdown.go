package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/ecrop/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

// RenderMarkdown produces the run summary: a details table, one row per Khata, and the workflow log
func (s *Service) RenderMarkdown(report *models.RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Owner Update Run %s\n\n", report.ID)

	b.WriteString("| Field | Value |\n|-------|-------|\n")
	writeRow(&b, "Village", report.VillageCode)
	writeRow(&b, "Operator", report.Username)
	writeRow(&b, "Dataset", report.DatasetFile)
	writeRow(&b, "Status", report.Status)
	writeRow(&b, "Started", formatTime(report.StartedAt))
	writeRow(&b, "Finished", formatTime(report.FinishedAt))
	writeRow(&b, "Duration", report.Duration().Round(time.Second).String())
	writeRow(&b, "Rows updated", fmt.Sprintf("%d", report.TotalUpdated()))
	writeRow(&b, "Khatas without update", fmt.Sprintf("%d of %d", report.SkippedKhatas(), len(report.Khatas)))
	if report.FatalError != "" {
		writeRow(&b, "Fatal error", report.FatalError)
	}
	if report.ScreenshotPath != "" {
		writeRow(&b, "Screenshot", report.ScreenshotPath)
	}

	b.WriteString("\n## Khatas\n\n")
	if len(report.Khatas) == 0 {
		b.WriteString("No Khatas were processed.\n")
	} else {
		b.WriteString("| Khata | Rows seen | Updated | Skipped | Failed | Notes |\n")
		b.WriteString("|-------|-----------|---------|---------|--------|-------|\n")
		for _, k := range report.Khatas {
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %s |\n",
				escapeCell(k.KhataID), k.RowsSeen, k.Updated, k.Skipped, k.Failed, escapeCell(khataNotes(k)))
		}
	}

	b.WriteString("\n## Log\n\n")
	if len(report.Log) == 0 {
		b.WriteString("No log entries.\n")
		return b.String()
	}
	b.WriteString("```\n")
	for _, entry := range report.Log {
		fmt.Fprintf(&b, "%s %-5s %s\n", entry.Time.Format("15:04:05"), strings.ToUpper(entry.Level), entry.Message)
	}
	b.WriteString("```\n")

	return b.String()
}

func khataNotes(k models.KhataResult) string {
	var notes []string
	if k.SkipReason != "" {
		notes = append(notes, k.SkipReason)
	}
	if k.Diverged {
		notes = append(notes, "row kept reappearing")
	}
	return strings.Join(notes, "; ")
}

func writeRow(b *strings.Builder, field, value string) {
	if value == "" {
		value = "-"
	}
	fmt.Fprintf(b, "| %s | %s |\n", field, escapeCell(value))
}

func escapeCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", `\|`)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}
