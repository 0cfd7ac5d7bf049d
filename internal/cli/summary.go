package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/history"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "244"})
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// printSummary writes the per-label totals of a scan
func printSummary(w io.Writer, report models.ScanReport) {
	title := "Scan results"
	if report.DryRun {
		title += " (dry run, nothing was labeled)"
	}
	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("mode: %s  query: %s  run: %s", report.Mode, report.Query, report.RunID)))

	labels := make([]string, 0, len(report.LabelCounts))
	for label := range report.LabelCounts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	t := newTable("Label", "Emails")
	for _, label := range labels {
		t.Row(label, strconv.Itoa(report.LabelCounts[label]))
	}
	t.Row("(unlabeled)", strconv.Itoa(report.Unlabeled()))
	t.Row("Total scanned", strconv.Itoa(report.Scanned))
	fmt.Fprintln(w, t.String())

	var failed int
	for _, o := range report.Outcomes {
		if o.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(w, "%d email(s) could not be processed, rerun with --debug for details\n", failed)
	}
}

// printRuns lists earlier scans, newest first
func printRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No scans recorded yet")
		return
	}

	t := newTable("Started", "Mode", "Criteria", "Scanned", "Labeled", "Dry run")
	for _, r := range runs {
		dry := ""
		if r.DryRun {
			dry = "yes"
		}
		t.Row(
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Mode,
			truncate(r.Criteria, 40),
			strconv.Itoa(r.Scanned),
			strconv.Itoa(r.Labeled),
			dry,
		)
	}
	fmt.Fprintln(w, t.String())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
