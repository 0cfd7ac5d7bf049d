package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet  = "Summary"
	messagesSheet = "Messages"
	rulesSheet    = "Rules"
)

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// ExportToExcel writes a scan report to an Excel workbook and returns the final path
func ExportToExcel(report models.ScanReport, outputPath string) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	// Ensure output path has .xlsx extension
	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath = outputPath + ".xlsx"
	}

	// Clean the path for cross-platform compatibility (Windows paths)
	outputPath = filepath.Clean(outputPath)

	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(messagesSheet); err != nil {
		return "", fmt.Errorf("failed to create messages sheet: %w", err)
	}
	if _, err := f.NewSheet(rulesSheet); err != nil {
		return "", fmt.Errorf("failed to create rules sheet: %w", err)
	}

	if err := createSummarySheet(f, report); err != nil {
		return "", fmt.Errorf("failed to create summary sheet: %w", err)
	}

	if err := createMessagesSheet(f, report); err != nil {
		return "", fmt.Errorf("failed to create messages sheet: %w", err)
	}

	if err := createRulesSheet(f, report); err != nil {
		return "", fmt.Errorf("failed to create rules sheet: %w", err)
	}

	// Try to save the file directly
	if err := f.SaveAs(outputPath); err != nil {
		// If direct save fails, try buffer write fallback
		var buf bytes.Buffer
		if writeErr := f.Write(&buf); writeErr != nil {
			return "", fmt.Errorf("failed to save Excel file: direct save failed (%v), buffer write also failed: %w", err, writeErr)
		}

		if fileErr := os.WriteFile(outputPath, buf.Bytes(), 0644); fileErr != nil {
			return "", fmt.Errorf("failed to save Excel file: direct save failed (%v), file write failed: %w", err, fileErr)
		}
	}

	return outputPath, nil
}

// createSummarySheet lists run details and per-label counts
func createSummarySheet(f *excelize.File, report models.ScanReport) error {
	f.SetColWidth(summarySheet, "A", "A", 25)
	f.SetColWidth(summarySheet, "B", "B", 60)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return err
	}

	labelStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return err
	}

	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return err
	}

	row := 1
	heading := func(title string) {
		f.SetCellValue(summarySheet, cell("A", row), title)
		f.SetCellStyle(summarySheet, cell("A", row), cell("B", row), headerStyle)
		f.MergeCell(summarySheet, cell("A", row), cell("B", row))
		row++
	}
	field := func(name string, value any) {
		f.SetCellValue(summarySheet, cell("A", row), name)
		f.SetCellStyle(summarySheet, cell("A", row), cell("A", row), labelStyle)
		f.SetCellValue(summarySheet, cell("B", row), value)
		row++
	}

	heading("Resume Scan Report")
	row++

	field("Run ID:", report.RunID)
	field("Mode:", report.Mode)
	f.SetCellStyle(summarySheet, cell("B", row), cell("B", row), wrapStyle)
	field("Criteria:", report.Criteria)
	field("Gmail Query:", report.Query)
	if report.Evaluator != "" {
		field("Evaluator:", report.Evaluator)
	}
	if report.LLMProvider != "" {
		field("LLM Provider:", report.LLMProvider)
	}
	field("Dry Run:", report.DryRun)
	field("Started:", report.StartedAt.Format("2006-01-02 15:04:05"))
	field("Finished:", report.FinishedAt.Format("2006-01-02 15:04:05"))
	row++

	heading("Results:")
	field("Total Scanned:", report.Scanned)
	field("Labeled:", report.Labeled)
	field("Left Unlabeled:", report.Unlabeled())
	field("Skipped:", countSkipped(report.Outcomes))
	row++

	if len(report.LabelCounts) > 0 {
		heading("Emails per Label:")
		labels := make([]string, 0, len(report.LabelCounts))
		for label := range report.LabelCounts {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			field(label, report.LabelCounts[label])
		}
	}

	return nil
}

// createMessagesSheet writes one row per email, colour-coded by outcome
func createMessagesSheet(f *excelize.File, report models.ScanReport) error {
	headers := []string{"Message ID", "From", "Subject", "PDF", "Match %", "Qualified", "Label", "Skipped", "Error"}
	widths := []float64{20, 30, 40, 25, 10, 10, 20, 30, 30}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(messagesSheet, col, col, w)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}

	// Create row styles with color-coding
	labeledStyle, _ := f.NewStyle(&excelize.Style{
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"FFC7CE"}, Pattern: 1},
		Border: thinBorder,
	})
	keptStyle, _ := f.NewStyle(&excelize.Style{
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"C6EFCE"}, Pattern: 1},
		Border: thinBorder,
	})
	skippedStyle, _ := f.NewStyle(&excelize.Style{
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"FFEB9C"}, Pattern: 1},
		Border: thinBorder,
	})

	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue(messagesSheet, cell(col, 1), h)
	}
	f.SetCellStyle(messagesSheet, "A1", cell(lastCol, 1), headerStyle)

	for i, o := range report.Outcomes {
		row := i + 2
		values := []any{
			o.MessageID, o.From, o.Subject, o.PDFFilename,
			fmt.Sprintf("%.1f", o.MatchPercentage*100), o.Qualified,
			o.Label, o.Skipped, o.Error,
		}
		if err := f.SetSheetRow(messagesSheet, cell("A", row), &values); err != nil {
			return err
		}

		style := keptStyle
		switch {
		case o.Skipped != "" || o.Error != "":
			style = skippedStyle
		case o.Labeled():
			style = labeledStyle
		}
		f.SetCellStyle(messagesSheet, cell("A", row), cell(lastCol, row), style)
	}

	// Enable auto-filter
	if len(report.Outcomes) > 0 {
		f.AutoFilter(messagesSheet, fmt.Sprintf("A1:%s%d", lastCol, len(report.Outcomes)+1), []excelize.AutoFilterOptions{})
	}

	// Freeze top row
	f.SetPanes(messagesSheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	return nil
}

// createRulesSheet lists the rules in evaluation order
func createRulesSheet(f *excelize.File, report models.ScanReport) error {
	f.SetColWidth(rulesSheet, "A", "A", 8)
	f.SetColWidth(rulesSheet, "B", "D", 35)
	f.SetColWidth(rulesSheet, "E", "E", 25)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: thinBorder,
	})
	if err != nil {
		return err
	}

	headers := []any{"#", "Subject", "Body", "PDF", "Label Action"}
	if err := f.SetSheetRow(rulesSheet, "A1", &headers); err != nil {
		return err
	}
	f.SetCellStyle(rulesSheet, "A1", "E1", headerStyle)

	if len(report.Rules) == 0 {
		f.SetCellValue(rulesSheet, "A2", fmt.Sprintf("No rules: %s scan", report.Mode))
		return nil
	}

	for i, r := range report.Rules {
		values := []any{i + 1, condition(r.Subject), condition(r.Body), condition(r.PDF), r.LabelAction}
		if err := f.SetSheetRow(rulesSheet, cell("A", i+2), &values); err != nil {
			return err
		}
	}
	return nil
}

func condition(c *models.Condition) string {
	if c == nil {
		return ""
	}
	return c.String()
}

func countSkipped(outcomes []models.MessageOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Skipped != "" {
			n++
		}
	}
	return n
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
