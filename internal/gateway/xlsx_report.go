package gateway

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"payment-reconciliation/internal/domain"
)

// Sheet names of the duplicate resolution workbook.
const (
	SheetSummary      = "Summary"
	SheetLog          = "Resolution Log"
	SheetManualReview = "Manual Review"
)

var logHeader = []any{"Quarantine ID", "Payment Reference", "Amount", "Action", "Details", "Staging IDs", "Review IDs", "Registration IDs"}

// WriteDuplicateReport renders a duplicate resolution report as an XLSX
// workbook: the summary counts, the full log, and the manual review queue.
func WriteDuplicateReport(w io.Writer, report domain.DuplicateReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	s := report.Summary
	summaryRows := [][]any{
		{"Run ID", report.RunID},
		{"Dry Run", report.DryRun},
		{"Error Payments Found", s.ErrorPaymentsFound},
		{"Duplicates Identified", s.DuplicatesIdentified},
		{"Duplicates Resolved", s.DuplicatesResolved},
		{"Import Payments Updated", s.ImportPaymentsUpdated},
		{"Error Payments Deleted", s.ErrorPaymentsDeleted},
		{"Manual Review", s.ManualReview},
		{"No Match", s.NoMatch},
		{"Errors", s.Errors},
	}
	if err := writeRows(f, SheetSummary, summaryRows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetSummary, "A1", fmt.Sprintf("A%d", len(summaryRows)), bold); err != nil {
		return fmt.Errorf("failed to style summary: %w", err)
	}
	if err := f.SetColWidth(SheetSummary, "A", "B", 28); err != nil {
		return fmt.Errorf("failed to size summary: %w", err)
	}

	review := report.EntriesByAction()[domain.ActionManualReview]
	for _, sheet := range []struct {
		name    string
		entries []domain.ResolutionEntry
	}{
		{SheetLog, report.Log},
		{SheetManualReview, review},
	} {
		if _, err := f.NewSheet(sheet.name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet.name, err)
		}
		rows := make([][]any, 0, len(sheet.entries)+1)
		rows = append(rows, logHeader)
		for _, e := range sheet.entries {
			rows = append(rows, []any{
				e.QuarantineID,
				e.PaymentReference,
				e.Amount,
				string(e.Action),
				e.Details,
				strings.Join(e.StagingIDs, ", "),
				strings.Join(e.ReviewIDs, ", "),
				strings.Join(e.RegistrationIDs, ", "),
			})
		}
		if err := writeRows(f, sheet.name, rows); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet.name, "A1", "H1", bold); err != nil {
			return fmt.Errorf("failed to style %s header: %w", sheet.name, err)
		}
		if err := f.SetColWidth(sheet.name, "A", "H", 24); err != nil {
			return fmt.Errorf("failed to size %s: %w", sheet.name, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
