/*
Package export writes reconciliation summaries and ledger entries as CSV or
XLSX for payroll and finance review.

FORMATS:
  CSV:  one file per table (summaries or ledger entries)
  XLSX: one workbook with a "Summary" sheet and a "Ledger" sheet

Money is written as fixed two-decimal strings in CSV and as numeric cells
with a 2dp number format in XLSX.
*/
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/commission-engine/commission"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv", "xlsx" and "excel".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "csv", "":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("invalid export format %q: must be csv or xlsx", s)
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

var summaryHeader = []string{
	"Rep", "Period Start", "Period End", "Earned", "Adjustments", "Paid", "Pending",
	"Delta", "Status", "Attainment %", "Rate %", "Entries",
}

var ledgerHeader = []string{
	"Seq", "ID", "Rep", "Kind", "Amount", "Timestamp", "Ref", "Deal", "Pay Date", "Note", "Created By",
}

// =============================================================================
// CSV
// =============================================================================

// SummariesCSV writes one row per reconciliation.
func SummariesCSV(w io.Writer, recs []*commission.Reconciliation) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(summaryHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, rec := range recs {
		s := rec.Summary
		row := []string{
			string(s.RepID),
			bound(s.Period.Start),
			bound(s.Period.End),
			s.Earned.StringFixed(2),
			s.Adjustments.StringFixed(2),
			s.Paid.StringFixed(2),
			s.Pending.StringFixed(2),
			delta(rec).StringFixed(2),
			status(rec),
			s.Attainment.StringFixed(2),
			s.Rate.String(),
			strconv.Itoa(s.EntryCount),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// TransactionsCSV writes ledger entries in the given order.
func TransactionsCSV(w io.Writer, txs []commission.Transaction) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(ledgerHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, tx := range txs {
		if err := writer.Write(ledgerRow(tx)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func ledgerRow(tx commission.Transaction) []string {
	payDate := ""
	if tx.PayDate != nil {
		payDate = tx.PayDate.Format(time.DateOnly)
	}
	return []string{
		strconv.FormatInt(tx.Seq, 10),
		string(tx.ID),
		string(tx.RepID),
		string(tx.Kind),
		tx.Amount.StringFixed(2),
		tx.Timestamp.UTC().Format(time.RFC3339),
		string(tx.RefID),
		tx.DealRef,
		payDate,
		tx.Note,
		tx.CreatedBy,
	}
}

// =============================================================================
// XLSX
// =============================================================================

// Workbook writes an XLSX workbook with a Summary and a Ledger sheet.
func Workbook(w io.Writer, recs []*commission.Reconciliation, txs []commission.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	moneyFmt := "#,##0.00"
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	const summarySheet, ledgerSheet = "Summary", "Ledger"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(ledgerSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	if err := writeHeader(f, summarySheet, summaryHeader, headerStyle); err != nil {
		return err
	}
	for i, rec := range recs {
		s := rec.Summary
		values := []any{
			string(s.RepID),
			bound(s.Period.Start),
			bound(s.Period.End),
			s.Earned.InexactFloat64(),
			s.Adjustments.InexactFloat64(),
			s.Paid.InexactFloat64(),
			s.Pending.InexactFloat64(),
			delta(rec).InexactFloat64(),
			status(rec),
			s.Attainment.Round(2).InexactFloat64(),
			s.Rate.InexactFloat64(),
			s.EntryCount,
		}
		if err := writeRow(f, summarySheet, i+2, values); err != nil {
			return err
		}
		if err := styleRange(f, summarySheet, 4, 8, i+2, moneyStyle); err != nil {
			return err
		}
	}

	if err := writeHeader(f, ledgerSheet, ledgerHeader, headerStyle); err != nil {
		return err
	}
	for i, tx := range txs {
		values := make([]any, 0, len(ledgerHeader))
		for j, v := range ledgerRow(tx) {
			if j == 4 {
				values = append(values, tx.Amount.InexactFloat64())
				continue
			}
			values = append(values, v)
		}
		if err := writeRow(f, ledgerSheet, i+2, values); err != nil {
			return err
		}
		if err := styleRange(f, ledgerSheet, 5, 5, i+2, moneyStyle); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func writeHeader(f *excelize.File, sheet string, header []string, style int) error {
	values := make([]any, len(header))
	for i, h := range header {
		values[i] = h
	}
	if err := writeRow(f, sheet, 1, values); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	return f.SetCellStyle(sheet, "A1", last, style)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func styleRange(f *excelize.File, sheet string, fromCol, toCol, row, style int) error {
	from, _ := excelize.CoordinatesToCellName(fromCol, row)
	to, _ := excelize.CoordinatesToCellName(toCol, row)
	return f.SetCellStyle(sheet, from, to, style)
}

// Helper functions

func bound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func delta(rec *commission.Reconciliation) decimal.Decimal {
	if rec.Mismatch != nil {
		return rec.Mismatch.Delta
	}
	return rec.Summary.Earned.Sub(rec.Summary.Paid).Sub(rec.Summary.Pending)
}

func status(rec *commission.Reconciliation) string {
	if rec.Balanced() {
		return "balanced"
	}
	return "mismatch"
}
