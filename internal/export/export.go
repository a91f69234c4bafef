// Package export writes a period of the local ledger as an xlsx workbook.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"household/internal/core"
)

const (
	ledgerSheet  = "Expenses"
	summarySheet = "Summary"
)

// Lister is the read side the export needs.
type Lister interface {
	GetByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseRecord, error)
}

var headers = []string{"Date", "Category", "Memo", "Amount", "Status", "Device", "ID"}

// WritePeriod writes one row per record of p plus a total row, and a
// per-category summary sheet. It returns the number of records written.
func WritePeriod(ctx context.Context, lister Lister, p core.Period, w io.Writer) (int, error) {
	records, err := lister.GetByPeriod(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("list records for %s: %w", p, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ledgerSheet); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeLedger(f, records); err != nil {
		return 0, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return 0, fmt.Errorf("add summary sheet: %w", err)
	}
	if err := writeSummary(f, core.Summarize(p, records)); err != nil {
		return 0, err
	}

	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("xlsx write: %w", err)
	}
	slog.InfoContext(ctx, "Period exported", "period", p.String(), "records", len(records))
	return len(records), nil
}

func writeLedger(f *excelize.File, records []core.ExpenseRecord) error {
	if err := f.SetSheetRow(ledgerSheet, "A1", &headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	var total int64
	for i, r := range records {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{r.Date, r.Category, r.Memo, r.Amount, string(r.SyncStatus), r.DeviceID, r.ID}
		if err := f.SetSheetRow(ledgerSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
		total += r.Amount
	}

	totalRow := len(records) + 2
	labelCell, _ := excelize.CoordinatesToCellName(1, totalRow)
	amountCell, _ := excelize.CoordinatesToCellName(4, totalRow)
	_ = f.SetCellValue(ledgerSheet, labelCell, "Total")
	_ = f.SetCellValue(ledgerSheet, amountCell, total)

	_ = f.SetColWidth(ledgerSheet, "A", "A", 12)
	_ = f.SetColWidth(ledgerSheet, "B", "B", 18)
	_ = f.SetColWidth(ledgerSheet, "C", "C", 40)
	_ = f.SetColWidth(ledgerSheet, "D", "E", 10)
	_ = f.SetColWidth(ledgerSheet, "F", "G", 38)
	return nil
}

func writeSummary(f *excelize.File, s core.MonthSummary) error {
	head := []any{"Category", "Amount"}
	if err := f.SetSheetRow(summarySheet, "A1", &head); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	for i, c := range s.ByCategory {
		name := c.Name
		if name == "" {
			name = "(none)"
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{name, c.Amount}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	cell, _ := excelize.CoordinatesToCellName(1, len(s.ByCategory)+2)
	row := []any{"Total " + s.Period.String(), s.Total}
	return f.SetSheetRow(summarySheet, cell, &row)
}
