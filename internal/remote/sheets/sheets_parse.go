package sheets

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"household/internal/core"
	"household/internal/remote"
)

// Header is the expected first row of the ledger tab.
var Header = []any{"id", "date", "amount", "category", "memo", "createdAt", "updatedAt", "deviceId"}

type row struct {
	num    int // 1-based sheet row
	record core.ExpenseRecord
}

func formatRow(r core.ExpenseRecord) []any {
	return []any{
		r.ID,
		r.Date,
		r.Amount,
		r.Category,
		r.Memo,
		remote.FormatTime(r.CreatedAt),
		remote.FormatTime(r.UpdatedAt),
		r.DeviceID,
	}
}

func parseRow(cols []string) (core.ExpenseRecord, error) {
	if len(cols) < 8 {
		return core.ExpenseRecord{}, fmt.Errorf("want 8 columns, got %d", len(cols))
	}
	amount, err := parseAmountCell(cols[2])
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	return remote.FromWire(remote.Record{
		ID:        strings.TrimSpace(cols[0]),
		Date:      strings.TrimSpace(cols[1]),
		Amount:    amount,
		Category:  strings.TrimSpace(cols[3]),
		Memo:      cols[4],
		CreatedAt: strings.TrimSpace(cols[5]),
		UpdatedAt: strings.TrimSpace(cols[6]),
		DeviceID:  strings.TrimSpace(cols[7]),
	})
}

// parseRows converts a values matrix whose first row sits at sheet row
// firstRow. Blank and malformed rows are skipped; the first occurrence of
// an id wins.
func parseRows(values [][]any, firstRow int) map[string]row {
	out := make(map[string]row, len(values))
	for i, raw := range values {
		cols := toStrings(raw)
		if len(cols) == 0 || strings.TrimSpace(cols[0]) == "" {
			continue
		}
		r, err := parseRow(cols)
		if err != nil {
			continue
		}
		if _, dup := out[r.ID]; dup {
			continue
		}
		out[r.ID] = row{num: firstRow + i, record: r}
	}
	return out
}

func inPeriod(rows map[string]row, p core.Period) []core.ExpenseRecord {
	var out []core.ExpenseRecord
	for _, r := range rows {
		if p.Contains(r.record.Date) {
			out = append(out, r.record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func parseAmountCell(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "¥")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Number cells may come back as "1200.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		v = int64(f)
	}
	return v, nil
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fmt.Sprint(v)
	}
	return out
}
