package core

import "sort"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount int64
}

// MonthSummary is a compact view of one period's spending.
type MonthSummary struct {
	Period     Period
	Total      int64
	ByCategory []CategoryAmount
}

// Remaining is the budget left after the given records are spent.
func Remaining(budget int64, records []ExpenseRecord) int64 {
	var spent int64
	for _, r := range records {
		spent += r.Amount
	}
	return budget - spent
}

// Summarize totals records by category, largest first. Uncategorized
// records are grouped under an empty name.
func Summarize(p Period, records []ExpenseRecord) MonthSummary {
	byCat := map[string]int64{}
	var total int64
	for _, r := range records {
		if !p.Contains(r.Date) {
			continue
		}
		total += r.Amount
		byCat[r.Category] += r.Amount
	}
	list := make([]CategoryAmount, 0, len(byCat))
	for name, amount := range byCat {
		list = append(list, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Amount != list[j].Amount {
			return list[i].Amount > list[j].Amount
		}
		return list[i].Name < list[j].Name
	})
	return MonthSummary{Period: p, Total: total, ByCategory: list}
}
