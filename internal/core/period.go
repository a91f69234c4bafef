package core

import (
	"fmt"
	"strings"
	"time"
)

// Period is a calendar month, the bucket records are fetched and displayed by.
type Period struct {
	Year  int
	Month time.Month
}

func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod accepts "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: want YYYY-MM", s)
	}
	return PeriodOf(t), nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Bounds returns the first day of the period and the first day of the next
// one, as YYYY-MM-DD strings. Dates d in the period satisfy start <= d < end.
func (p Period) Bounds() (start, end string) {
	first := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
	return first.Format(DateLayout), first.AddDate(0, 1, 0).Format(DateLayout)
}

func (p Period) Contains(date string) bool {
	start, end := p.Bounds()
	return date >= start && date < end
}

func (p Period) Next() Period {
	return PeriodOf(time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0))
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}
