package remote

import (
	"fmt"
	"time"

	"household/internal/core"
)

// TimeLayout is the wire format for timestamps: RFC 3339, UTC, milliseconds.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is the JSON shape of a remote record.
type Record struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Category  string `json:"category,omitempty"`
	Memo      string `json:"memo,omitempty"`
	Date      string `json:"date"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	DeviceID  string `json:"deviceId"`
}

// UpdateRequest is the body of a partial update.
type UpdateRequest struct {
	core.Patch
	UpdatedAt string `json:"updatedAt"`
	DeviceID  string `json:"deviceId"`
}

func FormatTime(t time.Time) string {
	return core.Timestamp(t).Format(TimeLayout)
}

func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return core.Timestamp(t), nil
}

func ToWire(r core.ExpenseRecord) Record {
	return Record{
		ID:        r.ID,
		Amount:    r.Amount,
		Category:  r.Category,
		Memo:      r.Memo,
		Date:      r.Date,
		CreatedAt: FormatTime(r.CreatedAt),
		UpdatedAt: FormatTime(r.UpdatedAt),
		DeviceID:  r.DeviceID,
	}
}

// FromWire converts a wire record. SyncStatus is left empty; the receiver decides it.
func FromWire(w Record) (core.ExpenseRecord, error) {
	created, err := ParseTime(w.CreatedAt)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("parse createdAt of %s: %w", w.ID, err)
	}
	updated, err := ParseTime(w.UpdatedAt)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("parse updatedAt of %s: %w", w.ID, err)
	}
	return core.ExpenseRecord{
		ID:        w.ID,
		Amount:    w.Amount,
		Category:  w.Category,
		Memo:      w.Memo,
		Date:      w.Date,
		CreatedAt: created,
		UpdatedAt: updated,
		DeviceID:  w.DeviceID,
	}, nil
}
