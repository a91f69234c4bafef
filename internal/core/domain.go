package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending SyncStatus = "pending"
	StatusSynced  SyncStatus = "synced"
)

// DateLayout is the calendar-day format of ExpenseRecord.Date.
const DateLayout = "2006-01-02"

type (
	SyncStatus string

	// ExpenseRecord is a single ledger entry as held by a device.
	ExpenseRecord struct {
		ID         string
		Amount     int64 // whole yen
		Category   string
		Memo       string
		Date       string // YYYY-MM-DD
		CreatedAt  time.Time
		UpdatedAt  time.Time
		DeviceID   string // device that produced UpdatedAt
		SyncStatus SyncStatus
	}

	// NewExpense carries the user-supplied fields of a record about to be created.
	NewExpense struct {
		Amount   int64
		Category string
		Memo     string
		Date     string
	}

	// Patch is a partial update; nil fields are left untouched.
	Patch struct {
		Amount   *int64  `json:"amount,omitempty"`
		Category *string `json:"category,omitempty"`
		Memo     *string `json:"memo,omitempty"`
		Date     *string `json:"date,omitempty"`
	}

	// Conflict pairs a local record with the duplicate minted from a
	// diverging remote copy of the same id.
	Conflict struct {
		LocalID         string
		RemoteID        string
		RemoteUpdatedAt time.Time
		DuplicateID     string
		LocalDeviceID   string
		RemoteDeviceID  string
		DetectedAt      time.Time
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
	ErrMissingID     = errors.New("missing id")
	ErrMissingDevice = errors.New("missing device id")
	ErrEmptyPatch    = errors.New("empty patch")
)

// NewID returns a fresh record id. UUIDv7 ids sort by creation time.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Timestamp normalizes t to the precision kept on the wire.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// ValidateDate checks a YYYY-MM-DD calendar day.
func ValidateDate(s string) error {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return ErrInvalidDate
	}
	return nil
}

func (s SyncStatus) IsValid() bool {
	return s == StatusPending || s == StatusSynced
}

func (e NewExpense) Validate() error {
	if e.Amount <= 0 {
		return ErrInvalidAmount
	}
	if err := ValidateDate(e.Date); err != nil {
		return err
	}
	if len(e.Memo) > 500 {
		return errors.New("memo too long (max 500 characters)")
	}
	return nil
}

// Validate checks the invariants every stored or uploaded record must hold.
func (r ExpenseRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrMissingID
	}
	if r.Amount <= 0 {
		return ErrInvalidAmount
	}
	if err := ValidateDate(r.Date); err != nil {
		return err
	}
	if strings.TrimSpace(r.DeviceID) == "" {
		return ErrMissingDevice
	}
	if r.UpdatedAt.Before(r.CreatedAt) {
		return errors.New("updatedAt precedes createdAt")
	}
	return nil
}

func (p Patch) IsEmpty() bool {
	return p.Amount == nil && p.Category == nil && p.Memo == nil && p.Date == nil
}

// PatchOf returns a patch that sets every editable field of r.
func PatchOf(r ExpenseRecord) Patch {
	return Patch{Amount: &r.Amount, Category: &r.Category, Memo: &r.Memo, Date: &r.Date}
}

// Apply returns r with the patch fields overlaid. Sync metadata is untouched.
func (p Patch) Apply(r ExpenseRecord) ExpenseRecord {
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Memo != nil {
		r.Memo = *p.Memo
	}
	if p.Date != nil {
		r.Date = *p.Date
	}
	return r
}
