package core

import (
	"errors"
	"testing"
	"time"
)

func TestValidateDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2024-03-01", true},
		{"2024-02-29", true},
		{"2023-02-29", false},
		{"2024-3-1", false},
		{"", false},
	}
	for i, tc := range cases {
		err := ValidateDate(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestNewExpenseValidate(t *testing.T) {
	good := NewExpense{Amount: 1200, Category: "food", Date: "2024-03-05"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []NewExpense{
		{Amount: 0, Date: "2024-03-05"},
		{Amount: -5, Date: "2024-03-05"},
		{Amount: 10, Date: "03/05/2024"},
	}
	for i, b := range bads {
		if err := b.Validate(); err == nil {
			t.Fatalf("bad case %d expected error", i)
		}
	}
	if err := (NewExpense{Amount: 0, Date: "2024-03-05"}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestExpenseRecordValidate(t *testing.T) {
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	good := ExpenseRecord{ID: "a", Amount: 1, Date: "2024-03-05", CreatedAt: now, UpdatedAt: now, DeviceID: "d"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	noID := good
	noID.ID = " "
	noDevice := good
	noDevice.DeviceID = ""
	backwards := good
	backwards.UpdatedAt = now.Add(-time.Second)
	zero := good
	zero.Amount = 0

	for name, r := range map[string]ExpenseRecord{
		"no id": noID, "no device": noDevice, "backwards": backwards, "zero amount": zero,
	} {
		if err := r.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestPatchApply(t *testing.T) {
	amount := int64(900)
	memo := ""
	r := ExpenseRecord{ID: "a", Amount: 100, Category: "food", Memo: "lunch", Date: "2024-03-05"}
	p := Patch{Amount: &amount, Memo: &memo}
	got := p.Apply(r)
	if got.Amount != 900 || got.Memo != "" || got.Category != "food" || got.Date != "2024-03-05" {
		t.Fatalf("unexpected patched record: %+v", got)
	}
	if r.Amount != 100 {
		t.Fatalf("Apply mutated its input")
	}
	if p.IsEmpty() || !(Patch{}).IsEmpty() {
		t.Fatalf("IsEmpty mismatch")
	}
}

func TestNewIDSortsByCreation(t *testing.T) {
	a, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	b, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	if a == b || a >= b {
		t.Fatalf("expected increasing ids, got %s then %s", a, b)
	}
}

func TestTimestampTruncates(t *testing.T) {
	in := time.Date(2024, 3, 5, 10, 0, 0, 123456789, time.FixedZone("JST", 9*3600))
	got := Timestamp(in)
	if got.Location() != time.UTC || got.Nanosecond() != 123000000 {
		t.Fatalf("unexpected timestamp %v", got)
	}
}
