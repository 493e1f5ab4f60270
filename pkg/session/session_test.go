package session

import (
	"testing"

	"prodtally/models"
	"prodtally/pkg/ocr"
)

func editableSession() (*Session, *ocr.Block) {
	total := 30
	row := &ocr.ShiftRow{
		Name: "TURNO 1",
		Values: []*ocr.ValueCell{
			{Raw: "10"}, {Raw: "12"}, {Raw: "8"},
		},
		DeclaredTotal: &total,
	}
	b := &ocr.Block{ID: "blk-1", Date: "2025-03-05", Shifts: []*ocr.ShiftRow{row}}
	return New(1, models.SourceOCR, []*ocr.Block{b}), b
}

func TestNewRefreshesDiscrepancies(t *testing.T) {
	s, b := editableSession()
	_ = s
	if b.Shifts[0].Discrepancy {
		t.Fatalf("10+12+8 matches the declared 30, no flag expected")
	}
}

func TestUpdateValueRefreshesDiscrepancy(t *testing.T) {
	s, b := editableSession()
	if err := s.UpdateValue(b.ID, 0, 2, "2"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !b.Shifts[0].Discrepancy {
		t.Fatalf("10+12+2=24 vs declared 30 should flag")
	}
	if err := s.UpdateValue(b.ID, 0, 2, "8"); err != nil {
		t.Fatalf("update back: %v", err)
	}
	if b.Shifts[0].Discrepancy {
		t.Fatalf("restoring the value should clear the flag")
	}
}

func TestRemoveValueRefreshesDiscrepancy(t *testing.T) {
	s, b := editableSession()
	if err := s.RemoveValue(b.ID, 0, 0); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !b.Shifts[0].Discrepancy {
		t.Fatalf("12+8=20 vs declared 30 should flag")
	}
}

func TestStructuralEdits(t *testing.T) {
	s, b := editableSession()
	nb := s.AddBlock("")
	if len(s.Blocks) != 2 {
		t.Fatalf("expected 2 blocks got %d", len(s.Blocks))
	}
	if err := s.SetBlockDate(nb.ID, "2025-03-06"); err != nil {
		t.Fatalf("set date: %v", err)
	}
	if err := s.AddShift(nb.ID, "TURNO 2"); err != nil {
		t.Fatalf("add shift: %v", err)
	}
	if err := s.AddValue(nb.ID, 0, "55"); err != nil {
		t.Fatalf("add value: %v", err)
	}
	if err := s.RenameShift(nb.ID, 0, "TURNO 3"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if nb.Shifts[0].Name != "TURNO 3" || nb.Shifts[0].Values[0].Raw != "55" {
		t.Fatalf("unexpected state: %+v", nb.Shifts[0])
	}
	if err := s.RemoveShift(b.ID, 0); err != nil {
		t.Fatalf("remove shift: %v", err)
	}
	if len(b.Shifts) != 0 {
		t.Fatalf("shift not removed")
	}
}

func TestEditsOnMissingTargets(t *testing.T) {
	s, b := editableSession()
	if err := s.SetBlockDate("nope", "2025-01-01"); err == nil {
		t.Fatalf("expected block not found")
	}
	if err := s.RenameShift(b.ID, 5, "x"); err == nil {
		t.Fatalf("expected shift not found")
	}
	if err := s.UpdateValue(b.ID, 0, 99, "x"); err == nil {
		t.Fatalf("expected value not found")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	s, _ := editableSession()
	r.Put(s)
	got, ok := r.Get(s.ID)
	if !ok || got != s {
		t.Fatalf("registry lookup failed")
	}
	r.Remove(s.ID)
	if _, ok := r.Get(s.ID); ok {
		t.Fatalf("session should be gone after remove")
	}
}
