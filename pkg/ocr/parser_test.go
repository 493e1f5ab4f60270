package ocr

import (
	"testing"
	"time"
)

func parseText(t *testing.T, text string) []*Block {
	t.Helper()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	return ParseBlocks(&Result{FullText: text}, now)
}

func TestParseSingleBlock(t *testing.T) {
	blocks := parseText(t, "PRODUCAO DIARIA\n05/03/2025\nTURNO 1 10 - 12 - 8 30\nassinatura")
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block got %d", len(blocks))
	}
	b := blocks[0]
	if b.Date != "2025-03-05" {
		t.Fatalf("expected 2025-03-05 got %s", b.Date)
	}
	if len(b.Shifts) != 1 {
		t.Fatalf("expected 1 shift got %d", len(b.Shifts))
	}
	row := b.Shifts[0]
	if row.Name != "TURNO 1" {
		t.Fatalf("expected TURNO 1 got %s", row.Name)
	}
	if len(row.Values) != 3 || row.Values[0].Raw != "10" || row.Values[1].Raw != "12" || row.Values[2].Raw != "8" {
		t.Fatalf("unexpected values: %+v", row.Values)
	}
	if row.DeclaredTotal == nil || *row.DeclaredTotal != 30 {
		t.Fatalf("expected declared total 30 got %v", row.DeclaredTotal)
	}
}

func TestParseDottedDateNormalizesIdentically(t *testing.T) {
	a := parseText(t, "05/03/2025\nTURNO 1 100 200")
	b := parseText(t, "5.3.2025\nTURNO 1 100 200")
	if a[0].Date != "2025-03-05" || b[0].Date != a[0].Date {
		t.Fatalf("dates differ: %s vs %s", a[0].Date, b[0].Date)
	}
}

func TestParseSameDateReusesBlock(t *testing.T) {
	blocks := parseText(t, "05/03/2025\nTURNO 1 100 200\n05/03/2025\nTURNO 2 300 400")
	if len(blocks) != 1 {
		t.Fatalf("expected merged block got %d", len(blocks))
	}
	if len(blocks[0].Shifts) != 2 {
		t.Fatalf("expected 2 shifts got %d", len(blocks[0].Shifts))
	}
}

func TestParseShiftKeywordMisreads(t *testing.T) {
	blocks := parseText(t, "01/02/2025\nTURMO 2 15 25\nTUR 44 55")
	rows := blocks[0].Shifts
	if len(rows) != 2 {
		t.Fatalf("expected 2 shifts got %d", len(rows))
	}
	if rows[0].Name != "TURNO 2" {
		t.Fatalf("expected TURNO 2 got %s", rows[0].Name)
	}
	// TUR with a number still names the shift after it
	if rows[1].Name != "TURNO 44" {
		t.Fatalf("expected TURNO 44 got %s", rows[1].Name)
	}
}

func TestParseShiftWithoutNumberIsGeral(t *testing.T) {
	blocks := parseText(t, "01/02/2025\nTURNO GERAL 120 140")
	row := blocks[0].Shifts[0]
	if row.Name != "TURNO GERAL" {
		t.Fatalf("expected TURNO GERAL got %s", row.Name)
	}
	if len(row.Values) != 2 {
		t.Fatalf("expected 2 values got %d", len(row.Values))
	}
}

func TestParseDropsLeadingShiftNumberOnly(t *testing.T) {
	// the first 1 after the shift label is the shift number read back as a
	// value and is dropped; the second 1 is a genuine quantity and stays
	blocks := parseText(t, "01/02/2025\nTURNO 1 1 500 600")
	row := blocks[0].Shifts[0]
	if len(row.Values) != 3 || row.Values[0].Raw != "1" || row.Values[1].Raw != "500" || row.Values[2].Raw != "600" {
		t.Fatalf("unexpected values: %+v", row.Values)
	}
	// only the very first occurrence is dropped; a later duplicate is a
	// genuine quantity
	blocks = parseText(t, "01/02/2025\nTURNO 2 2 700")
	row = blocks[0].Shifts[0]
	if len(row.Values) != 2 || row.Values[0].Raw != "2" || row.Values[1].Raw != "700" {
		t.Fatalf("unexpected values after duplicate shift number: %+v", row.Values)
	}
}

func TestParseCorrectsConfusedDigitsInValues(t *testing.T) {
	blocks := parseText(t, "01/02/2025\nTURNO 1 1O5 2OO")
	row := blocks[0].Shifts[0]
	if len(row.Values) != 2 || row.Values[0].Raw != "105" || row.Values[1].Raw != "200" {
		t.Fatalf("unexpected corrected values: %+v", row.Values)
	}
}

func TestParseDateLineNeverCorrected(t *testing.T) {
	// the date digits must come through untouched even though O/S/B appear
	// elsewhere in the document
	blocks := parseText(t, "OBS: folha\n15/08/2025\nTURNO 1 5O 6O")
	if blocks[0].Date != "2025-08-15" {
		t.Fatalf("date corrupted: %s", blocks[0].Date)
	}
}

func TestParseImpossibleDateIgnored(t *testing.T) {
	blocks := parseText(t, "45/99/2025\nTURNO 1 100 200")
	if len(blocks) != 1 {
		t.Fatalf("expected fallback block got %d", len(blocks))
	}
	if blocks[0].Shifts[0].Name != "TURNO DETECTADO" {
		t.Fatalf("expected fallback shift got %s", blocks[0].Shifts[0].Name)
	}
}

func TestParseFallbackWhenNoDate(t *testing.T) {
	blocks := parseText(t, "folha de producao\nTURNO 1 15 20 3\nTURNO 2 40")
	if len(blocks) != 1 {
		t.Fatalf("expected exactly one fallback block got %d", len(blocks))
	}
	b := blocks[0]
	if b.Date != "2025-06-15" {
		t.Fatalf("expected today fallback date got %s", b.Date)
	}
	if len(b.Shifts) != 1 || b.Shifts[0].Name != "TURNO DETECTADO" {
		t.Fatalf("unexpected fallback shifts: %+v", b.Shifts)
	}
	// values below the noise floor (3) are dropped; 15, 20, 40 survive
	vals := b.Shifts[0].Values
	if len(vals) != 3 || vals[0].Raw != "15" || vals[1].Raw != "20" || vals[2].Raw != "40" {
		t.Fatalf("unexpected fallback values: %+v", vals)
	}
}

func TestParseNothingRecognized(t *testing.T) {
	blocks := parseText(t, "apenas um titulo\nsem dados")
	if len(blocks) != 0 {
		t.Fatalf("expected no blocks got %d", len(blocks))
	}
}

func TestParseLinksValuesToWords(t *testing.T) {
	res := &Result{
		FullText: "05/03/2025\nTURNO 1 150 250",
		Words: []RecognizedWord{
			{Text: "TURNO", X0: 0, Y0: 40, X1: 60, Y1: 60, Confidence: 90},
			{Text: "150", X0: 100, Y0: 40, X1: 140, Y1: 60, Confidence: 85},
			{Text: "250", X0: 200, Y0: 40, X1: 240, Y1: 60, Confidence: 80},
		},
	}
	blocks := ParseBlocks(res, time.Now())
	row := blocks[0].Shifts[0]
	if row.Values[0].Word == nil || row.Values[0].Word.X0 != 100 {
		t.Fatalf("first value not linked to its word: %+v", row.Values[0].Word)
	}
	if row.Values[1].Word == nil || row.Values[1].Word.X0 != 200 {
		t.Fatalf("second value not linked to its word: %+v", row.Values[1].Word)
	}
}

func TestParseRepeatedValuesClaimDistinctWords(t *testing.T) {
	// the middle value keeps the trailing 100 from reading as a declared
	// total, so the row stays three cells wide
	res := &Result{
		FullText: "05/03/2025\nTURNO 1 100 250 100",
		Words: []RecognizedWord{
			{Text: "100", X0: 10, X1: 50},
			{Text: "250", X0: 90, X1: 130},
			{Text: "100", X0: 170, X1: 210},
		},
	}
	blocks := ParseBlocks(res, time.Now())
	row := blocks[0].Shifts[0]
	if len(row.Values) != 3 {
		t.Fatalf("expected 3 values got %d", len(row.Values))
	}
	if row.Values[0].Word == nil || row.Values[2].Word == nil {
		t.Fatalf("repeated values not linked: %+v / %+v", row.Values[0].Word, row.Values[2].Word)
	}
	if row.Values[0].Word == row.Values[2].Word {
		t.Fatalf("both cells claimed the same word")
	}
	if row.Values[0].Word.X0 != 10 || row.Values[2].Word.X0 != 170 {
		t.Fatalf("claims out of reading order: %d / %d", row.Values[0].Word.X0, row.Values[2].Word.X0)
	}
}
