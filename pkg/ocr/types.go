package ocr

// RecognizedWord is a single word as reported by the OCR engine, positioned in
// preprocessed-image pixel space. Words are immutable once produced; parsed
// value cells reference them for spatial correlation only.
type RecognizedWord struct {
	Text       string  `json:"text"`
	X0         int     `json:"x0"`
	Y0         int     `json:"y0"`
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	Confidence float64 `json:"confidence"` // 0-100
}

// Result is the output of one OCR invocation.
type Result struct {
	FullText string
	Words    []RecognizedWord
}

// ValueCell is one editable quantity inside a shift row. Raw holds the
// pre-numeric text; Word points back at the source word when the cell came
// from OCR (nil for manually added cells and for edit-existing sessions).
type ValueCell struct {
	Raw  string          `json:"raw"`
	Word *RecognizedWord `json:"word,omitempty"`
}

// ShiftRow is one named work period inside a block, holding its ordered value
// cells and, when the reconciliation pass identified one, the human-written
// row total.
type ShiftRow struct {
	Name          string          `json:"name"`
	Values        []*ValueCell    `json:"values"`
	DeclaredTotal *int            `json:"declared_total,omitempty"`
	TotalWord     *RecognizedWord `json:"total_word,omitempty"`
	Discrepancy   bool            `json:"discrepancy"`
}

// Block groups the shift rows recognized under a single date heading.
// Date is ISO YYYY-MM-DD and may be blank until the reviewer fixes it;
// a block with a blank or invalid date cannot be committed.
type Block struct {
	ID     string      `json:"id"`
	Date   string      `json:"date"`
	Shifts []*ShiftRow `json:"shifts"`
}
