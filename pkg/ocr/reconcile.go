package ocr

import (
	"math"
	"regexp"
	"strconv"
)

// Detection must be lenient or useful totals get discarded; ongoing
// validation is stricter so genuine transcription errors surface. The
// asymmetry is deliberate.
const (
	totalDetectTolerance  = 5
	totalDisplayTolerance = 2
)

var trailingTotalRE = regexp.MustCompile(`(\d{2,})\s*$`)

// DetectDeclaredTotal decides whether the last value of a freshly parsed row
// is the human-written row total. The candidate must appear as a trailing
// multi-digit group on the source line and sit within the detection tolerance
// of the sum of the remaining values; otherwise everything stays a value and
// the row has no declared total.
func DetectDeclaredTotal(row *ShiftRow, line string) {
	if len(row.Values) < 2 {
		return
	}
	tail := trailingTotalRE.FindStringSubmatch(CorrectDigits(line))
	if tail == nil {
		return
	}
	last := row.Values[len(row.Values)-1]
	lastN, err := strconv.Atoi(last.Raw)
	if err != nil || tail[1] != last.Raw {
		return
	}
	sum := 0
	for _, v := range row.Values[:len(row.Values)-1] {
		n, err := strconv.Atoi(v.Raw)
		if err != nil {
			return
		}
		sum += n
	}
	if abs(sum-lastN) < totalDetectTolerance {
		row.DeclaredTotal = &lastN
		row.TotalWord = last.Word
		row.Values = row.Values[:len(row.Values)-1]
	}
}

// RefreshDiscrepancy recomputes the advisory mismatch flag from the row's
// current values. Called after every edit; a flagged row never blocks commit,
// some totals are simply wrong on the paper.
func RefreshDiscrepancy(row *ShiftRow) {
	row.Discrepancy = false
	if row.DeclaredTotal == nil {
		return
	}
	var sum float64
	for _, v := range row.Values {
		if q, ok := ParseQuantity(v.Raw); ok {
			sum += q
		}
	}
	row.Discrepancy = math.Abs(sum-float64(*row.DeclaredTotal)) > totalDisplayTolerance
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
