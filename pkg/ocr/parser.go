package ocr

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// date headings like 05/03/2025 or 5.3.2025 (day first)
	dateRE = regexp.MustCompile(`\b(\d{1,2})[/.](\d{1,2})[/.](\d{4})\b`)
	// TURNO plus the misreads that show up on low-contrast headers
	shiftRE = regexp.MustCompile(`(?i)\bTUR(?:NO|MO)?\b\s*:?\s*(\d+)?`)
	// value cells are separated by whitespace or hyphen runs
	tokenSplitRE = regexp.MustCompile(`[\s-]+`)
)

// values below this are treated as noise in the no-date fallback, where we
// have no row structure to lean on.
const fallbackNoiseFloor = 10

// ParseBlocks segments OCR full text into dated blocks of shift rows.
//
// The pass is a two-state machine: no block open until a date line is seen;
// once open, every line containing a shift keyword becomes a row of the
// current block. A date that repeats reuses its block, so multi-page sheets
// for the same day merge. Lines matching neither pattern (titles, signatures,
// stray marks) are ignored.
//
// When the whole document has shift-like lines but no recognizable date, a
// single synthetic block dated now is produced so the reviewer still gets an
// editable draft.
func ParseBlocks(res *Result, now time.Time) []*Block {
	wm := newWordMatcher(res.Words)
	byDate := map[string]*Block{}
	var blocks []*Block
	var current *Block
	sawShiftLine := false

	for _, line := range strings.Split(res.FullText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := dateRE.FindStringSubmatch(line); m != nil {
			iso := normalizeDate(m[1], m[2], m[3])
			if iso == "" {
				continue // digits in date position but not a calendar date
			}
			if b, ok := byDate[iso]; ok {
				current = b
			} else {
				current = &Block{ID: uuid.NewString(), Date: iso}
				byDate[iso] = current
				blocks = append(blocks, current)
			}
			continue
		}
		if !shiftRE.MatchString(line) {
			continue
		}
		sawShiftLine = true
		if current == nil {
			continue // shift row before any date heading
		}
		sm := shiftRE.FindStringSubmatch(line)
		row := parseShiftLine(line, sm[1], wm)
		DetectDeclaredTotal(row, line)
		current.Shifts = append(current.Shifts, row)
	}

	if len(blocks) == 0 && sawShiftLine {
		blocks = append(blocks, fallbackBlock(res, now, wm))
	}
	return blocks
}

// parseShiftLine extracts the ordered numeric values of one shift row.
// Digit correction is applied per numeric-looking token, after line
// classification, so labels and dates are never corrupted. The first value
// that duplicates the shift number is dropped: it is almost always the shift
// number itself read as a quantity. Known approximation: a genuine first
// quantity equal to the shift number is dropped too; kept lenient on purpose.
func parseShiftLine(line, shiftNum string, wm *wordMatcher) *ShiftRow {
	name := "TURNO GERAL"
	if shiftNum != "" {
		name = "TURNO " + shiftNum
	}
	row := &ShiftRow{Name: name}
	shiftN := -1
	if shiftNum != "" {
		shiftN, _ = strconv.Atoi(shiftNum)
	}
	droppedShiftNum := false
	for _, tok := range tokenSplitRE.Split(line, -1) {
		if !looksNumeric(tok) {
			continue
		}
		digits := onlyDigits(CorrectDigits(tok))
		if digits == "" {
			continue
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		if !droppedShiftNum && len(row.Values) == 0 && shiftN >= 0 && n == shiftN {
			droppedShiftNum = true
			continue
		}
		row.Values = append(row.Values, &ValueCell{
			Raw:  strconv.Itoa(n),
			Word: wm.claim(digits),
		})
	}
	return row
}

// fallbackBlock collects numeric tokens from every shift-like line into one
// synthetic row. Without row structure the filter is looser: small values are
// discarded as noise.
func fallbackBlock(res *Result, now time.Time, wm *wordMatcher) *Block {
	row := &ShiftRow{Name: "TURNO DETECTADO"}
	for _, line := range strings.Split(res.FullText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !shiftRE.MatchString(line) {
			continue
		}
		for _, tok := range tokenSplitRE.Split(line, -1) {
			if !looksNumeric(tok) {
				continue
			}
			digits := onlyDigits(CorrectDigits(tok))
			n, err := strconv.Atoi(digits)
			if err != nil || n < fallbackNoiseFloor {
				continue
			}
			row.Values = append(row.Values, &ValueCell{
				Raw:  strconv.Itoa(n),
				Word: wm.claim(digits),
			})
		}
	}
	return &Block{
		ID:     uuid.NewString(),
		Date:   now.Format("2006-01-02"),
		Shifts: []*ShiftRow{row},
	}
}

// normalizeDate converts day/month/year strings to ISO YYYY-MM-DD, returning
// "" for impossible calendar dates (time.Date silently rolls them over).
func normalizeDate(d, m, y string) string {
	day, _ := strconv.Atoi(d)
	mon, _ := strconv.Atoi(m)
	yr, _ := strconv.Atoi(y)
	t := time.Date(yr, time.Month(mon), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != yr || int(t.Month()) != mon || t.Day() != day {
		return ""
	}
	return t.Format("2006-01-02")
}

// ValidISODate reports whether s is a usable block date.
func ValidISODate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// wordMatcher links parsed values back to recognized words by digit content.
// Each word is claimed at most once so repeated quantities on a sheet map to
// distinct boxes.
type wordMatcher struct {
	words []RecognizedWord
	used  []bool
}

func newWordMatcher(words []RecognizedWord) *wordMatcher {
	return &wordMatcher{words: words, used: make([]bool, len(words))}
}

func (wm *wordMatcher) claim(digits string) *RecognizedWord {
	for i := range wm.words {
		if wm.used[i] {
			continue
		}
		if onlyDigits(CorrectDigits(wm.words[i].Text)) == digits {
			wm.used[i] = true
			return &wm.words[i]
		}
	}
	return nil
}
