package ocr

import (
	"strconv"
	"strings"
)

// ParseQuantity parses hand-entered or OCR-derived numeric text into a
// quantity, tolerating thousand separators and comma decimals ("1.234,5",
// "1,234.5", "1234"). Returns ok=false for text with no usable number;
// callers skip such cells instead of failing.
func ParseQuantity(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, false
	}
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// the later separator is the decimal mark, the other groups thousands
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// lone comma: decimal when followed by 1-2 digits, grouping otherwise
		if tail := len(s) - lastComma - 1; tail >= 1 && tail <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		// lone dot: Brazilian sheets use it for thousands unless a short
		// decimal tail follows
		if tail := len(s) - lastDot - 1; tail == 3 && strings.Count(s, ".") >= 1 && lastDot > 0 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	q, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return q, true
}
