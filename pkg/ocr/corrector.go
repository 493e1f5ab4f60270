package ocr

import (
	"regexp"
	"strings"
)

// digitConfusions maps letters Tesseract commonly reads instead of handwritten
// digits. Applied only to numeric-looking tokens of shift rows, never to
// labels or date lines, so legitimate text is left alone.
var digitConfusions = strings.NewReplacer(
	"O", "0",
	"I", "1",
	"l", "1",
	"B", "8",
	"S", "5",
	"Z", "7",
	"G", "6",
)

// numericLookRE accepts tokens made of digits, the confusable letters and
// common in-number separators. Anything else is real text and must not be
// touched by the corrector.
var numericLookRE = regexp.MustCompile(`^[0-9OIlBSZG.,]+$`)

// CorrectDigits remaps confused letters to digits on a copy of the token.
// Idempotent: every output character is outside the substitution domain
// (the table never maps onto its own keys).
func CorrectDigits(token string) string {
	return digitConfusions.Replace(token)
}

// looksNumeric reports whether a token is a candidate for digit correction.
func looksNumeric(token string) bool {
	return token != "" && numericLookRE.MatchString(token)
}
