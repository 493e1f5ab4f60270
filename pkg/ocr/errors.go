package ocr

import "errors"

// ErrNoSheetData is returned when recognition succeeds but the text contains
// neither date headings nor shift rows, so no draft can be offered.
var ErrNoSheetData = errors.New("no tally sheet structure detected")
