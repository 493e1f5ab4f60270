package session

import (
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"prodtally/models"
	"prodtally/pkg/ocr"
)

// InvalidDatesError rejects a commit that contains blocks without a usable
// date. No records are produced at all; the reviewer fixes the listed blocks
// and retries.
type InvalidDatesError struct {
	BlockIDs []string
}

func (e *InvalidDatesError) Error() string {
	return fmt.Sprintf("blocks with blank or invalid date: %s", strings.Join(e.BlockIDs, ", "))
}

// Flatten turns a confirmed session into the records to persist: one per
// value cell, columns numbered left to right. The identifier depends only on
// (date, shift, column), so committing the same sheet twice upserts the same
// rows. Cells whose text does not parse as a number are skipped, never fatal.
func (s *Session) Flatten() ([]models.RegistroProducao, error) {
	var bad []string
	for _, b := range s.Blocks {
		if !ocr.ValidISODate(b.Date) {
			bad = append(bad, b.ID)
		}
	}
	if len(bad) > 0 {
		return nil, &InvalidDatesError{BlockIDs: bad}
	}

	meta := datatypes.JSON([]byte(fmt.Sprintf(`{"source":%q}`, s.Source)))
	var out []models.RegistroProducao
	for _, b := range s.Blocks {
		for _, row := range b.Shifts {
			slug := strings.Join(strings.Fields(row.Name), "")
			for i, cell := range row.Values {
				peso, ok := ocr.ParseQuantity(cell.Raw)
				if !ok {
					continue
				}
				out = append(out, models.RegistroProducao{
					LabID:              s.LabID,
					IdentificadorUnico: fmt.Sprintf("%s-%s-COL%d", b.Date, slug, i+1),
					DataProducao:       b.Date,
					Turno:              row.Name,
					Produto:            fmt.Sprintf("Line/Machine %d", i+1),
					Peso:               peso,
					Metadata:           meta,
				})
			}
		}
	}
	return out, nil
}
