// Package session holds the reviewer-facing mutable state between OCR and
// commit: the parsed blocks, the structural edits a human makes to them, and
// the flattening of a confirmed session into persistable records. All of it
// is plain data plus pure transformations; rendering concerns stay outside.
package session

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"prodtally/models"
	"prodtally/pkg/ocr"
)

var (
	ErrBlockNotFound = errors.New("block not found")
	ErrShiftNotFound = errors.New("shift not found")
	ErrValueNotFound = errors.New("value not found")
)

// Session is one in-flight correction of a digitized (or reloaded) sheet.
// Transient: discarded after a successful commit or an explicit discard.
// Single-writer; the registry serializes access per session.
type Session struct {
	ID        string        `json:"id"`
	LabID     uint          `json:"lab_id"`
	Source    string        `json:"source"` // models.SourceOCR or models.SourceManualEdit
	ImagePath string        `json:"image_path,omitempty"`
	// Preprocessed image dimensions; word boxes live in this pixel space.
	ImageWidth  int          `json:"image_width,omitempty"`
	ImageHeight int          `json:"image_height,omitempty"`
	Blocks      []*ocr.Block `json:"blocks"`
	CreatedAt   time.Time    `json:"created_at"`
}

// New wraps freshly parsed blocks into a session.
func New(labID uint, source string, blocks []*ocr.Block) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		LabID:     labID,
		Source:    source,
		Blocks:    blocks,
		CreatedAt: time.Now(),
	}
	for _, b := range blocks {
		for _, row := range b.Shifts {
			ocr.RefreshDiscrepancy(row)
		}
	}
	return s
}

// maxReloadColumn bounds gap padding when rebuilding rows from persisted
// records, so a malformed produto label cannot allocate a huge row.
const maxReloadColumn = 64

// LoadFromRecords builds an editable session from previously persisted
// records for one date, so after-the-fact correction runs through the same
// editor and commit path as fresh digitization. Rows are grouped by shift and
// each value sits at its machine column, with blank cells padding any gaps,
// so an unchanged re-commit emits the same keys the records already carry.
// There is no source image, so no word boxes.
func LoadFromRecords(labID uint, records []models.RegistroProducao) *Session {
	byDate := map[string]*ocr.Block{}
	var blocks []*ocr.Block
	rowsByKey := map[string]*ocr.ShiftRow{}

	sorted := make([]models.RegistroProducao, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DataProducao != sorted[j].DataProducao {
			return sorted[i].DataProducao < sorted[j].DataProducao
		}
		if sorted[i].Turno != sorted[j].Turno {
			return sorted[i].Turno < sorted[j].Turno
		}
		return machineColumn(sorted[i].Produto) < machineColumn(sorted[j].Produto)
	})

	for _, rec := range sorted {
		b, ok := byDate[rec.DataProducao]
		if !ok {
			b = &ocr.Block{ID: uuid.NewString(), Date: rec.DataProducao}
			byDate[rec.DataProducao] = b
			blocks = append(blocks, b)
		}
		key := rec.DataProducao + "\x00" + rec.Turno
		row, ok := rowsByKey[key]
		if !ok {
			row = &ocr.ShiftRow{Name: rec.Turno}
			rowsByKey[key] = row
			b.Shifts = append(b.Shifts, row)
		}
		cell := &ocr.ValueCell{Raw: FormatQuantity(rec.Peso)}
		if col := machineColumn(rec.Produto); col >= 1 && col <= maxReloadColumn {
			for len(row.Values) < col {
				row.Values = append(row.Values, &ocr.ValueCell{})
			}
			row.Values[col-1] = cell
		} else {
			row.Values = append(row.Values, cell)
		}
	}
	return New(labID, models.SourceManualEdit, blocks)
}

// machineColumn extracts N from "Line/Machine N" for ordering; unknown labels
// sort last.
func machineColumn(produto string) int {
	idx := strings.LastIndexByte(produto, ' ')
	if idx < 0 {
		return 1 << 30
	}
	n, err := strconv.Atoi(produto[idx+1:])
	if err != nil {
		return 1 << 30
	}
	return n
}

// FormatQuantity renders a stored quantity back to cell text without
// introducing separators, so a load-edit-nothing-commit cycle reproduces the
// original records exactly.
func FormatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

func (s *Session) findBlock(blockID string) (*ocr.Block, error) {
	for _, b := range s.Blocks {
		if b.ID == blockID {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, blockID)
}

func (s *Session) findShift(blockID string, shiftIdx int) (*ocr.ShiftRow, error) {
	b, err := s.findBlock(blockID)
	if err != nil {
		return nil, err
	}
	if shiftIdx < 0 || shiftIdx >= len(b.Shifts) {
		return nil, fmt.Errorf("%w: block %s shift %d", ErrShiftNotFound, blockID, shiftIdx)
	}
	return b.Shifts[shiftIdx], nil
}

// AddBlock appends an empty block, for sheets a heuristic missed entirely.
// Date may be blank; the reviewer fills it before commit.
func (s *Session) AddBlock(date string) *ocr.Block {
	b := &ocr.Block{ID: uuid.NewString(), Date: date}
	s.Blocks = append(s.Blocks, b)
	return b
}

// SetBlockDate replaces a block's date with the given ISO string.
func (s *Session) SetBlockDate(blockID, date string) error {
	b, err := s.findBlock(blockID)
	if err != nil {
		return err
	}
	b.Date = strings.TrimSpace(date)
	return nil
}

// AddShift appends a named row to a block.
func (s *Session) AddShift(blockID, name string) error {
	b, err := s.findBlock(blockID)
	if err != nil {
		return err
	}
	b.Shifts = append(b.Shifts, &ocr.ShiftRow{Name: strings.TrimSpace(name)})
	return nil
}

// RenameShift changes a row's name in place; values keep their positions.
func (s *Session) RenameShift(blockID string, shiftIdx int, name string) error {
	row, err := s.findShift(blockID, shiftIdx)
	if err != nil {
		return err
	}
	row.Name = strings.TrimSpace(name)
	return nil
}

// RemoveShift deletes a row and everything in it.
func (s *Session) RemoveShift(blockID string, shiftIdx int) error {
	b, err := s.findBlock(blockID)
	if err != nil {
		return err
	}
	if shiftIdx < 0 || shiftIdx >= len(b.Shifts) {
		return fmt.Errorf("%w: block %s shift %d", ErrShiftNotFound, blockID, shiftIdx)
	}
	b.Shifts = append(b.Shifts[:shiftIdx], b.Shifts[shiftIdx+1:]...)
	return nil
}

// AddValue appends a cell to a row. Manually added cells carry no source word.
func (s *Session) AddValue(blockID string, shiftIdx int, raw string) error {
	row, err := s.findShift(blockID, shiftIdx)
	if err != nil {
		return err
	}
	row.Values = append(row.Values, &ocr.ValueCell{Raw: strings.TrimSpace(raw)})
	ocr.RefreshDiscrepancy(row)
	return nil
}

// UpdateValue replaces a cell's text, keeping its spatial link to the image.
func (s *Session) UpdateValue(blockID string, shiftIdx, valueIdx int, raw string) error {
	row, err := s.findShift(blockID, shiftIdx)
	if err != nil {
		return err
	}
	if valueIdx < 0 || valueIdx >= len(row.Values) {
		return fmt.Errorf("%w: block %s shift %d value %d", ErrValueNotFound, blockID, shiftIdx, valueIdx)
	}
	row.Values[valueIdx].Raw = strings.TrimSpace(raw)
	ocr.RefreshDiscrepancy(row)
	return nil
}

// RemoveValue deletes a cell; later columns shift left.
func (s *Session) RemoveValue(blockID string, shiftIdx, valueIdx int) error {
	row, err := s.findShift(blockID, shiftIdx)
	if err != nil {
		return err
	}
	if valueIdx < 0 || valueIdx >= len(row.Values) {
		return fmt.Errorf("%w: block %s shift %d value %d", ErrValueNotFound, blockID, shiftIdx, valueIdx)
	}
	row.Values = append(row.Values[:valueIdx], row.Values[valueIdx+1:]...)
	ocr.RefreshDiscrepancy(row)
	return nil
}
