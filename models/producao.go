package models

import (
	"time"

	"gorm.io/datatypes"
)

// Record sources; stored inside Metadata so downstream reporting can tell
// how a row entered the system.
const (
	SourceOCR         = "ocr_multi_day"
	SourceManualEdit  = "manual_edit"
	SourceSpreadsheet = "spreadsheet_upload"
)

// RegistroProducao is one persisted production quantity: date x shift x
// machine. IdentificadorUnico is derived deterministically from
// (date, shift, column), so re-digitizing the same photo upserts instead of
// duplicating.
type RegistroProducao struct {
	ID                 uint           `gorm:"primaryKey" json:"-"`
	CreatedAt          time.Time      `json:"-"`
	UpdatedAt          time.Time      `json:"-"`
	LabID              uint           `gorm:"index;not null" json:"lab_id"`
	IdentificadorUnico string         `gorm:"size:128;not null;uniqueIndex" json:"identificador_unico"`
	DataProducao       string         `gorm:"size:10;not null;index" json:"data_producao"` // YYYY-MM-DD
	Turno              string         `gorm:"size:64;not null" json:"turno"`
	Produto            string         `gorm:"size:128;not null" json:"produto"` // "Line/Machine N"
	Peso               float64        `gorm:"not null" json:"peso"`
	Metadata           datatypes.JSON `json:"metadata"` // {"source": "..."}
}
