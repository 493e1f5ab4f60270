package models

import (
	"time"
)

// SheetUpload tracks a tally sheet photo submitted for digitization.
type SheetUpload struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	FileName    string `gorm:"size:255;not null"`
	StorePath   string `gorm:"column:store_path;size:512"` // relative path under the upload base
	LabID       uint   `gorm:"index;not null"`
	Lab         Lab    `gorm:"foreignKey:LabID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	ContentType string `gorm:"size:128"`
	// Mark upload as failed for OCR processing (record is kept so the
	// reviewer/admin can retry or inspect)
	Failed       bool   `gorm:"default:false;index"`
	FailedReason string `gorm:"size:255"`
}
