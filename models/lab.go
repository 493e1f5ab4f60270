package models

import "time"

// Lab is a production site. Records and sheet uploads are scoped to a lab;
// users belong to exactly one.
type Lab struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time `gorm:"index"`
	// Active marks the lab usable without physically deleting its history.
	Active bool   `gorm:"default:true;not null"`
	Name   string `gorm:"size:255;not null;uniqueIndex"`
	// Uploads is a one-to-many relation from Lab to SheetUpload
	Uploads []SheetUpload `gorm:"foreignKey:LabID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
}
