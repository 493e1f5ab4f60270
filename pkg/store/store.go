// Package store is the persistence adapter for production records. Everything
// is keyed by the deterministic identificador_unico, so writes are upserts
// and re-processing a sheet can never duplicate a day.
package store

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"prodtally/models"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertBatch writes all records in one transaction: either the whole batch
// lands or none of it does. Conflicts on identificador_unico overwrite the
// quantity and labels in place.
func (s *Store) UpsertBatch(records []models.RegistroProducao) error {
	if len(records) == 0 {
		return nil
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "identificador_unico"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"lab_id", "data_producao", "turno", "produto", "peso", "metadata", "updated_at",
			}),
		}).Create(&records).Error
	})
	if err != nil {
		return fmt.Errorf("upsert batch of %d records: %w", len(records), err)
	}
	return nil
}

// ListByLabAndDateRange returns a lab's records for [from, to] inclusive,
// ordered the way the editor lays them out.
func (s *Store) ListByLabAndDateRange(labID uint, from, to string) ([]models.RegistroProducao, error) {
	var out []models.RegistroProducao
	err := s.db.
		Where("lab_id = ? AND data_producao >= ? AND data_producao <= ?", labID, from, to).
		Order("data_producao, turno, identificador_unico").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list producao: %w", err)
	}
	return out, nil
}

// ListByLabAndDate returns one day's records, used by the edit-existing entry
// point.
func (s *Store) ListByLabAndDate(labID uint, date string) ([]models.RegistroProducao, error) {
	return s.ListByLabAndDateRange(labID, date, date)
}

// DeleteByDate clears a lab's records for one date. Explicit operation,
// separate from any commit path.
func (s *Store) DeleteByDate(labID uint, date string) (int64, error) {
	res := s.db.Where("lab_id = ? AND data_producao = ?", labID, date).
		Delete(&models.RegistroProducao{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete producao %s: %w", date, res.Error)
	}
	return res.RowsAffected, nil
}
