package store

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProvidersByPriority returns all provider records ordered by priority
// ascending (lower number wins), id ascending as tiebreak.
func (s *Store) ProvidersByPriority() ([]ProviderRecord, error) {
	var recs []ProviderRecord
	err := s.db.Order("priority ASC, id ASC").Find(&recs).Error
	if err != nil {
		return nil, wrap("providers_by_priority", err)
	}
	return recs, nil
}

// UpsertProvider inserts or replaces a provider record.
func (s *Store) UpsertProvider(rec *ProviderRecord) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(rec).Error
	return wrap("upsert_provider", err)
}

// DeleteProvider removes a provider record by id.
func (s *Store) DeleteProvider(id string) error {
	err := s.db.Where("id = ?", id).Delete(&ProviderRecord{}).Error
	return wrap("delete_provider", err)
}

// ReconcileProviders replaces local provider state with the authoritative
// payload from the control plane: every listed provider is upserted, and any
// local provider absent from the payload is deleted. Runs in one transaction
// so a failure leaves no partial writes.
func (s *Store) ReconcileProviders(recs []ProviderRecord) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		keep := make([]string, 0, len(recs))
		for i := range recs {
			rec := recs[i]
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Create(&rec).Error; err != nil {
				return err
			}
			keep = append(keep, rec.ID)
		}
		if len(keep) == 0 {
			return tx.Where("1 = 1").Delete(&ProviderRecord{}).Error
		}
		return tx.Where("id NOT IN ?", keep).Delete(&ProviderRecord{}).Error
	})
	return wrap("reconcile_providers", err)
}
