package store

import (
	"gorm.io/gorm/clause"
)

// AddBackupRoot registers a directory for protection. Adding an existing
// path re-enables it.
func (s *Store) AddBackupRoot(path string) (*BackupRoot, error) {
	root := BackupRoot{Path: path, Enabled: true}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled"}),
	}).Create(&root).Error
	if err != nil {
		return nil, wrap("add_backup_root", err)
	}
	// Re-read so the caller always sees the stable id, including on the
	// re-enable path where Create does not populate it.
	var out BackupRoot
	if err := s.db.Where("path = ?", path).First(&out).Error; err != nil {
		return nil, wrap("add_backup_root", err)
	}
	return &out, nil
}

// EnabledBackupRoots returns the roots the scanner should walk.
func (s *Store) EnabledBackupRoots() ([]BackupRoot, error) {
	var roots []BackupRoot
	err := s.db.Where("enabled = ?", true).Order("id ASC").Find(&roots).Error
	if err != nil {
		return nil, wrap("enabled_backup_roots", err)
	}
	return roots, nil
}

// DisableBackupRoot stops a root from being scanned without forgetting its
// file records.
func (s *Store) DisableBackupRoot(path string) error {
	err := s.db.Model(&BackupRoot{}).
		Where("path = ?", path).
		Update("enabled", false).Error
	return wrap("disable_backup_root", err)
}
