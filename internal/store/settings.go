package store

import (
	"errors"

	"gorm.io/gorm/clause"
)

// GetSetting returns the value for a well-known setting name. The second
// return is false when the setting has never been written.
func (s *Store) GetSetting(name string) (string, bool, error) {
	var row Setting
	if err := s.db.Where("key = ?", name).First(&row).Error; err != nil {
		werr := wrap("get_setting", err)
		if errors.Is(werr, ErrNotFound) {
			return "", false, nil
		}
		return "", false, werr
	}
	return row.Value, true, nil
}

// SetSetting upserts a setting. Each call commits atomically.
func (s *Store) SetSetting(name, value string) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&Setting{Key: name, Value: value}).Error
	return wrap("set_setting", err)
}

// DeleteSetting removes a setting if present.
func (s *Store) DeleteSetting(name string) error {
	err := s.db.Where("key = ?", name).Delete(&Setting{}).Error
	return wrap("delete_setting", err)
}
