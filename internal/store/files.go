package store

import (
	"gorm.io/gorm/clause"
)

// GetFile looks up a file record by the hex path-identity digest.
func (s *Store) GetFile(pathHash string) (*FileRecord, error) {
	var rec FileRecord
	err := s.db.Where("path_hash = ?", pathHash).First(&rec).Error
	if err != nil {
		return nil, wrap("get_file", err)
	}
	return &rec, nil
}

// PutFile upserts a file record keyed on path-identity.
func (s *Store) PutFile(rec *FileRecord) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path_hash"}},
		UpdateAll: true,
	}).Create(rec).Error
	return wrap("put_file", err)
}

// UpdateLastBackup stamps the file's last successful backup time. Commits
// immediately; a missing record is not an error (the file may never have
// been persisted).
func (s *Store) UpdateLastBackup(pathHash string, unixTS int64) error {
	err := s.db.Model(&FileRecord{}).
		Where("path_hash = ?", pathHash).
		Update("last_backup", unixTS).Error
	return wrap("update_last_backup", err)
}

// SetFileUploadLink records which local upload record and server key a file
// is currently attached to. Pass nils to detach.
func (s *Store) SetFileUploadLink(pathHash string, uploadID *uint, uploadKey *string) error {
	err := s.db.Model(&FileRecord{}).
		Where("path_hash = ?", pathHash).
		Updates(map[string]interface{}{"upload_id": uploadID, "upload_key": uploadKey}).Error
	return wrap("set_file_upload_link", err)
}

// ClearContentHashes invalidates cached content hashes after the file's size
// or mtime stopped matching the stored snapshot.
func (s *Store) ClearContentHashes(pathHash string) error {
	err := s.db.Model(&FileRecord{}).
		Where("path_hash = ?", pathHash).
		Updates(map[string]interface{}{"sha1": "", "sha256": ""}).Error
	return wrap("clear_content_hashes", err)
}
