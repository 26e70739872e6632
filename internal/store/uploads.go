package store

// GetUpload looks up an upload record by its local id.
func (s *Store) GetUpload(uploadID uint) (*UploadRecord, error) {
	var rec UploadRecord
	err := s.db.Where("id = ?", uploadID).First(&rec).Error
	if err != nil {
		return nil, wrap("get_upload", err)
	}
	return &rec, nil
}

// GetUploadByFile returns the most recent upload record for a file, if any.
func (s *Store) GetUploadByFile(pathHash string) (*UploadRecord, error) {
	var rec UploadRecord
	err := s.db.Where("file_hash = ?", pathHash).Order("id DESC").First(&rec).Error
	if err != nil {
		return nil, wrap("get_upload_by_file", err)
	}
	return &rec, nil
}

// PutUpload inserts or updates an upload record, stamping UpdatedAt. The
// record's ID is populated on first insert.
func (s *Store) PutUpload(rec *UploadRecord) error {
	rec.UpdatedAt = now()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = rec.UpdatedAt
	}
	err := s.db.Save(rec).Error
	return wrap("put_upload", err)
}

// DeleteUpload removes an upload record by local id.
func (s *Store) DeleteUpload(uploadID uint) error {
	err := s.db.Where("id = ?", uploadID).Delete(&UploadRecord{}).Error
	return wrap("delete_upload", err)
}

// ReapUploads deletes Completed and Failed records whose last activity is
// older than the cutoff. InProgress records are never reaped; they are the
// resume state.
func (s *Store) ReapUploads(cutoff int64) (int64, error) {
	res := s.db.Where("state IN ? AND updated_at < ?",
		[]UploadState{UploadCompleted, UploadFailed}, cutoff).
		Delete(&UploadRecord{})
	return res.RowsAffected, wrap("reap_uploads", res.Error)
}
