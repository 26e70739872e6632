package store

import (
	"errors"
	"strings"

	"gorm.io/gorm/clause"
)

// DefaultMimeType is returned for extensions absent from the mime table.
const DefaultMimeType = "application/octet-stream"

// MimeTypeForExt resolves a file extension (".jpg", case-insensitive) to a
// MIME type. Unknown extensions fall back to application/octet-stream.
func (s *Store) MimeTypeForExt(ext string) (string, error) {
	ext = strings.ToLower(ext)
	if ext == "" {
		return DefaultMimeType, nil
	}
	var row MimeType
	if err := s.db.Where("ext = ?", ext).First(&row).Error; err != nil {
		werr := wrap("mime_type_for_ext", err)
		if errors.Is(werr, ErrNotFound) {
			return DefaultMimeType, nil
		}
		return "", werr
	}
	return row.Type, nil
}

// seedMimeTable populates a baseline extension table on first open. Existing
// rows are left alone so server-pushed overrides survive restarts.
func (s *Store) seedMimeTable() error {
	seed := []MimeType{
		{Ext: ".txt", Type: "text/plain"},
		{Ext: ".log", Type: "text/plain"},
		{Ext: ".csv", Type: "text/csv"},
		{Ext: ".html", Type: "text/html"},
		{Ext: ".htm", Type: "text/html"},
		{Ext: ".css", Type: "text/css"},
		{Ext: ".js", Type: "application/javascript"},
		{Ext: ".json", Type: "application/json"},
		{Ext: ".xml", Type: "application/xml"},
		{Ext: ".pdf", Type: "application/pdf"},
		{Ext: ".zip", Type: "application/zip"},
		{Ext: ".gz", Type: "application/gzip"},
		{Ext: ".tar", Type: "application/x-tar"},
		{Ext: ".7z", Type: "application/x-7z-compressed"},
		{Ext: ".doc", Type: "application/msword"},
		{Ext: ".docx", Type: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{Ext: ".xls", Type: "application/vnd.ms-excel"},
		{Ext: ".xlsx", Type: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{Ext: ".ppt", Type: "application/vnd.ms-powerpoint"},
		{Ext: ".pptx", Type: "application/vnd.openxmlformats-officedocument.presentationml.presentation"},
		{Ext: ".jpg", Type: "image/jpeg"},
		{Ext: ".jpeg", Type: "image/jpeg"},
		{Ext: ".png", Type: "image/png"},
		{Ext: ".gif", Type: "image/gif"},
		{Ext: ".bmp", Type: "image/bmp"},
		{Ext: ".svg", Type: "image/svg+xml"},
		{Ext: ".mp3", Type: "audio/mpeg"},
		{Ext: ".wav", Type: "audio/wav"},
		{Ext: ".mp4", Type: "video/mp4"},
		{Ext: ".mov", Type: "video/quicktime"},
		{Ext: ".avi", Type: "video/x-msvideo"},
		{Ext: ".sql", Type: "application/sql"},
		{Ext: ".db", Type: "application/octet-stream"},
	}
	err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error
	return wrap("seed_mime", err)
}
