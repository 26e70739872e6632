package store

import (
	"errors"
)

// Sentinel errors returned by store lookups.
var (
	ErrNotFound = errors.New("record not found")
)

// UploadState is the terminal-state column of an upload record.
type UploadState string

const (
	UploadInProgress UploadState = "InProgress"
	UploadCompleted  UploadState = "Completed"
	UploadFailed     UploadState = "Failed"
)

// Setting is a single well-known key/value pair.
type Setting struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value"`
}

// TableName overrides the GORM default pluralization.
func (Setting) TableName() string { return "settings" }

// FileRecord is the persistent identity and attribute snapshot of one file.
// It is keyed by the hex form of the path-identity digest (SHA-1 of the
// canonical path). Content hashes are valid only while Size and Mtime match
// the filesystem; callers must clear them on mismatch.
type FileRecord struct {
	PathHash    string  `gorm:"column:path_hash;primaryKey;size:40"`
	Path        string  `gorm:"column:path"`
	Size        int64   `gorm:"column:size"`
	Mtime       int64   `gorm:"column:mtime"`
	SHA1        string  `gorm:"column:sha1"`
	SHA256      string  `gorm:"column:sha256"`
	DirectoryID uint    `gorm:"column:directory_id"`
	UploadID    *uint   `gorm:"column:upload_id"`
	UploadKey   *string `gorm:"column:upload_key"`
	LastBackup  *int64  `gorm:"column:last_backup"`
}

func (FileRecord) TableName() string { return "files" }

// UploadRecord tracks one multipart upload lifecycle. Only the upload manager
// mutates it after creation.
type UploadRecord struct {
	ID             uint        `gorm:"column:id;primaryKey;autoIncrement"`
	FileHash       string      `gorm:"column:file_hash;size:40;index"`
	UploadKey      string      `gorm:"column:upload_key"`
	CompletedParts PartBitmap  `gorm:"column:completed_parts_bitmap"`
	TotalParts     int         `gorm:"column:total_parts"`
	CreatedAt      int64       `gorm:"column:created_at"`
	UpdatedAt      int64       `gorm:"column:updated_at"`
	State          UploadState `gorm:"column:state"`
}

func (UploadRecord) TableName() string { return "uploads" }

// ProviderRecord describes one remote storage backend. The credentials blob
// is opaque to the agent core; provider adapters parse it.
type ProviderRecord struct {
	ID          string `gorm:"column:id;primaryKey"`
	Type        string `gorm:"column:type"`
	Priority    int    `gorm:"column:priority"`
	Endpoint    string `gorm:"column:endpoint"`
	Credentials string `gorm:"column:credentials"`
	Enabled     bool   `gorm:"column:enabled"`
}

func (ProviderRecord) TableName() string { return "providers" }

// MimeType maps a file extension (with leading dot, lowercase) to its type.
type MimeType struct {
	Ext  string `gorm:"column:ext;primaryKey"`
	Type string `gorm:"column:mime_type"`
}

func (MimeType) TableName() string { return "mime" }

// BackupRoot is a user-designated top-level directory to protect.
type BackupRoot struct {
	ID      uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Path    string `gorm:"column:path;uniqueIndex"`
	Enabled bool   `gorm:"column:enabled"`
}

func (BackupRoot) TableName() string { return "directories" }
