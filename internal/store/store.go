// Package store implements the agent's embedded persistent state: settings,
// file records, upload records, provider records, MIME lookups and backup
// roots. It is a thin layer over SQLite; a single Store is shared by all
// workers and writes are serialized by the database connection.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// StoreError wraps any I/O or corruption failure from the underlying
// database. Callers treat the store as authoritative once a write returns.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a missing-record lookup result.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store is the process-wide persistent state handle.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the agent database at path and runs
// migrations. The parent directory is created when missing.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, &StoreError{Op: "mkdir", Err: err}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}

	// Single writer keeps transaction discipline simple; SQLite serializes
	// anyway and this avoids SQLITE_BUSY churn under worker concurrency.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return &StoreError{Op: "close", Err: err}
	}
	if err := sqlDB.Close(); err != nil {
		return &StoreError{Op: "close", Err: err}
	}
	return nil
}

func (s *Store) migrate() error {
	err := s.db.AutoMigrate(
		&Setting{},
		&FileRecord{},
		&UploadRecord{},
		&ProviderRecord{},
		&MimeType{},
		&BackupRoot{},
	)
	if err != nil {
		return &StoreError{Op: "migrate", Err: err}
	}
	return s.seedMimeTable()
}

func now() int64 { return time.Now().Unix() }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return &StoreError{Op: op, Err: err}
}
