// Package backupfile models a single filesystem file selected for backup:
// its attributes, its stable path-identity, its content hashes and its
// multipart chunk plan.
package backupfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vesselhq/vessel-agent/internal/hashing"
	"github.com/vesselhq/vessel-agent/internal/store"
)

// MimeResolver resolves an extension to a MIME type. Satisfied by
// *store.Store; tests substitute a table.
type MimeResolver interface {
	MimeTypeForExt(ext string) (string, error)
}

// File is a value object describing one file to protect. Attributes reflect
// the filesystem at construction time; content hashes are computed lazily on
// first request and cached on the instance.
type File struct {
	// Attributes
	Name         string
	Ext          string
	MimeType     string
	Path         string // canonical (absolute, symlink-resolved)
	ParentPath   string
	RelativePath string // relative to the enclosing backup root, when known
	Size         int64
	Mtime        int64 // seconds since the Unix epoch
	DirectoryID  uint  // stable id of the enclosing backup root
	Readable     bool

	chunkSize int64

	pathHash    *hashing.SHA1Digest
	contentSHA1 *hashing.SHA1Digest
	contentSHA2 *hashing.SHA256Digest
}

// New builds a File from the filesystem, refreshing all attributes eagerly.
// Content hashes are NOT computed here. The MIME type is resolved through
// the store's extension table.
func New(path string, mime MimeResolver, chunkSize int64) (*File, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}

	canonical, err := canonicalize(path)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize %s: %w", path, err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", canonical, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", canonical)
	}

	ext := strings.ToLower(filepath.Ext(canonical))
	mimeType := store.DefaultMimeType
	if mime != nil {
		mimeType, err = mime.MimeTypeForExt(ext)
		if err != nil {
			return nil, err
		}
	}

	f := &File{
		Name:       filepath.Base(canonical),
		Ext:        ext,
		MimeType:   mimeType,
		Path:       canonical,
		ParentPath: filepath.Dir(canonical),
		Size:       info.Size(),
		Mtime:      info.ModTime().Unix(),
		chunkSize:  chunkSize,
	}
	f.Readable = f.probeReadable()
	return f, nil
}

// FromRecord rebuilds a File from a stored record without touching the
// filesystem. A cached SHA-1 carries over when present; the record's SHA-256
// is not restored and is computed from the file on first request.
func FromRecord(rec *store.FileRecord, chunkSize int64) (*File, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}

	f := &File{
		Name:        filepath.Base(rec.Path),
		Ext:         strings.ToLower(filepath.Ext(rec.Path)),
		Path:        rec.Path,
		ParentPath:  filepath.Dir(rec.Path),
		Size:        rec.Size,
		Mtime:       rec.Mtime,
		DirectoryID: rec.DirectoryID,
		chunkSize:   chunkSize,
	}

	if rec.SHA1 != "" {
		d, err := hashing.ParseSHA1(rec.SHA1)
		if err != nil {
			return nil, err
		}
		f.contentSHA1 = &d
	}

	ph, err := hashing.ParseSHA1(rec.PathHash)
	if err != nil {
		return nil, err
	}
	f.pathHash = &ph

	return f, nil
}

// AssignRoot links the file to its enclosing backup root and derives the
// root-relative path.
func (f *File) AssignRoot(rootID uint, rootPath string) {
	f.DirectoryID = rootID
	if rel, err := filepath.Rel(rootPath, f.Path); err == nil {
		f.RelativePath = rel
	}
}

// PathHash returns the SHA-1 of the canonical path bytes. Pure and cached;
// the same canonical path always yields the same digest.
func (f *File) PathHash() hashing.SHA1Digest {
	if f.pathHash == nil {
		d := hashing.SHA1Bytes([]byte(f.Path))
		f.pathHash = &d
	}
	return *f.pathHash
}

// ContentSHA1 streams the file through SHA-1, caching the result.
func (f *File) ContentSHA1() (hashing.SHA1Digest, error) {
	if f.contentSHA1 == nil {
		d, err := hashing.SHA1File(f.Path)
		if err != nil {
			return hashing.SHA1Digest{}, err
		}
		f.contentSHA1 = &d
	}
	return *f.contentSHA1, nil
}

// ContentSHA256 streams the file through SHA-256, caching the result.
func (f *File) ContentSHA256() (hashing.SHA256Digest, error) {
	if f.contentSHA2 == nil {
		d, err := hashing.SHA256File(f.Path)
		if err != nil {
			return hashing.SHA256Digest{}, err
		}
		f.contentSHA2 = &d
	}
	return *f.contentSHA2, nil
}

// ChunkSize returns the process-wide chunk size this file was planned with.
func (f *File) ChunkSize() int64 { return f.chunkSize }

// TotalParts returns the number of parts in the chunk plan. A zero-byte file
// has exactly one (empty) part.
func (f *File) TotalParts() int {
	if f.Size == 0 {
		return 1
	}
	return int((f.Size + f.chunkSize - 1) / f.chunkSize)
}

// IsMultipart reports whether the file must use the multipart path.
func (f *File) IsMultipart(threshold int64) bool {
	return f.Size >= threshold
}

// Chunk reads up to length bytes starting at offset. The file is opened per
// call; content is never assumed resident.
func (f *File) Chunk(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("negative chunk range %d+%d", offset, length)
	}
	if offset >= f.Size {
		return []byte{}, nil
	}
	if offset+length > f.Size {
		length = f.Size - offset
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Path, err)
	}
	defer fh.Close()

	buf := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(fh, offset, length), buf); err != nil {
		return nil, fmt.Errorf("failed to read %s at %d: %w", f.Path, offset, err)
	}
	return buf, nil
}

// Part returns the bytes of part k (1-based). The last part may be short;
// part 1 of a zero-byte file is empty.
func (f *File) Part(k int) ([]byte, error) {
	if k < 1 || k > f.TotalParts() {
		return nil, fmt.Errorf("part %d out of range 1..%d", k, f.TotalParts())
	}
	return f.Chunk(int64(k-1)*f.chunkSize, f.chunkSize)
}

// PartRange returns the byte range [offset, offset+length) covered by part k.
func (f *File) PartRange(k int) (offset, length int64) {
	offset = int64(k-1) * f.chunkSize
	length = f.chunkSize
	if offset+length > f.Size {
		length = f.Size - offset
	}
	if length < 0 {
		length = 0
	}
	return offset, length
}

// Record materializes the file as a store record, carrying any hashes that
// have been computed so far.
func (f *File) Record() *store.FileRecord {
	rec := &store.FileRecord{
		PathHash:    f.PathHash().Hex(),
		Path:        f.Path,
		Size:        f.Size,
		Mtime:       f.Mtime,
		DirectoryID: f.DirectoryID,
	}
	if f.contentSHA1 != nil {
		rec.SHA1 = f.contentSHA1.Hex()
	}
	if f.contentSHA2 != nil {
		rec.SHA256 = f.contentSHA2.Hex()
	}
	return rec
}

// Matches reports whether the stored snapshot still describes this file.
// A size or mtime drift invalidates cached content hashes and any in-flight
// upload.
func (f *File) Matches(rec *store.FileRecord) bool {
	return rec != nil && rec.Size == f.Size && rec.Mtime == f.Mtime
}

// probeReadable verifies the file can be opened for sequential read.
func (f *File) probeReadable() bool {
	fh, err := os.Open(f.Path)
	if err != nil {
		return false
	}
	fh.Close()
	return true
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}
