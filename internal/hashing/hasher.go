// Package hashing provides streaming SHA-1 and SHA-256 digests over files
// and byte buffers. Digests are fixed-size values; hex forms are produced on
// demand and never stand in for the raw bytes.
package hashing

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/vesselhq/vessel-agent/internal/constants"
)

// SHA1Digest is a raw 20-byte SHA-1 digest.
type SHA1Digest [sha1.Size]byte

// Hex returns the lowercase hex form of the digest.
func (d SHA1Digest) Hex() string { return hex.EncodeToString(d[:]) }

// SHA256Digest is a raw 32-byte SHA-256 digest.
type SHA256Digest [sha256.Size]byte

// Hex returns the lowercase hex form of the digest.
func (d SHA256Digest) Hex() string { return hex.EncodeToString(d[:]) }

// ParseSHA1 decodes a 40-char hex string into a digest.
func ParseSHA1(s string) (SHA1Digest, error) {
	var d SHA1Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("invalid sha1 hex: %w", err)
	}
	if len(raw) != sha1.Size {
		return d, fmt.Errorf("invalid sha1 length %d", len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// SHA1Bytes hashes a byte buffer.
func SHA1Bytes(b []byte) SHA1Digest {
	return SHA1Digest(sha1.Sum(b))
}

// SHA256Bytes hashes a byte buffer.
func SHA256Bytes(b []byte) SHA256Digest {
	return SHA256Digest(sha256.Sum(b))
}

// SHA1File streams the file through SHA-1 in bounded-memory blocks.
func SHA1File(path string) (SHA1Digest, error) {
	var d SHA1Digest
	sum, err := hashFile(path, sha1.New())
	if err != nil {
		return d, err
	}
	copy(d[:], sum)
	return d, nil
}

// SHA256File streams the file through SHA-256 in bounded-memory blocks.
func SHA256File(path string) (SHA256Digest, error) {
	var d SHA256Digest
	sum, err := hashFile(path, sha256.New())
	if err != nil {
		return d, err
	}
	copy(d[:], sum)
	return d, nil
}

func hashFile(path string, h hash.Hash) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, constants.HashBlockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return h.Sum(nil), nil
}
