package hashing

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA1BytesVectors(t *testing.T) {
	// Published FIPS 180 test vectors.
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", SHA1Bytes(nil).Hex())
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", SHA1Bytes([]byte("abc")).Hex())
	assert.Equal(t,
		"84983e441c3bd26ebaae4aa1f95129e5e54670f1",
		SHA1Bytes([]byte("abcdbcdecdefdefgefghfghighijhijkijkljklmklmnlmnomnopnopq")).Hex())
}

func TestSHA256BytesVectors(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SHA256Bytes(nil).Hex())
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		SHA256Bytes([]byte("abc")).Hex())
}

func TestSHA256FileOfZeros(t *testing.T) {
	// 1024 zero bytes, the small-file upload scenario.
	path := filepath.Join(t.TempDir(), "zeros.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 1024), 0o600))

	d, err := SHA256File(path)
	require.NoError(t, err)
	assert.Equal(t, "5f70bf18a086007016e948b04aed3b82103a36bea41755b6cddfaf10ace3c6ef", d.Hex())
}

func TestFileAndBufferHashesAgree(t *testing.T) {
	content := bytes.Repeat([]byte("vessel"), 40000) // spans multiple read blocks
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	d1, err := SHA1File(path)
	require.NoError(t, err)
	assert.Equal(t, SHA1Bytes(content).Hex(), d1.Hex())

	d2, err := SHA256File(path)
	require.NoError(t, err)
	assert.Equal(t, SHA256Bytes(content).Hex(), d2.Hex())
}

func TestHashFileMissing(t *testing.T) {
	_, err := SHA1File(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestParseSHA1(t *testing.T) {
	d := SHA1Bytes([]byte("round trip"))
	parsed, err := ParseSHA1(d.Hex())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	_, err = ParseSHA1("zz")
	assert.Error(t, err)
	_, err = ParseSHA1("abcd")
	assert.Error(t, err)
}
