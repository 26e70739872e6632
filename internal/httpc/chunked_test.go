package httpc

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, wire string) ([]byte, error) {
	t.Helper()
	return readChunkedBody(bufio.NewReader(strings.NewReader(wire)))
}

func TestChunkedRoundTrip(t *testing.T) {
	body, err := decode(t, "5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))
}

func TestChunkedEmptyBody(t *testing.T) {
	body, err := decode(t, "0\r\n\r\n")
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestChunkedHexSizes(t *testing.T) {
	payload := strings.Repeat("x", 0x1a)
	body, err := decode(t, "1a\r\n"+payload+"\r\n0\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))

	// Uppercase hex is equally valid.
	body, err = decode(t, "1A\r\n"+payload+"\r\n0\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
}

func TestChunkedIgnoresExtensions(t *testing.T) {
	body, err := decode(t, "5;name=value\r\nhello\r\n0\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestChunkedDiscardsTrailers(t *testing.T) {
	body, err := decode(t, "3\r\nabc\r\n0\r\nX-Checksum: abc123\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(body))
}

func TestChunkedBinaryPayload(t *testing.T) {
	payload := string([]byte{0x00, 0x01, 0xFF, 0x0D, 0x0A, 0x7F})
	body, err := decode(t, "6\r\n"+payload+"\r\n0\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, []byte(payload), body)
}

func TestChunkedBadFraming(t *testing.T) {
	cases := map[string]string{
		"garbage size":        "zz\r\nhello\r\n0\r\n\r\n",
		"truncated data":      "10\r\nshort\r\n",
		"missing terminator":  "5\r\nhelloXX0\r\n\r\n",
		"negative size":       "-5\r\nhello\r\n0\r\n\r\n",
		"no final chunk":      "5\r\nhello\r\n",
		"truncated size line": "5",
	}
	for name, wire := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decode(t, wire)
			require.Error(t, err)
			assert.True(t, IsProtocol(err), "want ProtocolError, got %v", err)
		})
	}
}
