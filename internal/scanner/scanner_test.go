package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselhq/vessel-agent/internal/logging"
	"github.com/vesselhq/vessel-agent/internal/store"
	"github.com/vesselhq/vessel-agent/internal/uploader"
)

func collect(t *testing.T, s *Scanner) []uploader.Candidate {
	t.Helper()
	out := make(chan uploader.Candidate, 64)
	done := make(chan error, 1)
	go func() { done <- s.Scan(context.Background(), out) }()

	var got []uploader.Candidate
	for cand := range out {
		got = append(got, cand)
	}
	require.NoError(t, <-done)
	return got
}

func TestScanYieldsRegularFiles(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	defer st.Close()

	rootDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(rootDir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "a.txt"), []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "sub", "b.txt"), []byte("b"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, ".hidden"), []byte("h"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(rootDir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, ".git", "c"), []byte("c"), 0o600))

	root, err := st.AddBackupRoot(rootDir)
	require.NoError(t, err)

	got := collect(t, New(st, logging.NewDefaultLogger()))

	var paths []string
	for _, cand := range got {
		assert.Equal(t, root.ID, cand.RootID)
		assert.Equal(t, rootDir, cand.RootPath)
		rel, err := filepath.Rel(rootDir, cand.Path)
		require.NoError(t, err)
		paths = append(paths, rel)
	}
	sort.Strings(paths)
	assert.Equal(t, []string{"a.txt", filepath.Join("sub", "b.txt")}, paths)
}

func TestScanNoRoots(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	defer st.Close()

	got := collect(t, New(st, logging.NewDefaultLogger()))
	assert.Empty(t, got)
}

func TestScanSkipsDisabledRoots(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	defer st.Close()

	rootDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "a.txt"), []byte("a"), 0o600))
	_, err = st.AddBackupRoot(rootDir)
	require.NoError(t, err)
	require.NoError(t, st.DisableBackupRoot(rootDir))

	got := collect(t, New(st, logging.NewDefaultLogger()))
	assert.Empty(t, got)
}
