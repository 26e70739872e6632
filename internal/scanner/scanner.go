// Package scanner enumerates candidate files under the enabled backup
// roots. Its only contract with the rest of the agent is the stream of
// candidates it yields; selection policy beyond "regular, visible files"
// lives server-side.
package scanner

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/vesselhq/vessel-agent/internal/logging"
	"github.com/vesselhq/vessel-agent/internal/store"
	"github.com/vesselhq/vessel-agent/internal/uploader"
)

// Scanner walks backup roots and emits candidates.
type Scanner struct {
	store *store.Store
	log   *logging.Logger
}

// New builds a scanner over the given store.
func New(st *store.Store, log *logging.Logger) *Scanner {
	return &Scanner{store: st, log: log}
}

// Scan walks every enabled backup root, sending one candidate per regular
// file. The channel is closed when the walk finishes or ctx is cancelled.
// Unreadable subtrees are logged and skipped, never fatal.
func (s *Scanner) Scan(ctx context.Context, out chan<- uploader.Candidate) error {
	defer close(out)

	roots, err := s.store.EnabledBackupRoots()
	if err != nil {
		return err
	}

	for _, root := range roots {
		if err := s.walkRoot(ctx, root, out); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (s *Scanner) walkRoot(ctx context.Context, root store.BackupRoot, out chan<- uploader.Candidate) error {
	return filepath.WalkDir(root.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.log.Warn().Str("path", path).Err(err).Msg("scan error, skipping")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if isHidden(d.Name()) && path != root.Path {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || isHidden(d.Name()) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- uploader.Candidate{Path: path, RootID: root.ID, RootPath: root.Path}:
			return nil
		}
	})
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
