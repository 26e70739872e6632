// Package uploader drives the per-file upload state machine: register the
// upload with the control plane, stream parts in ascending order, finalize,
// and record the backup locally. Files run in parallel across a fixed worker
// pool; parts within one file are strictly serialized.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/vesselhq/vessel-agent/internal/api"
	"github.com/vesselhq/vessel-agent/internal/backupfile"
	"github.com/vesselhq/vessel-agent/internal/config"
	"github.com/vesselhq/vessel-agent/internal/constants"
	"github.com/vesselhq/vessel-agent/internal/logging"
	"github.com/vesselhq/vessel-agent/internal/provider"
	"github.com/vesselhq/vessel-agent/internal/store"
)

// ControlPlane is the slice of the api client the manager drives. Each
// worker owns its own instance; implementations are not shared.
type ControlPlane interface {
	InitUpload(f *backupfile.File) (string, error)
	UploadFilePart(f *backupfile.File, uploadKey string, part int) error
	CompleteUpload(uploadKey string) error
	GetStorageProvider() (*store.ProviderRecord, error)
	Close()
}

// ControlFactory builds a fresh control-plane client for one worker.
type ControlFactory func() (ControlPlane, error)

// TargetFactory builds a provider data-plane target for one file.
type TargetFactory func(rec *store.ProviderRecord) (provider.Target, error)

// Manager coordinates upload workers over a stream of candidate paths.
type Manager struct {
	store      *store.Store
	cfg        *config.Config
	log        *logging.Logger
	stats      *Stats
	newControl ControlFactory
	newTarget  TargetFactory
}

// NewManager wires a manager. newTarget may be nil, in which case every
// upload is proxied through the control plane.
func NewManager(st *store.Store, cfg *config.Config, log *logging.Logger, stats *Stats, newControl ControlFactory, newTarget TargetFactory) *Manager {
	if stats == nil {
		stats = NewStats()
	}
	return &Manager{
		store:      st,
		cfg:        cfg,
		log:        log,
		stats:      stats,
		newControl: newControl,
		newTarget:  newTarget,
	}
}

// Stats exposes the shared counters.
func (m *Manager) Stats() *Stats { return m.stats }

// Candidate is one scanned file plus its enclosing backup root.
type Candidate struct {
	Path     string
	RootID   uint
	RootPath string
}

// Run consumes candidates until the channel closes or ctx is cancelled.
// Each worker owns one in-flight file end-to-end.
func (m *Manager) Run(ctx context.Context, candidates <-chan Candidate) error {
	workers := m.cfg.Workers
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func(id int) {
			errCh <- m.worker(ctx, id, candidates)
		}(i)
	}

	var firstErr error
	for i := 0; i < workers; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) worker(ctx context.Context, id int, candidates <-chan Candidate) error {
	control, err := m.newControl()
	if err != nil {
		return fmt.Errorf("worker %d: %w", id, err)
	}
	defer control.Close()

	log := m.log.With().Int("worker", id).Logger()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cand, ok := <-candidates:
			if !ok {
				return nil
			}
			m.stats.FileSeen()
			if err := m.ProcessFile(ctx, control, cand); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				m.stats.Error()
				log.Error().Str("path", cand.Path).Err(err).Msg("upload failed")
			}
		}
	}
}

// ProcessFile runs one file through the full state machine. A cancelled
// context between parts leaves the upload record InProgress for resumption
// on the next run.
func (m *Manager) ProcessFile(ctx context.Context, control ControlPlane, cand Candidate) error {
	f, err := backupfile.New(cand.Path, m.store, m.cfg.ChunkSize)
	if err != nil {
		return err
	}
	if cand.RootPath != "" {
		f.AssignRoot(cand.RootID, cand.RootPath)
	}
	if !f.Readable {
		m.log.Warn().Str("path", f.Path).Msg("file not readable, skipping")
		return nil
	}

	pathHash := f.PathHash().Hex()

	prior, err := m.store.GetFile(pathHash)
	if err != nil && !store.IsNotFound(err) {
		return err
	}

	changed := prior != nil && !f.Matches(prior)
	if changed {
		// The stored snapshot no longer describes the file: cached content
		// hashes and any in-flight upload are invalid.
		if err := m.store.ClearContentHashes(pathHash); err != nil {
			return err
		}
		if rec, err := m.store.GetUploadByFile(pathHash); err == nil {
			if err := m.store.DeleteUpload(rec.ID); err != nil {
				return err
			}
		} else if !store.IsNotFound(err) {
			return err
		}
	}

	if prior != nil && !changed && prior.LastBackup != nil {
		// Already backed up in this exact state.
		return nil
	}

	rec, err := m.store.GetUploadByFile(pathHash)
	if err != nil && !store.IsNotFound(err) {
		return err
	}
	if rec != nil {
		switch rec.State {
		case store.UploadFailed:
			// Skipped until an operator clears it or the file changes.
			m.log.Debug().Str("path", f.Path).Msg("upload previously failed, skipping")
			return nil
		case store.UploadCompleted:
			return nil
		}
	}

	snapshot := f.Record()
	if prior != nil {
		snapshot.LastBackup = prior.LastBackup
		if !changed {
			snapshot.UploadID = prior.UploadID
			snapshot.UploadKey = prior.UploadKey
		}
	}
	if err := m.store.PutFile(snapshot); err != nil {
		return err
	}

	// Register with the control plane when no resumable record exists. Every
	// upload obtains a server key and travels the same part sequence; the part
	// count comes from the chunk size alone, and the large-file threshold only
	// decides whether the plan is logged as multipart.
	if rec == nil {
		if f.IsMultipart(m.cfg.LargeFileThreshold) {
			m.log.Debug().Str("path", f.Path).Int("parts", f.TotalParts()).Msg("multipart upload")
		}
		key, err := control.InitUpload(f)
		if err != nil {
			return err
		}
		rec = &store.UploadRecord{
			FileHash:   pathHash,
			UploadKey:  key,
			TotalParts: f.TotalParts(),
			State:      store.UploadInProgress,
		}
		if err := m.store.PutUpload(rec); err != nil {
			return err
		}
		if err := m.store.SetFileUploadLink(pathHash, &rec.ID, &rec.UploadKey); err != nil {
			return err
		}
	}

	target, err := m.resolveTarget(control, rec, f)
	if err != nil {
		return err
	}

	if err := m.uploadParts(ctx, control, target, f, rec); err != nil {
		return err
	}

	if target != nil {
		if err := target.Commit(ctx); err != nil {
			return m.failUpload(rec, err)
		}
	}

	if err := control.CompleteUpload(rec.UploadKey); err != nil {
		if !api.IsRetriable(err) {
			return m.failUpload(rec, err)
		}
		return err
	}

	rec.State = store.UploadCompleted
	if err := m.store.PutUpload(rec); err != nil {
		return err
	}
	if err := m.store.SetFileUploadLink(pathHash, nil, nil); err != nil {
		return err
	}
	if err := m.store.UpdateLastBackup(pathHash, time.Now().Unix()); err != nil {
		return err
	}
	m.log.Info().Str("path", f.Path).Int("parts", f.TotalParts()).Msg("backup complete")
	return nil
}

// resolveTarget decides the data-plane route for this upload. Direct
// provider targets cannot resume a provider-side session across runs, so a
// partially completed record forces the parts to restart.
func (m *Manager) resolveTarget(control ControlPlane, rec *store.UploadRecord, f *backupfile.File) (provider.Target, error) {
	if m.newTarget == nil {
		return nil, nil
	}
	prov, err := control.GetStorageProvider()
	if errors.Is(err, api.ErrNoProviders) {
		// No provider record yet: the control plane takes the parts.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if prov.Type == provider.TypeNative {
		// Native providers are proxied by the control plane.
		return nil, nil
	}

	target, err := m.newTarget(prov)
	if err != nil {
		return nil, err
	}
	if rec.CompletedParts.Count() > 0 {
		m.log.Debug().Str("path", f.Path).Msg("direct provider session not resumable, restarting parts")
		rec.CompletedParts = nil
		if err := m.store.PutUpload(rec); err != nil {
			return nil, err
		}
	}
	if err := target.Begin(context.Background(), rec.UploadKey, f.Size, f.TotalParts()); err != nil {
		return nil, err
	}
	return target, nil
}

// uploadParts streams missing parts in ascending order, persisting progress
// after each acknowledgement.
func (m *Manager) uploadParts(ctx context.Context, control ControlPlane, target provider.Target, f *backupfile.File, rec *store.UploadRecord) error {
	total := f.TotalParts()
	for k := 1; k <= total; k++ {
		if rec.CompletedParts.Has(k) {
			continue
		}
		if err := ctx.Err(); err != nil {
			// Leave the record InProgress; the next run resumes here.
			return err
		}

		if err := m.uploadPartWithRetry(ctx, control, target, f, rec, k); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return m.failUpload(rec, err)
		}

		rec.CompletedParts.Set(k)
		if err := m.store.PutUpload(rec); err != nil {
			return err
		}
		_, length := f.PartRange(k)
		m.stats.BytesUploaded(length)
	}
	return nil
}

// uploadPartWithRetry sends one part, retrying transient failures with
// exponential backoff. Non-retriable errors abort immediately.
func (m *Manager) uploadPartWithRetry(ctx context.Context, control ControlPlane, target provider.Target, f *backupfile.File, rec *store.UploadRecord, k int) error {
	attempt := 0
	op := func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		var err error
		if target != nil {
			var data []byte
			data, err = f.Part(k)
			if err == nil {
				err = target.PutPart(ctx, k, data)
			}
		} else {
			err = control.UploadFilePart(f, rec.UploadKey, k)
		}
		if err == nil {
			return nil
		}
		if !api.IsRetriable(err) {
			return backoff.Permanent(err)
		}
		m.log.Warn().Str("path", f.Path).Int("part", k).Int("attempt", attempt).Err(err).Msg("part upload failed, retrying")
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = constants.PartRetryInitialDelay
	b.MaxInterval = constants.PartRetryMaxDelay
	b.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithMaxRetries(b, constants.PartRetryMaxAttempts-1))
	if err != nil {
		return fmt.Errorf("part %d: %w", k, err)
	}
	return nil
}

// failUpload marks the record Failed and surfaces the error. The reaper
// removes the record after the grace period; until then the file is skipped.
func (m *Manager) failUpload(rec *store.UploadRecord, cause error) error {
	rec.State = store.UploadFailed
	if err := m.store.PutUpload(rec); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Reap removes finished upload records past the grace period.
func (m *Manager) Reap() error {
	cutoff := time.Now().Add(-constants.UploadGracePeriod).Unix()
	n, err := m.store.ReapUploads(cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		m.log.Debug().Int64("reaped", n).Msg("upload records reaped")
	}
	return nil
}
