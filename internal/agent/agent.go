// Package agent ties the pieces into the long-running daemon: scan/upload
// cycles, the heartbeat task and the periodic stat push. Shutdown is
// cooperative; an in-flight part finishes or times out, and interrupted
// uploads resume on the next cycle.
package agent

import (
	"context"
	"time"

	"github.com/vesselhq/vessel-agent/internal/api"
	"github.com/vesselhq/vessel-agent/internal/config"
	"github.com/vesselhq/vessel-agent/internal/logging"
	"github.com/vesselhq/vessel-agent/internal/provider"
	"github.com/vesselhq/vessel-agent/internal/scanner"
	"github.com/vesselhq/vessel-agent/internal/store"
	"github.com/vesselhq/vessel-agent/internal/uploader"
)

// Agent owns the daemon lifecycle.
type Agent struct {
	cfg     *config.Config
	store   *store.Store
	log     *logging.Logger
	stats   *uploader.Stats
	manager *uploader.Manager
	scanner *scanner.Scanner

	// control is the agent's own client for heartbeat and stats; upload
	// workers build their own.
	control *api.Client
}

// New assembles an agent. The caller is expected to have verified
// enrollment; authenticated calls fail with ErrEnrollmentRequired otherwise.
func New(cfg *config.Config, st *store.Store, log *logging.Logger) (*Agent, error) {
	control, err := api.NewClient(cfg, st, log)
	if err != nil {
		return nil, err
	}

	stats := uploader.NewStats()
	newControl := func() (uploader.ControlPlane, error) {
		return api.NewClient(cfg, st, log)
	}
	newTarget := func(rec *store.ProviderRecord) (provider.Target, error) {
		return provider.NewTarget(rec, cfg.VerifyTLS, log)
	}

	return &Agent{
		cfg:     cfg,
		store:   st,
		log:     log,
		stats:   stats,
		manager: uploader.NewManager(st, cfg, log, stats, newControl, newTarget),
		scanner: scanner.New(st, log),
		control: control,
	}, nil
}

// Manager exposes the upload manager, mainly for one-shot runs.
func (a *Agent) Manager() *uploader.Manager { return a.manager }

// RunOnce performs a single scan-and-upload cycle.
func (a *Agent) RunOnce(ctx context.Context) error {
	candidates := make(chan uploader.Candidate, 64)

	scanErr := make(chan error, 1)
	go func() {
		scanErr <- a.scanner.Scan(ctx, candidates)
	}()

	if err := a.manager.Run(ctx, candidates); err != nil {
		<-scanErr
		return err
	}
	if err := <-scanErr; err != nil {
		return err
	}
	return a.manager.Reap()
}

// Run is the daemon loop: heartbeat and stat tickers plus backup cycles, one
// at start and then one per cyclePause tick. Returns when ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	defer a.control.Close()

	// First heartbeat eagerly: it pulls settings and the provider list
	// before any upload starts.
	if _, err := a.control.Heartbeat(); err != nil {
		a.log.Warn().Err(err).Msg("initial heartbeat failed")
	} else if err := a.cfg.ApplyStoreSettings(a.store); err != nil {
		return err
	}

	// Timer goroutine: heartbeat and stat pushes share the agent's own
	// control client and never touch the workers' clients.
	timersDone := make(chan struct{})
	go func() {
		defer close(timersDone)
		heartbeat := time.NewTicker(a.cfg.HeartbeatInterval)
		defer heartbeat.Stop()
		stat := time.NewTicker(a.cfg.StatInterval)
		defer stat.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				if _, err := a.control.Heartbeat(); err != nil {
					a.log.Warn().Err(err).Msg("heartbeat failed")
				}
			case <-stat.C:
				a.pushStats()
			}
		}
	}()

	cycle := time.NewTicker(cyclePause)
	defer cycle.Stop()

	if err := a.RunOnce(ctx); err != nil {
		a.log.Error().Err(err).Msg("backup cycle failed")
	}

	for {
		select {
		case <-ctx.Done():
			<-timersDone
			a.log.Info().Msg("agent stopping")
			return nil
		case <-cycle.C:
			if err := a.RunOnce(ctx); err != nil {
				a.log.Error().Err(err).Msg("backup cycle failed")
			}
		}
	}
}

// pushStats posts the aggregated counters since the last tick.
func (a *Agent) pushStats() {
	filesSeen, bytesUploaded, errCount := a.stats.Snapshot()
	payload := api.StatPayload{
		FilesSeen:     filesSeen,
		BytesUploaded: bytesUploaded,
		Errors:        errCount,
	}
	if err := a.control.PostStats(payload); err != nil {
		a.log.Warn().Err(err).Msg("stat push failed")
	}
}

// cyclePause is the interval between backup cycle starts in daemon mode.
const cyclePause = 5 * time.Minute
