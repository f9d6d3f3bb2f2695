// Package runner is the unattended scheduling loop: poll wind providers,
// plan announcements, execute due ones through the transmission sequencer.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/f4lix/vhf-balise/internal/clock"
	"github.com/f4lix/vhf-balise/internal/database"
	"github.com/f4lix/vhf-balise/internal/metrics"
	"github.com/f4lix/vhf-balise/internal/provider"
	"github.com/f4lix/vhf-balise/internal/transmit"
	"github.com/f4lix/vhf-balise/internal/tts"
)

// staleCutoff bounds the backlog replayed after an outage: PENDING rows
// planned further back than this are aborted at startup instead of aired.
const staleCutoff = time.Hour

// Options wires the runner's collaborators.
type Options struct {
	DB        *database.DB
	Providers *provider.Registry
	Cache     *tts.Cache
	Sequencer *transmit.Sequencer
	Clock     clock.Clock
	PIDFile   string
	Log       zerolog.Logger
}

// Runner drives the poll/plan/execute cycle on a one-second heartbeat. The
// poll interval from system settings gates the provider fetches; due
// transmissions are checked every heartbeat so planned times are honored to
// the second.
type Runner struct {
	db        *database.DB
	providers *provider.Registry
	cache     *tts.Cache
	seq       *transmit.Sequencer
	clock     clock.Clock
	pidFile   string
	log       zerolog.Logger

	lastPoll time.Time

	// Latest adopted measurement per channel, refreshed by the poll phase
	// and consulted again just before a transmission goes out.
	mu     sync.Mutex
	latest map[int64]*provider.Measurement
}

func New(opts Options) *Runner {
	ck := opts.Clock
	if ck == nil {
		ck = clock.System{}
	}
	return &Runner{
		db:        opts.DB,
		providers: opts.Providers,
		cache:     opts.Cache,
		seq:       opts.Sequencer,
		clock:     ck,
		pidFile:   opts.PIDFile,
		log:       opts.Log.With().Str("component", "runner").Logger(),
		latest:    make(map[int64]*provider.Measurement),
	}
}

// Run blocks until ctx is cancelled. It acquires the PID lock, clears
// stale backlog, then heartbeats once per second.
func (r *Runner) Run(ctx context.Context) error {
	release, err := acquirePIDLock(r.pidFile, r.log)
	if err != nil {
		return err
	}
	defer release()

	if err := r.bootstrap(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	r.log.Info().Msg("runner started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("runner stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.log.Error().Err(err).Msg("tick failed")
			}
		}
	}
}

// bootstrap aborts PENDING rows whose planned time predates the stale
// cutoff. Announcements planned within the last hour still go out.
func (r *Runner) bootstrap(ctx context.Context) error {
	now := r.clock.Now()
	n, err := r.db.AbortStalePending(ctx, now.Add(-staleCutoff),
		"Aborted at startup: planned more than 1h ago")
	if err != nil {
		return err
	}
	if n > 0 {
		r.log.Warn().Int64("aborted", n).Msg("stale pending transmissions cleared at startup")
	}
	return nil
}

// Tick runs one heartbeat: reload settings and credentials, poll providers
// when the interval elapsed, then execute whatever became due.
func (r *Runner) Tick(ctx context.Context) error {
	metrics.TicksTotal.Inc()
	now := r.clock.Now()

	if err := r.db.SetLastTick(ctx, now); err != nil {
		r.log.Warn().Err(err).Msg("cannot record heartbeat")
	}

	settings, err := r.db.Settings(ctx)
	if err != nil {
		return err
	}
	if !settings.MasterEnabled {
		return nil
	}

	creds, err := r.db.Credentials(ctx)
	if err != nil {
		return err
	}
	r.providers.ApplyCredentials(creds)

	channels, err := r.db.EnabledChannels(ctx)
	if err != nil {
		return err
	}

	interval := time.Duration(settings.PollIntervalSeconds) * time.Second
	if r.lastPoll.IsZero() || now.Sub(r.lastPoll) >= interval {
		r.lastPoll = now
		r.poll(ctx, now, channels)
	}

	return r.executeDue(ctx, settings)
}

func (r *Runner) setLatest(channelID int64, m *provider.Measurement) {
	r.mu.Lock()
	r.latest[channelID] = m
	r.mu.Unlock()
}

func (r *Runner) latestFor(channelID int64) *provider.Measurement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest[channelID]
}
