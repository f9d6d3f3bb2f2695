// vhf-balise is the unattended runner: it polls wind providers, plans
// announcements and keys the radio. Exactly one instance runs per data
// directory, enforced by a PID lock.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/f4lix/vhf-balise/internal/config"
	"github.com/f4lix/vhf-balise/internal/database"
	"github.com/f4lix/vhf-balise/internal/provider"
	"github.com/f4lix/vhf-balise/internal/ptt"
	"github.com/f4lix/vhf-balise/internal/runner"
	"github.com/f4lix/vhf-balise/internal/transmit"
	"github.com/f4lix/vhf-balise/internal/tts"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	if err := cfg.EnsureDirs(); err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to create data directories")
	}

	log := newLogger(cfg)
	log.Info().Str("version", version).Str("data_dir", cfg.DataDir).Msg("vhf-balise starting")

	// run owns every deferred teardown, so the GPIO line and the database
	// are released even on a fatal exit.
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("runner failed")
	}
	log.Info().Msg("vhf-balise stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabasePath(), log.With().Str("component", "database").Logger())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	providers := provider.DefaultRegistry(log)

	engine := tts.NewPiper(cfg.PiperBin, cfg.ModelsDir(), log)
	go func() {
		if err := tts.WatchVoices(ctx, engine, log); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("voice watcher stopped")
		}
	}()
	cache := tts.NewCache(db, engine, cfg.AudioCacheDir(), cfg.Locale, log)

	driver, err := newPTTDriver(ctx, cfg, db, log)
	if err != nil {
		return fmt.Errorf("initialize ptt driver: %w", err)
	}
	defer driver.Cleanup()

	seq := transmit.NewSequencer(driver, nil, log)

	r := runner.New(runner.Options{
		DB:        db,
		Providers: providers,
		Cache:     cache,
		Sequencer: seq,
		PIDFile:   cfg.PIDFile(),
		Log:       log,
	})
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newLogger writes to stderr and to a text log under the data directory, so
// the box keeps a trace when nobody is watching the console.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w zerolog.LevelWriter = zerolog.MultiLevelWriter(os.Stderr)
	logPath := filepath.Join(cfg.LogDir(), "runner.log")
	if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
		w = zerolog.MultiLevelWriter(os.Stderr, f)
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(level)
}

// newPTTDriver selects the hardware line when a pin is configured, the mock
// otherwise. A box without GPIO still runs the full pipeline silently.
func newPTTDriver(ctx context.Context, cfg *config.Config, db *database.DB, log zerolog.Logger) (ptt.Driver, error) {
	settings, err := db.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if settings.PTTGpioPin == nil {
		log.Warn().Msg("no ptt gpio pin configured, using mock driver")
		return ptt.NewMockDriver(log), nil
	}
	return ptt.NewGPIODriver(cfg.GPIOChip, *settings.PTTGpioPin, settings.PTTActiveLevel, log)
}
