// balise-admin serves the configuration API. It shares the database with
// the runner but never touches the PTT line; a manual test only queues a
// ledger row for the runner to pick up.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/f4lix/vhf-balise/internal/api"
	"github.com/f4lix/vhf-balise/internal/config"
	"github.com/f4lix/vhf-balise/internal/database"
	"github.com/f4lix/vhf-balise/internal/provider"
	"github.com/f4lix/vhf-balise/internal/tts"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("balise-admin starting")

	if cfg.AuthToken == "" {
		log.Warn().Msg("AUTH_TOKEN is empty, admin api is unauthenticated")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.EnsureDirs(); err != nil {
		log.Fatal().Err(err).Msg("failed to create data directories")
	}

	db, err := database.Open(ctx, cfg.DatabasePath(), log.With().Str("component", "database").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	providers := provider.DefaultRegistry(log)

	// Credentials flow into the providers here too, so preview and manual
	// tests can fetch live readings without the runner.
	if creds, err := db.Credentials(ctx); err == nil {
		providers.ApplyCredentials(creds)
	}

	engine := tts.NewPiper(cfg.PiperBin, cfg.ModelsDir(), log)
	cache := tts.NewCache(db, engine, cfg.AudioCacheDir(), cfg.Locale, log)

	srv := api.NewServer(api.Options{
		Config:    cfg,
		DB:        db,
		Providers: providers,
		Cache:     cache,
		Engine:    engine,
		Version:   version,
		Log:       log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("balise-admin stopped")
}
