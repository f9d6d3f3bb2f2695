// Package api is the admin HTTP surface: channel and settings CRUD,
// provider credentials, announcement preview, ledger history and the
// transmission forecast. The runner never calls into here; both processes
// meet only in the database.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/f4lix/vhf-balise/internal/config"
	"github.com/f4lix/vhf-balise/internal/database"
	"github.com/f4lix/vhf-balise/internal/metrics"
	"github.com/f4lix/vhf-balise/internal/provider"
	"github.com/f4lix/vhf-balise/internal/tts"
)

// Options carries the server dependencies, wired in main.
type Options struct {
	Config    *config.Config
	DB        *database.DB
	Providers *provider.Registry
	Cache     *tts.Cache
	Engine    tts.Engine
	Version   string
	Log       zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// handlers groups the route implementations around their shared deps.
type handlers struct {
	db        *database.DB
	providers *provider.Registry
	cache     *tts.Cache
	engine    tts.Engine
	version   string
	startTime time.Time
	log       zerolog.Logger
}

func NewServer(opts Options) *Server {
	log := opts.Log.With().Str("component", "api").Logger()

	h := &handlers{
		db:        opts.DB,
		providers: opts.Providers,
		cache:     opts.Cache,
		engine:    opts.Engine,
		version:   opts.Version,
		startTime: time.Now().UTC(),
		log:       log,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(CORS)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)

	// Unauthenticated probes.
	r.Get("/api/v1/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(opts.Config.AuthToken))

		r.Get("/api/v1/status", h.status)

		r.Get("/api/v1/settings", h.getSettings)
		r.Put("/api/v1/settings", h.putSettings)

		r.Get("/api/v1/channels", h.listChannels)
		r.Post("/api/v1/channels", h.createChannel)
		r.Post("/api/v1/channels/resolve-url", h.resolveStationURL)
		r.Get("/api/v1/channels/{id}", h.getChannel)
		r.Put("/api/v1/channels/{id}", h.updateChannel)
		r.Delete("/api/v1/channels/{id}", h.deleteChannel)
		r.Post("/api/v1/channels/{id}/test", h.testChannel)
		r.Post("/api/v1/channels/{id}/preview", h.previewChannel)

		r.Get("/api/v1/providers", h.listProviders)
		r.Get("/api/v1/credentials", h.listCredentials)
		r.Put("/api/v1/credentials/{provider}", h.putCredentials)
		r.Delete("/api/v1/credentials/{provider}", h.deleteCredentials)
		r.Post("/api/v1/credentials/{provider}/validate", h.validateCredentials)

		r.Get("/api/v1/tts/voices", h.listVoices)
		r.Get("/api/v1/audio/{key}", h.serveAudio)

		r.Get("/api/v1/tx-history", h.txHistory)
		r.Get("/api/v1/timeline/forecast", h.timelineForecast)
		r.Get("/api/v1/timeline/next", h.timelineNext)
	})

	return &Server{
		http: &http.Server{
			Addr:         opts.Config.HTTPAddr,
			Handler:      r,
			ReadTimeout:  opts.Config.ReadTimeout,
			WriteTimeout: opts.Config.WriteTimeout,
			IdleTimeout:  opts.Config.IdleTimeout,
		},
		log: log,
	}
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("admin api listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down admin api")
	return s.http.Shutdown(ctx)
}
