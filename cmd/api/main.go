package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"studio/internal/adapter/repo"
	"studio/internal/adapter/sqlite"
	"studio/internal/domain"
	"studio/internal/http/handlers"
	httpapi "studio/internal/http/httpapi"
	"studio/internal/infra"
	"studio/internal/infra/geoip"
	"studio/internal/providers/conceptart"
	"studio/internal/session"
	"studio/internal/sse"
	"studio/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(infra.LoggerOptions{Env: cfg.AppEnv, Level: cfg.LogLevel, Component: "api"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	history, closeHistory, err := openHistory(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open history store")
	}
	defer closeHistory()

	files, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare storage")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	client, err := conceptart.NewClient(conceptart.Options{
		BaseURL:        cfg.ConceptAPIBaseURL,
		Logger:         &logger,
		RequestTimeout: cfg.HTTPClientTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid generation backend config")
	}

	hub := sse.NewHub(session.TerminalEvents...)
	go hub.Run(ctx)

	sessions := session.NewManager(ctx, session.Deps{
		Backend:         client,
		Repo:            history,
		Notifier:        hub,
		Store:           files,
		Logger:          &logger,
		PollInterval:    cfg.PollInterval,
		PollMaxAttempts: cfg.PollMaxAttempts,
	})
	defer sessions.Close()

	app := handlers.NewApp(sessions, client, history, hub, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   resolver.Lookup(),
	})

	server := infra.NewHTTPServer(cfg, router)
	if _, err := server.Listen(); err != nil {
		logger.Fatal().Err(err).Msg("listen")
	}
	logger.Info().Str("backend", client.BaseURL()).Msgf("studio listening on %s", server.Addr())

	if err := server.Run(ctx, cfg.HTTPIdleTimeout); err != nil {
		logger.Error().Err(err).Msg("http server stopped with error")
	}
	sessions.Close()
	logger.Info().Msg("server stopped")
}

// openHistory picks Postgres when DATABASE_URL points at one and the
// embedded SQLite file otherwise.
func openHistory(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (domain.GenerationRepository, func(), error) {
	if cfg.UsesPostgres() {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store := repo.NewGenerationRepository(infra.NewSQLRunner(pool, logger))
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info().Msg("history: postgres")
		return store, pool.Close, nil
	}
	store, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Str("path", cfg.SQLitePath).Msg("history: sqlite")
	return store, func() { _ = store.Close() }, nil
}
