package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/artifact"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/middleware"
	"server/internal/queue"
	"server/internal/status"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)

	var country middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable, country detection disabled")
	} else if resolver != nil {
		country = resolver.CountryCode
	}

	// The API reads artifacts but never uploads, so no object backend is
	// wired here; bucket-tier downloads redirect to the recorded location.
	artifacts := artifact.NewStore(runner, nil, logger, artifact.Thresholds{
		Inline:    cfg.ArtifactInlineThreshold,
		Chunk:     cfg.ArtifactChunkThreshold,
		ChunkSize: cfg.ArtifactChunkSize,
	})

	app := &handlers.App{
		Logger:        logger,
		Queue:         queue.New(runner),
		Projector:     status.NewProjector(runner, artifacts),
		Artifacts:     artifacts,
		DefaultLocale: cfg.DefaultLocale,
	}

	router := httpapi.NewRouter(httpapi.Options{
		App:     app,
		Config:  cfg,
		Logger:  logger,
		Country: country,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
