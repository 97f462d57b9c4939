package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/artifact"
	"server/internal/infra"
	"server/internal/infra/credentials"
	"server/internal/poller"
	"server/internal/providers/generation"
	"server/internal/queue"
	"server/internal/storage"
	"server/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	credStore := credentials.NewStore(runner)

	apiKey := strings.TrimSpace(cfg.GenerationAPIKey)
	if apiKey == "" {
		keyFromStore, err := credStore.GenerationAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: failed to load generation api key from store")
		} else {
			apiKey = keyFromStore
		}
	}
	if apiKey == "" {
		logger.Warn().Msg("worker: generation api key missing, provider calls will be rejected")
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	provider, err := generation.NewClient(generation.Options{
		APIKey:     apiKey,
		BaseURL:    cfg.GenerationBaseURL,
		HTTPClient: httpClient,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure generation client")
	}

	objects, err := newObjectStorage(ctx, cfg, credStore, httpClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	artifacts := artifact.NewStore(runner, objects, logger, artifact.Thresholds{
		Inline:    cfg.ArtifactInlineThreshold,
		Chunk:     cfg.ArtifactChunkThreshold,
		ChunkSize: cfg.ArtifactChunkSize,
	})

	awaiter := poller.New(provider, logger, poller.Policy{
		InitialDelay: cfg.PollInitialDelay,
		MaxDelay:     cfg.PollMaxDelay,
		MaxAttempts:  cfg.PollMaxAttempts,
		Budget:       cfg.PollBudget,
	})

	dispatcher := queue.NewDispatcher(queue.New(runner), logger)

	w := worker.New(worker.Options{
		SQL:            runner,
		Logger:         logger,
		Provider:       provider,
		Awaiter:        awaiter,
		Artifacts:      artifacts,
		Dispatcher:     dispatcher,
		Concurrency:    cfg.WorkerConcurrency,
		ClaimInterval:  cfg.ClaimInterval,
		IndexBatchSize: cfg.IndexBatchSize,
		StaleAfter:     cfg.JobStaleAfter,
		SweepInterval:  cfg.SweepInterval,
	})

	w.Run(ctx)
	logger.Info().Msg("worker: stopped")
}

// newObjectStorage picks the artifact object backend: the remote bucket when
// one is configured, otherwise a local file store for development.
func newObjectStorage(ctx context.Context, cfg *infra.Config, creds *credentials.Store, httpClient *http.Client, logger infra.Logger) (storage.ObjectStorage, error) {
	if strings.TrimSpace(cfg.BucketBaseURL) != "" {
		token := strings.TrimSpace(cfg.BucketToken)
		if token == "" {
			fromStore, err := creds.BucketToken(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("worker: failed to load bucket token from store")
			} else {
				token = fromStore
			}
		}
		return storage.NewBucketStore(storage.BucketOptions{
			BaseURL:    cfg.BucketBaseURL,
			Bucket:     cfg.BucketName,
			Token:      token,
			HTTPClient: httpClient,
		})
	}

	storagePath := cfg.StoragePath
	if storagePath == "" {
		storagePath = "./storage"
	}
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	return storage.NewFileStore(storagePath)
}
