// Package bootstrap provides dependency initialization for mediadesk.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/mediadesk/internal/audio"
	"github.com/maauso/mediadesk/internal/config"
	"github.com/maauso/mediadesk/internal/download"
	"github.com/maauso/mediadesk/internal/job"
	"github.com/maauso/mediadesk/internal/media"
	"github.com/maauso/mediadesk/internal/server"
	"github.com/maauso/mediadesk/internal/storage"
)

// Dependencies holds the initialized services shared by the CLI and the HTTP server.
type Dependencies struct {
	Service *job.Service
	Store   storage.Storage
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...job.ServiceOption) (*Dependencies, error) {
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	combiner := audio.NewFFmpegCombiner(cfg.FFmpegPath)
	converter := media.NewFFmpegProcessor(cfg.FFmpegPath, media.WithFFprobePath(cfg.FFprobePath))
	fetcher := download.NewYTDLPFetcher(cfg.YTDLPPath,
		download.WithFFmpegPath(cfg.FFmpegPath),
		download.WithRetry(uint64(cfg.DownloadRetries), download.DefaultBackoff), // #nosec G115 - validated 0..10
	)

	svc := job.NewService(
		job.NewMemoryRepository(),
		combiner,
		converter,
		fetcher,
		store,
		logger,
		opts...,
	)

	return &Dependencies{
		Service: svc,
		Store:   store,
	}, nil
}

// HandlerDefaults maps the configured operation defaults onto the HTTP handlers.
func HandlerDefaults(cfg *config.Config) server.Defaults {
	return server.Defaults{
		OutputDir: cfg.OutputDir,
		Combine:   cfg.CombineOpts(),
		GIF:       cfg.GIFOpts(),
		Download:  cfg.DownloadOpts(),
		Chunk:     cfg.ChunkConfig(),
	}
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Debug("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Debug("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
