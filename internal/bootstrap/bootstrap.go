// Package bootstrap turns a config.Config into the store, providers and
// clients shared by the gateway and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"franklin/internal/adapters"
	"franklin/internal/adapters/did"
	"franklin/internal/adapters/elevenlabs"
	"franklin/internal/adapters/openai"
	"franklin/internal/adapters/stub"
	"franklin/internal/config"
	"franklin/internal/domain/usecase"
	"franklin/internal/repository/memory"
	psqlRepo "franklin/internal/repository/psql"
	redisRepo "franklin/internal/repository/redis"
	s3Repo "franklin/internal/repository/s3"
	"franklin/pkg/client/psql"
	redisClient "franklin/pkg/client/redis"
	s3Client "franklin/pkg/client/s3"
)

const providerTimeout = 60 * time.Second

// Redis connects when REDIS_HOST is set and returns nil otherwise.
func Redis(ctx context.Context, cfg config.Config) (*goredis.Client, error) {
	if cfg.Redis == nil {
		return nil, nil
	}
	return redisClient.NewRedisClient(ctx, redisClient.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
}

// Store opens the configured job store. rdb must be non-nil for the redis store.
func Store(cfg config.Config, rdb *goredis.Client) (usecase.JobStore, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.NewJobStore(), nil
	case config.StoreRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis store selected without a redis connection")
		}
		return redisRepo.NewRedisRepo(rdb, cfg.JobRetention), nil
	case config.StorePostgres:
		db, err := psql.NewPostgresDB(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return migrated(psqlRepo.NewGormJobRepo(db))
	case config.StoreSQLite:
		db, err := psql.NewSQLiteDB(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return migrated(psqlRepo.NewGormJobRepo(db))
	default:
		return nil, fmt.Errorf("unknown job store %q", cfg.Store)
	}
}

func migrated(repo *psqlRepo.GormJobRepo) (usecase.JobStore, error) {
	if err := repo.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate job table: %w", err)
	}
	return repo, nil
}

// Providers builds the stage providers. With an incomplete provider setup
// jobs fail at submission, so only the parts that are configured are built.
func Providers(ctx context.Context, cfg config.Config, logger *log.Logger) (usecase.Providers, error) {
	if cfg.StubProviders {
		logger.Printf("using stub providers (latency %s, %d pending video polls)", cfg.StubLatency, cfg.StubPendingPolls)
		return stub.Providers(cfg.StubLatency, cfg.StubPendingPolls, cfg.SpeechEnabled), nil
	}

	httpClient := adapters.NewHTTPClient(providerTimeout)
	p := usecase.Providers{
		Text: openai.New(openai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
		}, httpClient),
		Video: did.New(did.Config{
			APIKey:  cfg.DID.APIKey,
			BaseURL: cfg.DID.BaseURL,
		}, httpClient),
		TextName:  "openai",
		VideoName: "d-id",
	}

	if cfg.ProviderError() != nil || !cfg.SpeechEnabled {
		return p, nil
	}

	storage, err := s3Client.NewS3Client(*cfg.S3)
	if err != nil {
		return usecase.Providers{}, err
	}
	if err := storage.EnsureBucket(ctx); err != nil {
		return usecase.Providers{}, fmt.Errorf("prepare audio bucket: %w", err)
	}
	p.Speech = elevenlabs.New(elevenlabs.Config{
		APIKey:  cfg.ElevenLabs.APIKey,
		VoiceID: cfg.ElevenLabs.VoiceID,
		BaseURL: cfg.ElevenLabs.BaseURL,
	}, s3Repo.NewS3Repo(storage), httpClient)
	p.SpeechName = "elevenlabs"
	return p, nil
}

// Options maps config onto orchestrator options.
func Options(cfg config.Config) usecase.Options {
	return usecase.Options{
		SourceImageURL:  cfg.FranklinImageURL,
		PollInterval:    cfg.VideoPollInterval,
		MaxPollAttempts: cfg.VideoMaxPolls,
		Retention:       cfg.JobRetention,
		ConfigErr:       cfg.ProviderError(),
	}
}
