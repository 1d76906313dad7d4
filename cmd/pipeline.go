package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/aggregator"
	"github.com/spigell/grantfit/internal/ai"
	"github.com/spigell/grantfit/internal/ai/gemini"
	"github.com/spigell/grantfit/internal/config"
	"github.com/spigell/grantfit/internal/jobs"
	"github.com/spigell/grantfit/internal/logger"
	"github.com/spigell/grantfit/internal/resilience"
	"github.com/spigell/grantfit/internal/sources"
)

// pipeline holds the components shared by the commands.
type pipeline struct {
	store      *config.Store
	logger     *zap.Logger
	registry   *sources.Registry
	opendata   *sources.Opendata
	aggregator *aggregator.Aggregator
	runner     *jobs.Runner
	redis      *redis.Client
}

// newPipeline loads the config and builds every component. Fatal problems
// terminate the process, as there is nothing to run without them.
func newPipeline(ctx context.Context) *pipeline {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the grantfit",
		zap.String("version", version),
		zap.String("classifier_version", resilience.ClassifierVersion),
	)
	logger.Debug("starting with config", zap.Any("config", config.Mask(viper.AllSettings())))

	store := config.NewStore(cfg)
	if viper.ConfigFileUsed() != "" {
		store.Watch(viper.GetViper(), logger)
	}

	p := &pipeline{
		store:    store,
		logger:   logger,
		registry: sources.NewRegistry(store, logger),
		opendata: sources.NewOpendata(store, logger),
	}

	listings := sources.NewListings(store, logger)
	listings[config.SourceOpendata] = p.opendata

	if cache := cfg.Cache; cache.RedisAddr != "" {
		p.redis = redis.NewClient(&redis.Options{
			Addr:     cache.RedisAddr,
			Password: cache.Password,
			DB:       cache.DB,
		})
		if err := p.redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis is unreachable, listings will bypass the cache", zap.String("addr", cache.RedisAddr), zap.Error(err))
		}
		for name, c := range listings {
			listings[name] = sources.NewCached(c, p.redis, cache.TTL, logger)
		}
	}

	p.aggregator = aggregator.New(listings, p.registry, store.RetryPolicy, logger)

	scorer, err := newScorer(store, logger)
	if err != nil {
		logger.Fatal("creating the scorer", zap.Error(err))
	}
	p.runner = jobs.NewRunner(p.aggregator, ai.NewRetrying(scorer, store.RetryPolicy, logger), store, logger)

	return p
}

func newScorer(store *config.Store, logger *zap.Logger) (ai.Scorer, error) {
	cfg := store.AI()

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	return gemini.NewScorer(gemini.NewGenerator(store, logger), store, logger), nil
}

func (p *pipeline) Close() {
	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			p.logger.Warn("closing redis", zap.Error(err))
		}
	}
	_ = p.logger.Sync()
}
