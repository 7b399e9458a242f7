package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/langfuse-nodes/server/internal/conversation"
	"github.com/langfuse-nodes/server/internal/credentials"
	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/langfuse"
	"github.com/langfuse-nodes/server/internal/nodes"
	logx "github.com/langfuse-nodes/server/pkg/logger"
)

// app holds the long lived dependencies shared by the commands.
type app struct {
	cfg      AppConfig
	registry *host.Registry
	pool     *langfuse.Pool
	metrics  *prometheus.Registry
	creds    credentials.Store
	rdb      *redis.Client
}

func newApp(cfg AppConfig) (*app, error) {
	a := &app{cfg: cfg, metrics: prometheus.NewRegistry()}
	a.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		cache  langfuse.PromptCache    = langfuse.NewMemoryCache()
		memory conversation.Repository = conversation.NewMemoryRepository()
	)
	if cfg.Redis.Enabled() {
		rdb, err := cfg.Redis.New()
		if err != nil {
			return nil, fmt.Errorf("failed to initialise Redis client: %w", err)
		}
		a.rdb = rdb
		cache = langfuse.NewRedisCache(rdb, cfg.Langfuse.PromptCachePrefix)
		memory = conversation.NewRedisRepository(rdb, cfg.Conversation.TTL)
		logx.Debug().Msg("using redis for prompt cache and chat memory")
	}

	a.pool = langfuse.NewPool(langfuse.Config{
		FlushAt:       cfg.Langfuse.FlushAt,
		FlushInterval: cfg.Langfuse.FlushInterval,
		Timeout:       cfg.Langfuse.Timeout,
		MaxRetries:    cfg.Langfuse.MaxRetries,
		RetryBackoff:  cfg.Langfuse.RetryBackoff,
		Metrics:       langfuse.NewMetrics(a.metrics),
		PromptCache:   cache,
	})
	a.creds = credentials.Chain{credentials.NewEnvStore(cfg.Env), credentials.NewKeyringStore()}

	a.registry = host.NewRegistry()
	if err := nodes.Register(a.registry, nodes.Deps{Pool: a.pool, Memory: memory}); err != nil {
		_ = a.Close(context.Background())
		return nil, fmt.Errorf("failed to register node types: %w", err)
	}
	return a, nil
}

// Close flushes pending Langfuse events and releases connections.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.pool != nil {
		errs = append(errs, a.pool.Shutdown(ctx))
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	return errors.Join(errs...)
}
