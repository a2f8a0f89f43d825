// Package bootstrap wires config into a running Bridge: builds the Outlook
// adapter factory, connection pool, cache, rate limiter, and offload pool,
// then assembles core/handlers and core/bridge on top of them. Narrowed
// from the teacher's internal/bootstrap (worker_deps.go's single giant
// dependency struct wiring Postgres/MongoDB/Neo4j/Supabase/OpenAI/etc.) down
// to the handful of components this stateless bridge actually has, but
// keeps the same "one function builds everything, returns a cleanup" shape.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"bridgify/adapter/outlook"
	"bridgify/config"
	"bridgify/core/bridge"
	"bridgify/core/cache"
	"bridgify/core/handlers"
	"bridgify/core/offload"
	"bridgify/core/pool"
	"bridgify/core/port/out"
	"bridgify/core/ratelimit"
	"bridgify/pkg/logger"
	"bridgify/pkg/rediscache"
)

var log = logger.Component("bootstrap")

// Build assembles a *bridge.Bridge from cfg. The returned cleanup func
// releases the Redis client, if one was opened; the bridge's own Shutdown
// handles the pool/cache/offload components it owns.
func Build(ctx context.Context, cfg *config.Config) (*bridge.Bridge, func(), error) {
	var redisClient *redis.Client
	var l2 out.Cache
	var distributed out.DistributedWindow
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		l2 = rediscache.NewCache(redisClient)
		distributed = rediscache.NewWindow(redisClient)
		log.Info().Msg("Redis L2 cache and distributed rate-limit tier enabled")
	}
	cleanup := func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}

	factory, err := buildAdapterFactory(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	poolCfg := pool.Config{
		MinConnections: cfg.PoolMinConnections,
		MaxConnections: cfg.PoolMaxConnections,
		MaxIdle:        cfg.PoolMaxIdle,
		MaxAge:         cfg.PoolMaxAge,
		ProbeInterval:  cfg.PoolProbeInterval,
		StrictStartup:  cfg.PoolStrictStartup,
	}
	connPool, err := pool.New(ctx, factory, poolCfg, logger.Base())
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("build connection pool: %w", err)
	}

	c := cache.New(cache.Config{
		MaxItems:        cfg.CacheMaxItems,
		ByteBudget:      cfg.CacheByteBudgetBytes,
		CleanupInterval: cfg.CacheCleanupInterval,
		EvictToRatio:    cfg.CacheEvictToRatio,
	}, l2)

	limiter := ratelimit.New(ratelimit.Config{
		RPS:          cfg.RateLimitRPS,
		Burst:        cfg.RateLimitBurst,
		PerMinute:    cfg.RateLimitPerMinute,
		PerHour:      cfg.RateLimitPerHour,
		PerCallerCap: cfg.RateLimitPerCallerCap,
	}, distributed)

	offloadPool := offload.New(cfg.PoolMaxConnections)

	h := handlers.New(connPool, c, limiter, offloadPool)

	b := bridge.New(bridge.Config{
		MaxConcurrent:  cfg.MaxConcurrentRequests,
		QueueDeadline:  cfg.RequestTimeout,
		RequestTimeout: cfg.RequestTimeout,
		ShutdownGrace:  cfg.ShutdownGrace,
	}, connPool, c, limiter, h, offloadPool)

	return b, cleanup, nil
}

// buildAdapterFactory selects the HTTP or SDK-based Graph implementation
// per cfg.OutlookClient, both satisfying the same out.MailAdapterFactory
// contract.
func buildAdapterFactory(cfg *config.Config) (out.MailAdapterFactory, error) {
	oauthConfig := outlook.NewOAuthConfig(outlook.OAuthSettings{
		TenantID:     cfg.MicrosoftTenantID,
		ClientID:     cfg.MicrosoftClientID,
		ClientSecret: cfg.MicrosoftClientSecret,
		RedirectURL:  cfg.MicrosoftRedirectURL,
	})
	token := &oauth2.Token{RefreshToken: cfg.MicrosoftRefreshToken}

	switch cfg.OutlookClient {
	case "sdk":
		return outlook.NewSDKAdapterFactory(oauthConfig, token), nil
	case "http", "":
		return outlook.NewHTTPAdapterFactory(oauthConfig, token), nil
	default:
		return nil, fmt.Errorf("unknown OUTLOOK_CLIENT %q (want http or sdk)", cfg.OutlookClient)
	}
}
