// Package redis provides the shared redis client.
package redis

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/staybridge/channelsync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func New(cfg config.Config, log *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	log.Info("redis client configured", zap.String("addr", cfg.RedisAddr))
	return client
}

func registerHooks(lc fx.Lifecycle, client *redis.Client, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				// The engine can run without the cache; connectors are
				// queried directly when redis is down.
				log.Warn("redis unreachable, rate cache disabled", zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
}

var Module = fx.Module("redis",
	fx.Provide(New),
	fx.Invoke(registerHooks),
)
