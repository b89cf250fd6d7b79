package numbering

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/billbook/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProvideIndex picks the Redis backend when REDIS_ADDR is set and the
// in-process cache otherwise.
func ProvideIndex(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Index {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Info("invoice ordering index", zap.String("backend", "memory"))
		return NewMemoryIndex(DefaultIndexTTL)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis ping failed; ordering index will reload from database", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Info("invoice ordering index", zap.String("backend", "redis"), zap.String("addr", addr))
	return NewRedisIndex(client, cfg.AppName, DefaultIndexTTL)
}
