package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisOption func(*redis.Options)

func WithPassword(password string) RedisOption {
	return func(o *redis.Options) {
		o.Password = password
	}
}

func WithDB(db int) RedisOption {
	return func(o *redis.Options) {
		o.DB = db
	}
}

// ConnectRedis dials redis and checks it with PING.
func ConnectRedis(ctx context.Context, zapLogger *zap.Logger, addr string, opts ...RedisOption) (*redis.Client, error) {
	options := &redis.Options{
		Addr:        addr,
		DialTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(options)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	zapLogger.Info("connected to redis", zap.String("addr", addr), zap.Int("db", options.DB))
	return client, nil
}
