package config

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisClient is set by InitRedis and stays nil when Redis is disabled.
var RedisClient *redis.Client

// InitRedis connects to Redis and checks the connection.
func InitRedis(ctx context.Context, s *Settings) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     s.RedisAddr,
		Password: s.RedisPassword,
		DB:       s.RedisDB,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", s.RedisAddr, err)
	}

	RedisClient = client
	if Logger != nil {
		Logger.Info("✅ Connected to Redis", zap.String("addr", s.RedisAddr), zap.String("ping", pong))
	}
	return client, nil
}
