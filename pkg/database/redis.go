// Package database 负责初始化 Redis 与 MySQL 连接。
package database

import (
	"context"
	"fmt"
	"time"

	"aiko-go/internal/config"
	"aiko-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RDB 是会话快照使用的 Redis 客户端，未启用 redis 快照时为 nil。
var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接
func InitRedis(cfg config.RedisConfig) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	RDB = client
	log.Info("Redis client connected successfully")
	return nil
}
