package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// RedisAddr returns host:port from config with defaults applied.
func RedisAddr() string {
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	return viper.GetString("redis.host") + ":" + viper.GetString("redis.port")
}

// OpenRedis connects to redis. Callers decide whether a failure is fatal:
// the redis settlement backend needs it, identity sessions fall back to memory.
func OpenRedis(ctx context.Context) (*redis.Client, error) {
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     RedisAddr(),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Println("[REDIS] connection established")
	return rdb, nil
}
