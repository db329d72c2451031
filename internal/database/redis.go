package database

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// InitRedis connects the client that holds the ranking scheduler's per-month lock and
// done marker. Returns nil when Redis is disabled or unreachable; the scheduler then
// relies on idempotent writes alone.
func InitRedis() *redis.Client {
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 4)
	viper.SetDefault("redis.dial_timeout", 2*time.Second)
	viper.SetDefault("redis.op_timeout", time.Second)

	if !viper.GetBool("redis.enabled") {
		log.Println("[DATABASE] Redis disabled, ranking runs without a cross-instance lock")
		return nil
	}

	// The scheduler issues a handful of commands per tick, so a small pool is enough.
	opTimeout := viper.GetDuration("redis.op_timeout")
	rdb := redis.NewClient(&redis.Options{
		Addr:         viper.GetString("redis.host") + ":" + viper.GetString("redis.port"),
		Password:     viper.GetString("redis.password"),
		DB:           viper.GetInt("redis.db"),
		PoolSize:     viper.GetInt("redis.pool_size"),
		DialTimeout:  viper.GetDuration("redis.dial_timeout"),
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[DATABASE] Redis unreachable, ranking runs without a cross-instance lock: %v", err)
		rdb.Close()
		return nil
	}

	log.Println("[DATABASE] Redis connection established")
	return rdb
}
