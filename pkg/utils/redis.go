package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig controls the client used as the signaling pub/sub bus.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Each SUBSCRIBE holds a dedicated connection for its lifetime, so the pool
	// must leave room for one per in-flight call plus the inbox listeners.
	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	PingTimeout time.Duration
}

// options fills defaults. A zero duration means "use the default"; pub/sub
// reads block until a message arrives and are not bounded by ReadTimeout.
func (c RedisConfig) options() (*redis.Options, time.Duration, error) {
	if c.Addr == "" {
		return nil, 0, errors.New("redis: addr is required")
	}
	or := func(v, def time.Duration) time.Duration {
		if v <= 0 {
			return def
		}
		return v
	}
	pool := c.PoolSize
	if pool <= 0 {
		pool = 50
	}
	return &redis.Options{
		Addr:            c.Addr,
		Password:        c.Password,
		DB:              c.DB,
		DialTimeout:     or(c.DialTimeout, 3*time.Second),
		ReadTimeout:     or(c.ReadTimeout, 2*time.Second),
		WriteTimeout:    or(c.WriteTimeout, 2*time.Second),
		PoolSize:        pool,
		MinIdleConns:    max(c.MinIdleConns, 0),
		PoolTimeout:     or(c.PoolTimeout, 4*time.Second),
		ConnMaxIdleTime: or(c.ConnMaxIdleTime, 5*time.Minute),
		ConnMaxLifetime: or(c.ConnMaxLifetime, 30*time.Minute),
	}, or(c.PingTimeout, 2*time.Second), nil
}

// OpenRedis builds a client and checks connectivity with PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, pingTimeout, err := cfg.options()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}
