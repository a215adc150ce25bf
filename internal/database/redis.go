package database

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"go-image-organizer/internal/models"
)

const (
	redisOpTimeout  = 10 * time.Second
	redisScanBatch  = 200
	redisDefaultKey = "organizer:"
)

// Redis stores documents as plain string values under a key prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects and pings the configured server.
func OpenRedis(cfg models.RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis backend selected but Redis.Addr is empty")
	}

	var tlsConfig *tls.Config
	if cfg.UseTLS {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		TLSConfig:    tlsConfig,
		DialTimeout:  redisOpTimeout,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s failed: %w", cfg.Addr, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = redisDefaultKey
	}
	log.WithField("addr", cfg.Addr).Info("Redis database connected")
	return NewRedisWithClient(client, prefix), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k []byte) string {
	return r.prefix + string(k)
}

func (r *Redis) Has(key []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		log.WithError(err).Warnf("Redis EXISTS %s failed", key)
		return false
	}
	return n > 0
}

func (r *Redis) Get(key []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	value, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return value, nil
}

func (r *Redis) Put(key []byte, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(key []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	n, err := r.client.Del(ctx, r.key(key)).Result()
	if err != nil {
		return fmt.Errorf("redis DEL %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Scan walks keys with SCAN MATCH so large keyspaces are never loaded by KEYS.
func (r *Redis) Scan(prefix []byte, fn func(key []byte, value []byte) error) error {
	ctx := context.Background()
	match := escapeGlob(r.prefix+string(prefix)) + "*"

	var keys []string
	iter := r.client.Scan(ctx, 0, match, redisScanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis SCAN %s: %w", prefix, err)
	}

	for _, k := range keys {
		value, err := r.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		} else if err != nil {
			return fmt.Errorf("redis GET %s: %w", k, err)
		}
		if err := fn([]byte(k[len(r.prefix):]), value); err != nil {
			return err
		}
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// escapeGlob escapes the characters SCAN MATCH treats specially.
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
