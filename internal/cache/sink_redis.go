package cache

import (
	"fmt"
	"time"

	redis "github.com/go-redis/redis"
)

// RedisSink is a Sink backed by Redis, grounded on trickster's
// CachingConfig.Redis ("standard" client type; cluster/sentinel are left to
// a future client_type switch — see RedisConfig.ClientType).
type RedisSink struct {
	client *redis.Client
}

// RedisConfig mirrors the fields of trickster's RedisCacheConfig that this
// sink actually uses; other trickster settings (cluster/sentinel endpoints,
// further pool tuning) have no counterpart here.
type RedisConfig struct {
	ClientType string
	Endpoint   string
	Password   string
	DB         int
	PoolSize   int
}

// NewRedisSink dials a standard (non-cluster) Redis client. Any other
// client type (cluster, sentinel) has no concrete client here;
// NewRedisSink returns an error for it so misconfiguration fails fast
// instead of silently falling back to standard.
func NewRedisSink(cfg RedisConfig) (*RedisSink, error) {
	if cfg.ClientType != "" && cfg.ClientType != "standard" {
		return nil, fmt.Errorf("cache: unsupported redis client_type %q", cfg.ClientType)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Endpoint,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping().Err(); err != nil {
		return nil, err
	}
	return &RedisSink{client: client}, nil
}

// Get implements Sink.
func (r *RedisSink) Get(key string) ([]byte, bool) {
	b, err := r.client.Get(key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

// Set implements Sink.
func (r *RedisSink) Set(key string, value []byte, ttl time.Duration) {
	r.client.Set(key, value, ttl)
}

// Del implements Sink.
func (r *RedisSink) Del(key string) {
	r.client.Del(key)
}

// Close releases the underlying connection pool.
func (r *RedisSink) Close() error {
	return r.client.Close()
}
