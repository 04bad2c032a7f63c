// Package snapshot provides the pluggable external SnapshotSource the core
// accepts but does not manage (spec §1). The Redis adapter is grounded on
// the teacher's cache.RedisCache, generalized from pool/user-stat keys to
// per-(node, layer) ordinal snapshots.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clustersentinel/clustersentinel/internal/node"
)

// Source is a pluggable cache the monitor may consult or populate with the
// most recently observed OrdinalSnapshot per (node, layer). It is never
// required for correctness — a Tick works with NoopSource.
type Source interface {
	Get(ctx context.Context, nodeID string, layer node.Layer) (node.OrdinalSnapshot, bool, error)
	Set(ctx context.Context, snap node.OrdinalSnapshot) error
}

// NoopSource never stores anything; Get always misses.
type NoopSource struct{}

func (NoopSource) Get(ctx context.Context, nodeID string, layer node.Layer) (node.OrdinalSnapshot, bool, error) {
	return node.OrdinalSnapshot{}, false, nil
}

func (NoopSource) Set(ctx context.Context, snap node.OrdinalSnapshot) error { return nil }

// RedisSource stores one JSON-encoded OrdinalSnapshot per (node, layer) key.
type RedisSource struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig mirrors the connection options the teacher's RedisCache
// exposes.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TTL          time.Duration
}

// NewRedisSource builds a RedisSource from cfg.
func NewRedisSource(cfg RedisConfig) *RedisSource {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisSource{client: redis.NewClient(opts), ttl: ttl}
}

func key(nodeID string, layer node.Layer) string {
	return fmt.Sprintf("clustersentinel:ordinal:%s:%s", nodeID, layer)
}

func (s *RedisSource) Get(ctx context.Context, nodeID string, layer node.Layer) (node.OrdinalSnapshot, bool, error) {
	raw, err := s.client.Get(ctx, key(nodeID, layer)).Bytes()
	if err == redis.Nil {
		return node.OrdinalSnapshot{}, false, nil
	}
	if err != nil {
		return node.OrdinalSnapshot{}, false, fmt.Errorf("snapshot: redis get: %w", err)
	}
	var snap node.OrdinalSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return node.OrdinalSnapshot{}, false, fmt.Errorf("snapshot: decode: %w", err)
	}
	return snap, true, nil
}

func (s *RedisSource) Set(ctx context.Context, snap node.OrdinalSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := s.client.Set(ctx, key(snap.Node, snap.Layer), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("snapshot: redis set: %w", err)
	}
	return nil
}

// HealthCheck pings the Redis connection, matching the teacher's
// RedisCache.HealthCheck.
func (s *RedisSource) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying Redis client.
func (s *RedisSource) Close() error {
	return s.client.Close()
}
