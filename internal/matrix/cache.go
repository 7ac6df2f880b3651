package matrix

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"routesolver/internal/model"
	"routesolver/internal/opt"
)

// Cache stores matrices by coordinate list.
type Cache interface {
	Get(ctx context.Context, key string) (*opt.Matrix, bool, error)
	Set(ctx context.Context, key string, m *opt.Matrix, ttl time.Duration) error
}

// CacheKey hashes the ordered coordinate list at ~0.1 m precision.
func CacheKey(points []model.GeoPoint) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = fmt.Sprintf("%.6f,%.6f", p.Lng, p.Lat)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ";")))
	return hex.EncodeToString(sum[:])
}

// RedisCache keeps matrices as JSON under "matrix:<hash>".
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache { return &RedisCache{rdb: rdb} }

type cachedMatrix struct {
	D [][]int64 `json:"d"`
	T [][]int64 `json:"t"`
}

func (c *RedisCache) Get(ctx context.Context, key string) (*opt.Matrix, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var cm cachedMatrix
	if err := json.Unmarshal(raw, &cm); err != nil {
		return nil, false, err
	}
	return &opt.Matrix{Distances: cm.D, Durations: cm.T}, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, m *opt.Matrix, ttl time.Duration) error {
	data, err := json.Marshal(cachedMatrix{D: m.Distances, T: m.Durations})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(key), data, ttl).Err()
}

func (c *RedisCache) key(k string) string { return "matrix:" + k }
