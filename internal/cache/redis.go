package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atelier-cms/internal/config"

	"github.com/redis/go-redis/v9"
)

// Cache Redis 缓存句柄
// 作为依赖显式传入各组件，不使用包级单例。
type Cache struct {
	client  *redis.Client
	prefix  string
	enabled bool
}

// NewCache 初始化 Redis 缓存
// 配置未启用时返回的句柄所有操作均为 no-op。
func NewCache(cfg *config.RedisConfig) *Cache {
	if cfg == nil || !cfg.Enabled {
		return &Cache{}
	}
	addr := strings.TrimSpace(cfg.Host)
	if addr == "" {
		addr = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "ac"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", addr, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Cache{
		client:  client,
		prefix:  prefix,
		enabled: true,
	}
}

// Enabled 判断缓存是否启用
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Client 获取 Redis 客户端
func (c *Cache) Client() *redis.Client {
	if !c.Enabled() {
		return nil
	}
	return c.client
}

// Prefix 获取键前缀
func (c *Cache) Prefix() string {
	if c == nil {
		return ""
	}
	return c.prefix
}

// GetJSON 获取 JSON 缓存
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	val, err := c.client.Get(ctx, c.buildKey(key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON 写入 JSON 缓存
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.buildKey(key), payload, ttl).Err()
}

// GetString 获取字符串缓存
func (c *Cache) GetString(ctx context.Context, key string) (string, bool, error) {
	if !c.Enabled() {
		return "", false, nil
	}
	val, err := c.client.Get(ctx, c.buildKey(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetString 写入字符串缓存
func (c *Cache) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Set(ctx, c.buildKey(key), value, ttl).Err()
}

// Del 删除缓存
func (c *Cache) Del(ctx context.Context, key string) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Del(ctx, c.buildKey(key)).Err()
}

func (c *Cache) buildKey(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return c.prefix
	}
	return fmt.Sprintf("%s:%s", c.prefix, trimmed)
}
