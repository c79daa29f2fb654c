// Package cache — ключ-значение с TTL для горячих чтений.
// Кэш никогда не является источником истины: промах или ошибка кэша
// означают поход в PostgreSQL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dating-core/internal/config"
)

// ErrMiss — ключа нет в кэше (или истёк TTL).
var ErrMiss = errors.New("cache: miss")

// Cache — кэш положительных ответов. Удаления нет: записи живут до TTL.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisCache — кэш поверх go-redis, общий для всех экземпляров ядра.
type RedisCache struct{ client *redis.Client }

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// New возвращает RedisCache, если задан REDIS_ADDR, иначе кэш в памяти процесса.
func New(ctx context.Context, cfg *config.Config) (Cache, error) {
	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR не задан, используем кэш в памяти")
		return NewMemoryCache(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis недоступен: %w", err)
	}
	log.WithField("addr", cfg.RedisAddr).Info("Подключение к Redis установлено")
	return NewRedisCache(client), nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	res, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return res, err
}

func (r *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// sweepEvery — как часто Set вычищает истёкшие ключи.
const sweepEvery = time.Minute

// MemoryCache — кэш с TTL в памяти процесса, когда Redis не настроен.
// Истёкшие ключи удаляются при чтении и периодической чисткой в Set.
type MemoryCache struct {
	mu        sync.Mutex
	items     map[string]memItem
	now       func() time.Time
	lastSweep time.Time
}

type memItem struct {
	value     string
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: map[string]memItem{}, now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok {
		return "", ErrMiss
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		delete(m.items, key)
		return "", ErrMiss
	}
	return item.value, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if now.Sub(m.lastSweep) >= sweepEvery {
		m.cleanupLocked(now)
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}
	m.items[key] = memItem{value: value, expiresAt: expiresAt}
	return nil
}

func (m *MemoryCache) cleanupLocked(now time.Time) {
	for k, v := range m.items {
		if !v.expiresAt.IsZero() && !now.Before(v.expiresAt) {
			delete(m.items, k)
		}
	}
	m.lastSweep = now
}
