// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/pkg/models"
)

// ErrCacheMiss отчет отсутствует в кэше или устарел
var ErrCacheMiss = errors.New("отчет не найден в кэше")

// ReportCache кэш последних отчетов по символам
type ReportCache interface {
	Set(ctx context.Context, report *models.Report, ttl time.Duration) error
	Get(ctx context.Context, symbol string) (*models.Report, error)
	Close() error
}

// RedisCache реализует ReportCache поверх Redis
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache создает кэш и проверяет соединение
func NewRedisCache(ctx context.Context, cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка соединения с Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

// Set сохраняет отчет с TTL
func (c *RedisCache) Set(ctx context.Context, report *models.Report, ttl time.Duration) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("ошибка сериализации отчета: %w", err)
	}
	if err := c.client.Set(ctx, c.key(report.Symbol), data, ttl).Err(); err != nil {
		return fmt.Errorf("ошибка записи в Redis: %w", err)
	}
	return nil
}

// Get получает последний отчет по символу
func (c *RedisCache) Get(ctx context.Context, symbol string) (*models.Report, error) {
	data, err := c.client.Get(ctx, c.key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из Redis: %w", err)
	}

	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("ошибка разбора отчета из кэша: %w", err)
	}
	return &report, nil
}

// Close закрывает соединение
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) key(symbol string) string {
	return c.prefix + "report:" + strings.ToUpper(symbol)
}
