package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/IvaTomevska/loob-beta/internal/config"
	chatservice "github.com/IvaTomevska/loob-beta/internal/service/chat"
)

// ErrUnknownBackend 表示无法识别的 MESSAGE_STORE 配置。
var ErrUnknownBackend = errors.New("unknown message store backend")

// New 按配置创建存储后端。
func New(ctx context.Context, cfg config.StoreConfig) (chatservice.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres store requires DATABASE_URL")
		}
		return OpenPostgres(cfg.DatabaseURL)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s, err := NewRedisStore(ctx, client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
