package cache

import (
	"context"
	"fmt"

	"github.com/odyssee/backend/internal/domain/shared"
	"github.com/odyssee/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Idempotency backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// NewIdempotencyStore builds the store selected by cfg.Idempotency.Backend.
// When Redis is selected but unreachable the in-memory store is used outside
// production; in production the error is returned.
func NewIdempotencyStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (shared.IdempotencyStore, error) {
	switch cfg.Idempotency.Backend {
	case "", BackendMemory:
		logger.Info("Using in-memory idempotency store")
		return NewInMemoryIdempotencyStore(), nil
	case BackendRedis:
		store, err := NewRedisIdempotencyStore(ctx, cfg.Redis)
		if err == nil {
			logger.Info("Using Redis idempotency store", zap.String("addr", cfg.Redis.Addr()))
			return store, nil
		}
		if cfg.App.IsProduction() {
			return nil, err
		}
		logger.Warn("Redis unavailable, falling back to in-memory idempotency store",
			zap.String("addr", cfg.Redis.Addr()),
			zap.Error(err),
		)
		return NewInMemoryIdempotencyStore(), nil
	default:
		return nil, fmt.Errorf("unknown idempotency backend %q", cfg.Idempotency.Backend)
	}
}
