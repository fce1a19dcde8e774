package credential

import (
	"context"
	"fmt"

	"github.com/campus/portal/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewFromConfig creates the store selected by session.store.
// The returned close function releases any connection held by the store.
func NewFromConfig(ctx context.Context, session config.SessionConfig, redisCfg config.RedisConfig, logger *zap.Logger) (Store, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	noop := func() error { return nil }

	switch session.Store {
	case "memory":
		logger.Debug("Using in-memory credential store")
		return NewMemoryStore(), noop, nil

	case "file", "":
		store, err := NewFileStore(session.FilePath, WithPassphrase(session.EncryptionKey))
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("Using file credential store",
			zap.String("path", store.Path()),
			zap.Bool("encrypted", session.EncryptionKey != ""),
		)
		return store, noop, nil

	case "redis":
		store, err := NewRedisStore(ctx, RedisConfig{
			Addr:      redisCfg.RedisAddr(),
			Password:  redisCfg.Password,
			DB:        redisCfg.DB,
			KeyPrefix: redisCfg.KeyPrefix,
			TTL:       session.TTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Redis credential store: %w", err)
		}
		logger.Debug("Using Redis credential store", zap.String("addr", redisCfg.RedisAddr()))
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported credential store: %s", session.Store)
	}
}
