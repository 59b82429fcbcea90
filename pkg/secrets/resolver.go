package secrets

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Resolver turns named secrets into typed values, caching results locally.
// It is generic over T so callers decide how a secret map is interpreted.
type Resolver[T any] struct {
	logger   *zap.Logger
	provider Provider
	cache    *Cache[T]
}

// NewResolver constructs a caching resolver on top of provider.
func NewResolver[T any](logger *zap.Logger, provider Provider, cache *Cache[T]) *Resolver[T] {
	return &Resolver[T]{
		logger:   logger,
		provider: provider,
		cache:    cache,
	}
}

// Resolve fetches or returns the cached T for secretID.
// parse extracts T from the raw secret map; it should validate required fields.
func (r *Resolver[T]) Resolve(ctx context.Context, secretID string, parse func(map[string]string) (T, error)) (T, error) {
	if v, ok := r.cache.Get(secretID); ok {
		return v, nil
	}

	raw, err := r.provider.GetSecret(ctx, secretID)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed",
			zap.String("key", secretID),
			zap.Error(err))
		var zero T
		return zero, fmt.Errorf("resolve secret %q: %w", secretID, err)
	}

	v, err := parse(raw)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("parse secret %q: %w", secretID, err)
	}

	r.cache.Put(secretID, v)
	r.logger.Debug("secrets.resolved", zap.String("key", secretID))
	return v, nil
}
