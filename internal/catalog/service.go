package catalog

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-shop/internal/obs"
)

// Service serves catalog listings with a read-through cache. Checkout pricing
// goes to the Store directly and never sees cached prices.
type Service struct {
	store  Store
	cache  *Cache
	logger zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store  Store
	Cache  *Cache
	Logger zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	return &Service{store: cfg.Store, cache: cfg.Cache, logger: cfg.Logger}, nil
}

// List returns all items of kind.
func (s *Service) List(ctx context.Context, kind Kind) ([]Item, error) {
	if !kind.Valid() {
		return nil, ErrNotFound
	}
	key := "list:" + string(kind)
	var cached []Item
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
	}
	if hit {
		obs.IncCounter(obs.CatalogCacheTotal, string(kind), "hit")
		return cached, nil
	}
	obs.IncCounter(obs.CatalogCacheTotal, string(kind), "miss")

	items, err := s.store.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, key, items); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
	}
	return items, nil
}
