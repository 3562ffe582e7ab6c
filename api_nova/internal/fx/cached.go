package fx

import (
	"context"
	"slices"
	"time"

	"econova/pkg/cache"
	"econova/pkg/logging"
	"econova/pkg/nova/tenant"
	"econova/pkg/redis"
)

const latestKey = "latest"

// CachedSource fronts an upstream rate source with an in-process
// stale-while-revalidate cache and an optional Redis tier shared between
// replicas. Redis failures fall through to the upstream.
type CachedSource struct {
	upstream tenant.ExchangeRateSource
	local    *cache.Cache[[]tenant.ExchangeRate]
	shared   *redis.TypedStore[[]tenant.ExchangeRate]
	ttl      time.Duration
	logger   logging.Logger
}

type CacheConfig struct {
	TTL time.Duration
	// Shared is optional.
	Shared *redis.TypedStore[[]tenant.ExchangeRate]
	Logger logging.Logger
}

func NewCachedSource(upstream tenant.ExchangeRateSource, cfg CacheConfig) *CachedSource {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &CachedSource{
		upstream: upstream,
		local: cache.New[[]tenant.ExchangeRate](cache.Options{
			TTL:                  ttl,
			StaleWhileRevalidate: ttl,
			NegativeTTL:          30 * time.Second,
			MaxEntries:           4,
		}, cache.PrometheusHooks("fx")),
		shared: cfg.Shared,
		ttl:    ttl,
		logger: logger,
	}
}

// Latest returns a copy so callers may filter or modify the slice.
func (s *CachedSource) Latest(ctx context.Context) ([]tenant.ExchangeRate, error) {
	rates, ok, err := s.local.Get(ctx, latestKey, s.load)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoRates
	}
	return slices.Clone(rates), nil
}

func (s *CachedSource) load(ctx context.Context, key string) ([]tenant.ExchangeRate, bool, error) {
	if s.shared != nil {
		rates, ok, err := s.shared.Get(ctx, key)
		if err != nil {
			s.logger.WithError(err).Warn("Shared FX cache read failed")
		} else if ok && len(rates) > 0 {
			return rates, true, nil
		}
	}

	rates, err := s.upstream.Latest(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(rates) == 0 {
		return nil, false, ErrNoRates
	}

	if s.shared != nil {
		if err := s.shared.Set(ctx, key, rates, s.ttl); err != nil {
			s.logger.WithError(err).Warn("Shared FX cache write failed")
		}
	}
	return rates, true, nil
}
