package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// PriceService answers fiat price questions by layering the Redis price
// cache over the external oracle. Cache hits never touch the upstream API;
// misses fetch, backfill the cache, and return.
type PriceService struct {
	cache  domain.PriceCache
	source domain.PriceSource
	fiat   string
	logger *slog.Logger

	now func() time.Time
}

// NewPriceService creates a PriceService quoting in the given fiat currency.
func NewPriceService(cache domain.PriceCache, source domain.PriceSource, fiat string, logger *slog.Logger) *PriceService {
	return &PriceService{
		cache:  cache,
		source: source,
		fiat:   fiat,
		logger: logger.With(slog.String("component", "pricing")),
		now:    time.Now,
	}
}

// Fiat returns the configured quote currency.
func (s *PriceService) Fiat() string {
	return s.fiat
}

// GetPrice returns the fiat price of one unit of asset, cache-first.
func (s *PriceService) GetPrice(ctx context.Context, asset string) (float64, error) {
	price, _, err := s.cache.GetPrice(ctx, asset, s.fiat)
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		// A broken cache degrades to oracle-only, it does not take pricing
		// down.
		s.logger.WarnContext(ctx, "price cache read failed",
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
	}

	price, err = s.source.GetPrice(ctx, asset, s.fiat)
	if err != nil {
		return 0, fmt.Errorf("price_service: get price for %q: %w", asset, err)
	}

	if cacheErr := s.cache.SetPrice(ctx, asset, s.fiat, price, s.now().UTC()); cacheErr != nil {
		s.logger.WarnContext(ctx, "price cache write failed",
			slog.String("asset", asset),
			slog.String("error", cacheErr.Error()),
		)
	}

	return price, nil
}

// ConvertToFiat values amount of asset in the configured fiat currency.
func (s *PriceService) ConvertToFiat(ctx context.Context, asset string, amount float64) (float64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("price_service: convert %v %s: %w", amount, asset, domain.ErrInvalidAmount)
	}
	price, err := s.GetPrice(ctx, asset)
	if err != nil {
		return 0, err
	}
	return amount * price, nil
}

// CrossRate returns how many units of the to asset one unit of the from
// asset buys, derived from the two fiat prices. No mutation happens here, so
// an unavailable price aborts a swap before any balance moves.
func (s *PriceService) CrossRate(ctx context.Context, from, to string) (float64, error) {
	fromPrice, err := s.GetPrice(ctx, from)
	if err != nil {
		return 0, err
	}
	toPrice, err := s.GetPrice(ctx, to)
	if err != nil {
		return 0, err
	}
	if toPrice <= 0 {
		return 0, fmt.Errorf("price_service: cross rate %s->%s: %w", from, to, domain.ErrPriceUnavailable)
	}
	return fromPrice / toPrice, nil
}
