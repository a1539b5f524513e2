package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/ledger-server/internal/config"
	"github.com/listenupapp/ledger-server/internal/currency"
	"github.com/listenupapp/ledger-server/internal/logger"
)

// RateCacheHandle wraps the rate cache with shutdown capability. Cache is nil when
// the cache directory could not be opened.
type RateCacheHandle struct {
	Cache *currency.RateCache
}

// Shutdown implements do.Shutdownable.
func (h *RateCacheHandle) Shutdown() error {
	if h.Cache == nil {
		return nil
	}
	return h.Cache.Close()
}

// ProvideRateCache provides the badger rate cache. Badger locks its directory, so a
// second process runs without a cache instead of failing.
func ProvideRateCache(i do.Injector) (*RateCacheHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	path := cfg.Storage.RateCachePath()
	cache, err := currency.OpenRateCache(path, cfg.Currency.CacheTTL, log.Logger)
	if err != nil {
		log.Warn("Rate cache unavailable, continuing without it", "path", path, "error", err)
		return &RateCacheHandle{}, nil
	}
	return &RateCacheHandle{Cache: cache}, nil
}

// ProvideCurrencyService provides the currency conversion service.
func ProvideCurrencyService(i do.Injector) (*currency.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	cacheHandle := do.MustInvoke[*RateCacheHandle](i)

	var source currency.Source
	if !cfg.Currency.Offline {
		httpSource, err := currency.NewHTTPSource(currency.SourceConfig{
			BaseURL:           cfg.Currency.BaseURL,
			Timeout:           cfg.Currency.Timeout,
			RequestsPerSecond: cfg.Currency.RequestsPerSecond,
		}, log.Logger)
		if err != nil {
			return nil, err
		}
		source = httpSource
	}

	log.Debug("Currency service ready",
		"offline", cfg.Currency.Offline,
		"base_url", cfg.Currency.BaseURL,
		"cached", cacheHandle.Cache != nil,
	)

	return currency.NewService(source, cacheHandle.Cache, log.Logger), nil
}
