// Package currency converts monetary amounts between currencies. Rates resolve in
// order: identical codes, the Badger cache, the live source, then a static table.
// Conversion never fails an import; a missing rate is reported as not ok.
package currency

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/listenupapp/ledger-server/internal/errors"
)

// USD is the settlement currency.
const USD = "USD"

// Quote sources.
const (
	SourceIdentity = "identity"
	SourceLive     = "live"
	SourceFallback = "fallback"
)

const (
	defaultCooldown = time.Minute
	defaultMemoTTL  = time.Hour
)

// Converter is what aggregation needs from the service.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, bool)
}

// Service resolves exchange rates. Source and cache are both optional.
type Service struct {
	source Source
	cache  *RateCache
	logger *slog.Logger
	now    func() time.Time

	// A failed live lookup pauses the source for cooldown so a row loop does not
	// wait on an unreachable provider for every row.
	mu        sync.Mutex
	downUntil time.Time
	cooldown  time.Duration

	// Tables fetched from the source, keyed by base, so lookups without a
	// working cache hit the source at most once per base per memoTTL.
	memo    map[string]memoTable
	memoTTL time.Duration
}

type memoTable struct {
	quotes  map[string]Quote
	fetched time.Time
}

// NewService creates a conversion service.
func NewService(source Source, cache *RateCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:   source,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
		cooldown: defaultCooldown,
		memo:     make(map[string]memoTable),
		memoTTL:  defaultMemoTTL,
	}
}

// Quote resolves the rate converting one unit of from into to.
func (s *Service) Quote(ctx context.Context, from, to string) (Quote, bool) {
	from, to = normalizeCode(from), normalizeCode(to)
	if from == "" || to == "" {
		return Quote{}, false
	}
	if from == to {
		return Quote{Rate: decimal.NewFromInt(1), Source: SourceIdentity}, true
	}

	if s.cache != nil {
		q, ok, err := s.cache.Get(from, to)
		if err != nil {
			s.logger.Warn("rate cache read failed", "from", from, "to", to, "error", err)
		} else if ok {
			return q, true
		}
	}

	if q, ok := s.live(ctx, from, to); ok {
		return q, true
	}

	if rate, ok := FallbackRate(from, to); ok {
		return Quote{Rate: rate, Source: SourceFallback}, true
	}
	return Quote{}, false
}

// GetRate returns the rate converting one unit of from into to.
func (s *Service) GetRate(ctx context.Context, from, to string) (decimal.Decimal, bool) {
	q, ok := s.Quote(ctx, from, to)
	if !ok {
		return decimal.Zero, false
	}
	return q.Rate, true
}

// Convert converts amount from one currency to another. Without a rate it returns
// zero and false.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, bool) {
	rate, ok := s.GetRate(ctx, from, to)
	if !ok {
		return decimal.Zero, false
	}
	return amount.Mul(rate), true
}

// ConvertToUSD converts amount into USD.
func (s *Service) ConvertToUSD(ctx context.Context, amount decimal.Decimal, from string) (decimal.Decimal, bool) {
	return s.Convert(ctx, amount, from, USD)
}

func (s *Service) live(ctx context.Context, from, to string) (Quote, bool) {
	if s.source == nil {
		return Quote{}, false
	}
	if quotes, ok := s.remembered(from); ok {
		q, ok := quotes[to]
		return q, ok
	}
	if s.paused() {
		return Quote{}, false
	}

	table, err := s.source.Latest(ctx, from)
	if err != nil {
		s.pause()
		s.logger.Warn("live rate lookup failed, using fallback rates",
			"base", from,
			"error", err,
			"retry_after", s.cooldown,
		)
		return Quote{}, false
	}

	quotes := s.store(table)
	q, ok := quotes[to]
	return q, ok
}

func (s *Service) paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.downUntil)
}

func (s *Service) pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downUntil = s.now().Add(s.cooldown)
}

func (s *Service) remembered(base string) (map[string]Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memo[base]
	if !ok || s.now().Sub(m.fetched) >= s.memoTTL {
		return nil, false
	}
	return m.quotes, true
}

// store caches a fetched table and returns it as quotes keyed by target currency.
func (s *Service) store(table *Table) map[string]Quote {
	quotes := make(map[string]Quote, len(table.Rates))
	for code, rate := range table.Rates {
		quotes[code] = Quote{Rate: rate, Date: table.Date, Source: SourceLive}
	}

	s.mu.Lock()
	s.memo[normalizeCode(table.Base)] = memoTable{quotes: quotes, fetched: s.now()}
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Put(table.Base, quotes); err != nil {
			s.logger.Warn("rate cache write failed", "base", table.Base, "error", err)
		}
	}
	return quotes
}

// Refresh fetches the latest table for base and warms the cache. It returns the
// number of quotes stored.
func (s *Service) Refresh(ctx context.Context, base string) (int, error) {
	if s.source == nil {
		return 0, &errors.Error{Code: errors.CodeUnavailable, Message: "no live rate source configured"}
	}
	base = normalizeCode(base)

	table, err := s.source.Latest(ctx, base)
	if err != nil {
		return 0, errors.Wrapf(err, errors.CodeUnavailable, "refresh %s rates", base)
	}
	n := len(s.store(table))

	s.mu.Lock()
	s.downUntil = time.Time{}
	s.mu.Unlock()

	s.logger.Info("exchange rates refreshed", "base", base, "count", n, "date", table.Date)
	return n, nil
}

// RunRefresher refreshes base immediately and then every interval until ctx is
// done. Failures are logged and retried on the next tick.
func (s *Service) RunRefresher(ctx context.Context, base string, interval time.Duration) {
	if s.source == nil || interval <= 0 {
		return
	}

	refresh := func() {
		if _, err := s.Refresh(ctx, base); err != nil && ctx.Err() == nil {
			s.logger.Warn("scheduled rate refresh failed", "base", base, "error", err)
		}
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
