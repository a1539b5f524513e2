package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/listenupapp/ledger-server/internal/ratelimit"
)

const (
	// DefaultBaseURL is the public exchangerate-api endpoint.
	DefaultBaseURL = "https://api.exchangerate-api.com/v4"

	defaultTimeout = 10 * time.Second
	defaultRetries = 2
	defaultBackoff = 500 * time.Millisecond
	maxBodyBytes   = 1 << 20
)

// Source errors.
var (
	ErrRateLimited = errors.New("rate source: rate limited")
	ErrServer      = errors.New("rate source: server error")
	ErrNoRates     = errors.New("rate source: response has no rates")
)

// Table is the set of rates quoted against one base currency on one day.
// Rates[X] is the number of X one unit of Base buys.
type Table struct {
	Base  string
	Date  string
	Rates map[string]decimal.Decimal
}

// Source fetches the latest rates for a base currency.
type Source interface {
	Latest(ctx context.Context, base string) (*Table, error)
}

// SourceConfig configures HTTPSource.
type SourceConfig struct {
	BaseURL           string
	Timeout           time.Duration
	Retries           int
	Backoff           time.Duration
	RequestsPerSecond float64
}

// HTTPSource reads rates from an exchangerate-api compatible endpoint:
// GET {BaseURL}/latest/{BASE}.
type HTTPSource struct {
	baseURL string
	host    string
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

// NewHTTPSource creates a rate-limited HTTP source.
func NewHTTPSource(cfg SourceConfig, logger *slog.Logger) (*HTTPSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid rate source url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}

	return &HTTPSource{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		host:    u.Host,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: ratelimit.New(cfg.RequestsPerSecond, 1),
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		logger:  logger,
	}, nil
}

type latestResponse struct {
	Base  string                 `json:"base"`
	Date  string                 `json:"date"`
	Rates map[string]json.Number `json:"rates"`
}

// Latest fetches the current table for base, retrying transient failures with
// exponential backoff.
func (s *HTTPSource) Latest(ctx context.Context, base string) (*Table, error) {
	base = strings.ToUpper(base)

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			delay := s.backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		table, err := s.fetch(ctx, base)
		if err == nil {
			return table, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
		s.logger.Debug("rate request failed, retrying", "base", base, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServer) || isNetErr(err)
}

type netError struct{ err error }

func (e *netError) Error() string { return e.err.Error() }
func (e *netError) Unwrap() error { return e.err }

func isNetErr(err error) bool {
	var ne *netError
	return errors.As(err, &ne)
}

func (s *HTTPSource) fetch(ctx context.Context, base string) (*Table, error) {
	if err := s.limiter.Wait(ctx, s.host); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint := s.baseURL + "/latest/" + url.PathEscape(base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ledger-server/1.0")

	s.logger.Debug("rate request", "base", base, "host", s.host)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &netError{err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &netError{err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, ErrServer
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw latestResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if len(raw.Rates) == 0 {
		return nil, ErrNoRates
	}

	table := &Table{Base: base, Date: raw.Date, Rates: make(map[string]decimal.Decimal, len(raw.Rates))}
	if raw.Base != "" {
		table.Base = strings.ToUpper(raw.Base)
	}
	for code, n := range raw.Rates {
		d, err := decimal.NewFromString(n.String())
		if err != nil || !d.IsPositive() {
			continue
		}
		table.Rates[strings.ToUpper(code)] = d
	}
	return table, nil
}
