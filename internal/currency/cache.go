package currency

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/shopspring/decimal"
)

const rateKeyPrefix = "rate:"

// Quote is one cached conversion rate.
type Quote struct {
	Rate   decimal.Decimal `json:"rate"`
	Date   string          `json:"date,omitempty"`
	Source string          `json:"source"`
}

// RateCache keeps fetched quotes in Badger, each expiring after the cache TTL.
type RateCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// OpenRateCache opens the cache at path. An empty path opens an in-memory cache.
func OpenRateCache(path string, ttl time.Duration, logger *slog.Logger) (*RateCache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts.CompactL0OnClose = true
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open rate cache: %w", err)
	}

	logger.Debug("rate cache opened", "path", path, "ttl", ttl)
	return &RateCache{db: db, ttl: ttl, logger: logger}, nil
}

// Close closes the underlying database.
func (c *RateCache) Close() error {
	return c.db.Close()
}

func rateKey(from, to string) []byte {
	return []byte(rateKeyPrefix + from + ":" + to)
}

// Get returns the cached quote for from→to. ok is false on a miss or expiry.
func (c *RateCache) Get(from, to string) (q Quote, ok bool, err error) {
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(rateKey(from, to))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &q)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Quote{}, false, nil
	}
	if err != nil {
		return Quote{}, false, fmt.Errorf("read rate %s→%s: %w", from, to, err)
	}
	return q, true, nil
}

// Put stores quotes from base into every currency in the map.
func (c *RateCache) Put(base string, quotes map[string]Quote) error {
	return c.db.Update(func(txn *badger.Txn) error {
		for to, q := range quotes {
			data, err := json.Marshal(q)
			if err != nil {
				return fmt.Errorf("marshal rate %s→%s: %w", base, to, err)
			}
			entry := badger.NewEntry(rateKey(base, to), data)
			if c.ttl > 0 {
				entry = entry.WithTTL(c.ttl)
			}
			if err := txn.SetEntry(entry); err != nil {
				return err
			}
		}
		return nil
	})
}
