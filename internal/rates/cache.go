package rates

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/RaikyD/btc-content-shop/internal/clock"
	"github.com/RaikyD/btc-content-shop/internal/domain"
	"github.com/RaikyD/btc-content-shop/internal/logger"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultFreshness = 300 * time.Second
	defaultTimeout   = 10 * time.Second
)

// DefaultFallback is served until the first successful fetch.
var DefaultFallback = decimal.NewFromInt(3_000_000)

type Fetcher interface {
	Ticker(ctx context.Context, currency string) (decimal.Decimal, error)
}

// SnapshotStore persists successful fetches so a restart does not fall back to the default rate.
type SnapshotStore interface {
	SaveRateSnapshot(ctx context.Context, snap domain.RateSnapshot) error
	LatestRateSnapshot(ctx context.Context, currency string) (*domain.RateSnapshot, error)
}

// Cache holds the process-wide exchange rate. Readers never lock; refreshes are coalesced
// and the last successful fetch wins.
type Cache struct {
	fetcher   Fetcher
	store     SnapshotStore
	clock     clock.Clock
	currency  string
	freshness time.Duration
	fallback  decimal.Decimal
	timeout   time.Duration

	current atomic.Pointer[domain.RateSnapshot]
	group   singleflight.Group
}

type Option func(*Cache)

func WithStore(s SnapshotStore) Option {
	return func(c *Cache) { c.store = s }
}

func WithClock(clk clock.Clock) Option {
	return func(c *Cache) { c.clock = clk }
}

func WithFreshness(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.freshness = d
		}
	}
}

func WithFallback(rate decimal.Decimal) Option {
	return func(c *Cache) {
		if rate.IsPositive() {
			c.fallback = rate
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewCache(fetcher Fetcher, currency string, opts ...Option) *Cache {
	c := &Cache{
		fetcher:   fetcher,
		clock:     clock.NewSystem(),
		currency:  currency,
		freshness: DefaultFreshness,
		fallback:  DefaultFallback,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rate returns a usable rate; it never fails.
func (c *Cache) Rate(ctx context.Context) decimal.Decimal {
	return c.Snapshot(ctx).Rate
}

func (c *Cache) Snapshot(ctx context.Context) domain.RateSnapshot {
	if snap := c.current.Load(); snap != nil && c.fresh(snap) {
		return *snap
	}

	v, _, _ := c.group.Do(c.currency, func() (interface{}, error) {
		return c.refresh(ctx), nil
	})
	return v.(domain.RateSnapshot)
}

// Restore seeds the cache from the last persisted snapshot without overriding a live one.
func (c *Cache) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	snap, err := c.store.LatestRateSnapshot(ctx, c.currency)
	if err != nil {
		return err
	}
	if snap == nil || !snap.Rate.IsPositive() {
		return nil
	}
	if c.current.CompareAndSwap(nil, snap) {
		logger.Info("rate restored", "rate", snap.Rate.String(), "fetched_at", snap.FetchedAt)
	}
	return nil
}

func (c *Cache) fresh(snap *domain.RateSnapshot) bool {
	return c.clock.Now().Sub(snap.FetchedAt) < c.freshness
}

func (c *Cache) refresh(ctx context.Context) domain.RateSnapshot {
	// Shared by every caller waiting on this flight, so one caller's cancellation must not fail the rest.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	rate, err := c.fetcher.Ticker(fetchCtx, c.currency)
	if err == nil && !rate.IsPositive() {
		err = domain.ErrInvalidAmount
	}
	if err != nil {
		if prev := c.current.Load(); prev != nil {
			logger.Warn("rate refresh failed, serving previous snapshot", "err", err, "rate", prev.Rate.String())
			return *prev
		}
		logger.Error("rate refresh failed, serving fallback", "err", err, "fallback", c.fallback.String())
		return domain.RateSnapshot{Rate: c.fallback, Currency: c.currency, Fallback: true}
	}

	snap := &domain.RateSnapshot{Rate: rate, Currency: c.currency, FetchedAt: c.clock.Now()}
	c.current.Store(snap)
	logger.Info("rate updated", "rate", rate.String(), "currency", c.currency)

	if c.store != nil {
		if err := c.store.SaveRateSnapshot(fetchCtx, *snap); err != nil {
			logger.Warn("persist rate snapshot failed", "err", err)
		}
	}
	return *snap
}
