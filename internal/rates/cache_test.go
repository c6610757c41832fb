package rates

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RaikyD/btc-content-shop/internal/clock"
	"github.com/RaikyD/btc-content-shop/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu    sync.Mutex
	rates []decimal.Decimal
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (f *fakeFetcher) Ticker(ctx context.Context, _ string) (decimal.Decimal, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return decimal.Zero, f.err
	}
	r := f.rates[0]
	if len(f.rates) > 1 {
		f.rates = f.rates[1:]
	}
	return r, nil
}

func (f *fakeFetcher) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type memStore struct {
	mu    sync.Mutex
	saved []domain.RateSnapshot
}

func (m *memStore) SaveRateSnapshot(_ context.Context, snap domain.RateSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memStore) LatestRateSnapshot(_ context.Context, _ string) (*domain.RateSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil, nil
	}
	s := m.saved[len(m.saved)-1]
	return &s, nil
}

var t0 = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func TestCache_FallbackWhenNeverFetched(t *testing.T) {
	f := &fakeFetcher{err: errors.New("ticker down")}
	c := NewCache(f, "RUB", WithClock(clock.NewManual(t0)))

	snap := c.Snapshot(context.Background())
	assert.True(t, snap.Fallback)
	assert.True(t, snap.Rate.Equal(decimal.NewFromInt(3_000_000)))
	assert.True(t, c.Rate(context.Background()).IsPositive())
}

func TestCache_ServesFreshSnapshotWithoutRefetch(t *testing.T) {
	f := &fakeFetcher{rates: []decimal.Decimal{decimal.NewFromInt(3_100_000), decimal.NewFromInt(3_200_000)}}
	clk := clock.NewManual(t0)
	c := NewCache(f, "RUB", WithClock(clk))

	assert.Equal(t, "3100000", c.Rate(context.Background()).String())
	clk.Advance(299 * time.Second)
	assert.Equal(t, "3100000", c.Rate(context.Background()).String())
	assert.Equal(t, int32(1), f.calls.Load())

	clk.Advance(2 * time.Second)
	assert.Equal(t, "3200000", c.Rate(context.Background()).String())
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestCache_KeepsPreviousSnapshotOnFailure(t *testing.T) {
	f := &fakeFetcher{rates: []decimal.Decimal{decimal.NewFromInt(3_100_000)}}
	clk := clock.NewManual(t0)
	c := NewCache(f, "RUB", WithClock(clk))

	first := c.Snapshot(context.Background())
	require.False(t, first.Fallback)

	f.fail(errors.New("timeout"))
	clk.Advance(10 * time.Minute)

	snap := c.Snapshot(context.Background())
	assert.Equal(t, "3100000", snap.Rate.String())
	assert.Equal(t, first.FetchedAt, snap.FetchedAt)
	assert.False(t, snap.Fallback)
}

func TestCache_RejectsNonPositiveRate(t *testing.T) {
	f := &fakeFetcher{rates: []decimal.Decimal{decimal.Zero}}
	c := NewCache(f, "RUB", WithClock(clock.NewManual(t0)), WithFallback(decimal.NewFromInt(42)))

	assert.Equal(t, "42", c.Rate(context.Background()).String())
}

func TestCache_CoalescesConcurrentRefreshes(t *testing.T) {
	f := &fakeFetcher{rates: []decimal.Decimal{decimal.NewFromInt(3_000_000)}, delay: 50 * time.Millisecond}
	c := NewCache(f, "RUB", WithClock(clock.NewManual(t0)))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "3000000", c.Rate(context.Background()).String())
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, f.calls.Load(), int32(2))
}

func TestCache_PersistsAndRestores(t *testing.T) {
	store := &memStore{}
	f := &fakeFetcher{rates: []decimal.Decimal{decimal.NewFromInt(3_300_000)}}
	clk := clock.NewManual(t0)

	c := NewCache(f, "RUB", WithClock(clk), WithStore(store))
	c.Rate(context.Background())
	require.Len(t, store.saved, 1)

	down := &fakeFetcher{err: errors.New("down")}
	restarted := NewCache(down, "RUB", WithClock(clk), WithStore(store))
	require.NoError(t, restarted.Restore(context.Background()))

	assert.Equal(t, "3300000", restarted.Rate(context.Background()).String())
	assert.Equal(t, int32(0), down.calls.Load())
}
