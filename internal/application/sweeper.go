package application

import (
	"context"
	"time"

	"github.com/RaikyD/btc-content-shop/internal/logger"
)

const DefaultSweepInterval = time.Minute

type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Sweeper periodically expires unpaid orders that outlived the payment deadline.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
}

func NewSweeper(expirer Expirer, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{expirer: expirer, interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	logger.Info("sweeper started", "interval", s.interval)
	defer logger.Info("sweeper stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce runs one pass and reports how many orders it expired. It never panics.
func (s *Sweeper) SweepOnce(ctx context.Context) (n int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("sweep panicked", "panic", r)
		}
	}()

	n, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("sweep failed", "err", err)
		}
		return n
	}
	if n > 0 {
		logger.Info("sweep expired orders", "count", n)
	}
	return n
}
