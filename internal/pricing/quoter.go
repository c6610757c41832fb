package pricing

import (
	"context"
	"math/rand/v2"

	"github.com/RaikyD/btc-content-shop/internal/domain"
	"github.com/shopspring/decimal"
)

// BTCDecimals is the satoshi precision of every expected amount.
const BTCDecimals = 8

const (
	DefaultMinUnit = 1
	DefaultMaxUnit = 300
)

type RateSource interface {
	Rate(ctx context.Context) decimal.Decimal
}

// Quote is frozen into an order at creation and never recomputed.
type Quote struct {
	Base   decimal.Decimal
	Amount decimal.Decimal
	Unit   int
	Rate   decimal.Decimal
}

// SatoshiToBTC converts an integer satoshi count to BTC.
func SatoshiToBTC(sat int64) decimal.Decimal {
	return decimal.New(sat, -BTCDecimals)
}

// Quoter converts fiat prices into BTC amounts and adds a random satoshi increment
// so concurrent orders paying one address expect distinguishable totals. Two orders
// can still draw the same increment.
type Quoter struct {
	rates    RateSource
	min, max int
	intn     func(n int) int
}

type Option func(*Quoter)

func WithUnitRange(min, max int) Option {
	return func(q *Quoter) {
		if min >= 1 && max >= min {
			q.min, q.max = min, max
		}
	}
}

// WithRandom replaces the uniform source; intn must return a value in [0, n).
func WithRandom(intn func(n int) int) Option {
	return func(q *Quoter) { q.intn = intn }
}

func NewQuoter(rates RateSource, opts ...Option) *Quoter {
	q := &Quoter{
		rates: rates,
		min:   DefaultMinUnit,
		max:   DefaultMaxUnit,
		intn:  rand.IntN,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Quoter) Quote(ctx context.Context, fiat decimal.Decimal) (Quote, error) {
	if !fiat.IsPositive() {
		return Quote{}, domain.ErrInvalidAmount
	}

	rate := q.rates.Rate(ctx)
	// Truncated to whole satoshi so a payment of exactly the displayed amount satisfies >=.
	base := fiat.DivRound(rate, 2*BTCDecimals).Truncate(BTCDecimals)
	unit := q.min + q.intn(q.max-q.min+1)

	return Quote{
		Base:   base,
		Amount: base.Add(SatoshiToBTC(int64(unit))),
		Unit:   unit,
		Rate:   rate,
	}, nil
}
