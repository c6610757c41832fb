package payment

import (
	"context"

	"github.com/RaikyD/btc-content-shop/internal/logger"
	"github.com/RaikyD/btc-content-shop/internal/pricing"
	"github.com/shopspring/decimal"
)

type Ledger interface {
	// TotalReceived returns the cumulative satoshi ever received at address.
	TotalReceived(ctx context.Context, address string) (int64, error)
}

// Verification is the outcome of one ledger inspection.
type Verification struct {
	Paid     bool
	Observed decimal.Decimal

	// Unavailable is set when the ledger could not be read; Observed is then zero.
	Unavailable bool
}

// Verifier compares the cumulative amount received at the shared address with an
// order's expected amount. The balance includes every order's payments, so a paid
// result is a heuristic and not proof that this order was paid.
type Verifier struct {
	ledger Ledger
}

func NewVerifier(ledger Ledger) *Verifier {
	return &Verifier{ledger: ledger}
}

// Verify is read-only and never returns an error: an unreachable ledger reads as not paid.
func (v *Verifier) Verify(ctx context.Context, address string, expected decimal.Decimal) Verification {
	sat, err := v.ledger.TotalReceived(ctx, address)
	if err != nil {
		logger.Warn("payment check failed", "address", address, "err", err)
		return Verification{Observed: decimal.Zero, Unavailable: true}
	}

	observed := pricing.SatoshiToBTC(sat)
	res := Verification{
		Paid:     observed.GreaterThanOrEqual(expected),
		Observed: observed,
	}
	logger.Debug("payment checked",
		"address", address,
		"expected", expected.StringFixed(pricing.BTCDecimals),
		"observed", observed.StringFixed(pricing.BTCDecimals),
		"paid", res.Paid,
	)
	return res
}
