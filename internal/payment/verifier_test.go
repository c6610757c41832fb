package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RaikyD/btc-content-shop/internal/oracle"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledgerFunc func(ctx context.Context, address string) (int64, error)

func (f ledgerFunc) TotalReceived(ctx context.Context, address string) (int64, error) {
	return f(ctx, address)
}

func TestVerifier_ScenarioExactAmountIsPaid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"address":"bc1qshop","total_received":100103}`))
	}))
	defer srv.Close()

	v := NewVerifier(oracle.NewClient(oracle.Config{BaseURL: srv.URL}))
	expected := decimal.RequireFromString("0.00100103")

	res := v.Verify(context.Background(), "bc1qshop", expected)
	assert.True(t, res.Paid)
	assert.Equal(t, "0.00100103", res.Observed.StringFixed(8))
}

func TestVerifier_Underpaid(t *testing.T) {
	v := NewVerifier(ledgerFunc(func(context.Context, string) (int64, error) {
		return 100102, nil
	}))

	res := v.Verify(context.Background(), "bc1qshop", decimal.RequireFromString("0.00100103"))
	assert.False(t, res.Paid)
	assert.False(t, res.Unavailable)
	assert.Equal(t, "0.00100102", res.Observed.StringFixed(8))
}

func TestVerifier_OracleFailureReadsAsUnpaid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	v := NewVerifier(oracle.NewClient(oracle.Config{BaseURL: srv.URL}))

	res := v.Verify(context.Background(), "bc1qshop", decimal.RequireFromString("0.001"))
	assert.False(t, res.Paid)
	assert.True(t, res.Unavailable)
	assert.True(t, res.Observed.IsZero())
}

func TestVerifier_Idempotent(t *testing.T) {
	calls := 0
	v := NewVerifier(ledgerFunc(func(context.Context, string) (int64, error) {
		calls++
		return 50_000, nil
	}))
	expected := decimal.RequireFromString("0.00100103")

	first := v.Verify(context.Background(), "bc1qshop", expected)
	second := v.Verify(context.Background(), "bc1qshop", expected)

	require.Equal(t, 2, calls)
	assert.Equal(t, first.Paid, second.Paid)
	assert.True(t, first.Observed.Equal(second.Observed))
}
