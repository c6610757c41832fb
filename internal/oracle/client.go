package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// ErrUnavailable wraps every failure to reach or parse the ledger oracle.
var ErrUnavailable = errors.New("ledger oracle unavailable")

const DefaultBaseURL = "https://blockchain.info"

// Config configures the ledger oracle client.
type Config struct {
	// BaseURL of a blockchain.info compatible API.
	BaseURL string

	// HTTPClient is optional; one with Timeout is built when nil.
	HTTPClient *http.Client

	// Timeout per request, defaults to 10s.
	Timeout time.Duration

	// FailureThreshold consecutive failures open the breaker, defaults to 5.
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open, defaults to 30s.
	OpenTimeout time.Duration
}

// Client is a read-only view of the public ledger: exchange rates and address totals.
// Calls are never retried here; callers report failure and let their caller retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "ledger-oracle",
			Timeout: openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		}),
	}
}

type tickerEntry struct {
	Last   decimal.Decimal `json:"last"`
	Symbol string          `json:"symbol"`
}

// Ticker returns the last BTC price in the given fiat currency code.
func (c *Client) Ticker(ctx context.Context, currency string) (decimal.Decimal, error) {
	var ticker map[string]tickerEntry
	if err := c.getJSON(ctx, "/ticker", &ticker); err != nil {
		return decimal.Zero, err
	}

	entry, ok := ticker[strings.ToUpper(currency)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: currency %s missing from ticker", ErrUnavailable, currency)
	}
	if !entry.Last.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive rate %s", ErrUnavailable, entry.Last)
	}
	return entry.Last, nil
}

type rawAddress struct {
	Address       string `json:"address"`
	TotalReceived *int64 `json:"total_received"`
}

// TotalReceived returns the cumulative amount in satoshi ever received at address.
func (c *Client) TotalReceived(ctx context.Context, address string) (int64, error) {
	var raw rawAddress
	path := "/rawaddr/" + url.PathEscape(address) + "?limit=0"
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return 0, err
	}
	if raw.TotalReceived == nil {
		return 0, fmt.Errorf("%w: total_received missing", ErrUnavailable)
	}
	return *raw.TotalReceived, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
