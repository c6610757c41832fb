package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type Product struct {
	ID          int64           `json:"id"`
	CategoryID  int64           `json:"category_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	PriceFiat   decimal.Decimal `json:"price_fiat"`
	IsActive    bool            `json:"is_active"`
}

// Location owns a pool of single-use content units.
type Location struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// ContentUnit is one deliverable of a location pool. IsUsed never reverts.
type ContentUnit struct {
	ID         int64      `json:"id"`
	LocationID int64      `json:"location_id"`
	Payload    string     `json:"payload"`
	IsUsed     bool       `json:"is_used"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
}

type RateSnapshot struct {
	Rate      decimal.Decimal `json:"rate"`
	Currency  string          `json:"currency"`
	FetchedAt time.Time       `json:"fetched_at"`
	// Fallback is set when no successful fetch has happened yet.
	Fallback bool `json:"fallback"`
}
