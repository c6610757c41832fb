package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/RaikyD/btc-content-shop/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RateRepository struct {
	db
}

func NewRateRepository(pool *pgxpool.Pool) *RateRepository {
	return &RateRepository{db{pool: pool}}
}

func (r *RateRepository) SaveRateSnapshot(ctx context.Context, snap domain.RateSnapshot) error {
	const stmt = `INSERT INTO rate_snapshots (currency, rate, fetched_at) VALUES ($1, $2, $3)`

	if _, err := r.exec(ctx, stmt, snap.Currency, snap.Rate, snap.FetchedAt); err != nil {
		return fmt.Errorf("save rate snapshot: %w", err)
	}
	return nil
}

// LatestRateSnapshot returns nil when nothing was ever stored for currency.
func (r *RateRepository) LatestRateSnapshot(ctx context.Context, currency string) (*domain.RateSnapshot, error) {
	const query = `
SELECT currency, rate, fetched_at
FROM rate_snapshots
WHERE currency = $1
ORDER BY fetched_at DESC
LIMIT 1`

	var s domain.RateSnapshot
	err := r.queryRow(ctx, query, currency).Scan(&s.Currency, &s.Rate, &s.FetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest rate snapshot: %w", err)
	}
	return &s, nil
}
