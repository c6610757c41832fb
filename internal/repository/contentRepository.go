package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RaikyD/btc-content-shop/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ContentRepository struct {
	db
}

func NewContentRepository(pool *pgxpool.Pool) *ContentRepository {
	return &ContentRepository{db{pool: pool}}
}

// Allocate claims one unused unit of the location pool and marks it used.
//
// The row is selected with FOR UPDATE SKIP LOCKED: concurrent allocators never pick
// the same unit and do not wait on units another transaction is claiming. When ctx
// carries a transaction the claim commits or rolls back with it. A nil unit with a
// nil error means the pool is exhausted.
func (r *ContentRepository) Allocate(ctx context.Context, locationID int64) (*domain.ContentUnit, error) {
	const pick = `
SELECT id, location_id, payload
FROM content_units
WHERE location_id = $1 AND NOT is_used
ORDER BY id
LIMIT 1
FOR UPDATE SKIP LOCKED`
	const claim = `UPDATE content_units SET is_used = TRUE, used_at = $2 WHERE id = $1`

	var unit *domain.ContentUnit
	err := r.WithTx(ctx, func(txCtx context.Context) error {
		var u domain.ContentUnit
		err := r.queryRow(txCtx, pick, locationID).Scan(&u.ID, &u.LocationID, &u.Payload)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("pick content unit: %w", err)
		}

		now := time.Now().UTC()
		if _, err := r.exec(txCtx, claim, u.ID, now); err != nil {
			return fmt.Errorf("claim content unit: %w", err)
		}
		u.IsUsed = true
		u.UsedAt = &now
		unit = &u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

func (r *ContentRepository) CountAvailable(ctx context.Context, locationID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM content_units WHERE location_id = $1 AND NOT is_used`

	var n int
	if err := r.queryRow(ctx, query, locationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count content units: %w", err)
	}
	return n, nil
}

func (r *ContentRepository) GetContent(ctx context.Context, id int64) (*domain.ContentUnit, error) {
	const query = `SELECT id, location_id, payload, is_used, used_at FROM content_units WHERE id = $1`

	var u domain.ContentUnit
	err := r.queryRow(ctx, query, id).Scan(&u.ID, &u.LocationID, &u.Payload, &u.IsUsed, &u.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get content unit: %w", err)
	}
	return &u, nil
}

// AddContent loads payloads into a location pool in one batch and returns their ids.
func (r *ContentRepository) AddContent(ctx context.Context, locationID int64, payloads []string) ([]int64, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	var ids []int64
	err := r.WithTx(ctx, func(txCtx context.Context) error {
		tx := txFromContext(txCtx)
		batch := &pgx.Batch{}
		for _, p := range payloads {
			batch.Queue(`INSERT INTO content_units (location_id, payload) VALUES ($1, $2) RETURNING id`, locationID, p)
		}

		br := tx.SendBatch(txCtx, batch)
		for range payloads {
			var id int64
			if err := br.QueryRow().Scan(&id); err != nil {
				_ = br.Close()
				if isForeignKeyViolation(err) {
					return domain.ErrLocationNotFound
				}
				return fmt.Errorf("insert content unit: %w", err)
			}
			ids = append(ids, id)
		}
		return br.Close()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
