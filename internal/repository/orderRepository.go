package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RaikyD/btc-content-shop/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type OrderRepository struct {
	db
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db{pool: pool}}
}

const orderColumns = `id, customer_id, product_id, location_id, price_fiat, expected_amount,
	disambiguation_unit, rate, status, allocated_content_id, observed_amount, paid_at, created_at, updated_at`

func (r *OrderRepository) CreateOrder(ctx context.Context, o *domain.Order) error {
	const stmt = `
INSERT INTO orders (` + orderColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.exec(ctx, stmt,
		o.ID,
		o.CustomerID,
		o.ProductID,
		o.LocationID,
		o.PriceFiat,
		o.ExpectedAmount,
		o.DisambiguationUnit,
		o.Rate,
		string(o.Status),
		o.AllocatedContentID,
		o.ObservedAmount,
		o.PaidAt,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetOrderForUpdate locks the order row until the surrounding transaction ends.
func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *OrderRepository) ListCustomerOrders(ctx context.Context, customerID int64, limit int) ([]domain.Order, error) {
	const query = `SELECT ` + orderColumns + `
FROM orders
WHERE customer_id = $1
ORDER BY created_at DESC
LIMIT $2`

	rows, err := r.query(ctx, query, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list customer orders: %w", err)
	}
	return collectOrders(rows)
}

// ListStaleAwaiting returns unpaid orders created before cutoff, oldest first.
func (r *OrderRepository) ListStaleAwaiting(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	const query = `SELECT ` + orderColumns + `
FROM orders
WHERE status = 'awaiting_payment' AND created_at < $1
ORDER BY created_at
LIMIT $2`

	rows, err := r.query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale orders: %w", err)
	}
	return collectOrders(rows)
}

// ExpireIfAwaiting moves the order to expired only while it is still awaiting payment
// and was created before cutoff. It reports whether this call made the transition.
func (r *OrderRepository) ExpireIfAwaiting(ctx context.Context, id uuid.UUID, cutoff, now time.Time) (bool, error) {
	const stmt = `
UPDATE orders
SET status = 'expired', updated_at = $3
WHERE id = $1 AND status = 'awaiting_payment' AND created_at < $2`

	tag, err := r.exec(ctx, stmt, id, cutoff, now)
	if err != nil {
		return false, fmt.Errorf("expire order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPaid records the verification result and the status reached after allocation.
// The status guard keeps a concurrent sweep or a second check from being overwritten.
func (r *OrderRepository) MarkPaid(ctx context.Context, id uuid.UUID, status domain.OrderStatus, contentID *int64, observed decimal.Decimal, at time.Time) error {
	const stmt = `
UPDATE orders
SET status = $2, allocated_content_id = $3, observed_amount = $4, paid_at = $5, updated_at = $5
WHERE id = $1 AND status = 'awaiting_payment'`

	tag, err := r.exec(ctx, stmt, id, string(status), contentID, observed, at)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("content unit already issued to another order: %w", err)
		}
		return fmt.Errorf("mark order paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *OrderRepository) MarkRefunded(ctx context.Context, id uuid.UUID, at time.Time) error {
	const stmt = `
UPDATE orders
SET status = 'refunded', updated_at = $2
WHERE id = $1 AND status = 'paid_unfulfilled'`

	tag, err := r.exec(ctx, stmt, id, at)
	if err != nil {
		return fmt.Errorf("mark order refunded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *OrderRepository) getOne(ctx context.Context, query string, id uuid.UUID) (*domain.Order, error) {
	o, err := scanOrder(r.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var status string
	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&o.ProductID,
		&o.LocationID,
		&o.PriceFiat,
		&o.ExpectedAmount,
		&o.DisambiguationUnit,
		&o.Rate,
		&status,
		&o.AllocatedContentID,
		&o.ObservedAmount,
		&o.PaidAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}
