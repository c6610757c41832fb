package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/RaikyD/btc-content-shop/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository reads the categories, products and locations managed by operators.
type CatalogRepository struct {
	db
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{db{pool: pool}}
}

func (r *CatalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.query(ctx, `SELECT id, name, is_active FROM categories WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.IsActive); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CatalogRepository) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	var c domain.Category
	err := r.queryRow(ctx, `SELECT id, name, is_active FROM categories WHERE id = $1 AND is_active`, id).
		Scan(&c.ID, &c.Name, &c.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

func (r *CatalogRepository) ListProducts(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	const query = `
SELECT id, category_id, name, description, price_fiat, is_active
FROM products
WHERE category_id = $1 AND is_active
ORDER BY id`

	rows, err := r.query(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.PriceFiat, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *CatalogRepository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	const query = `
SELECT id, category_id, name, description, price_fiat, is_active
FROM products
WHERE id = $1 AND is_active`

	var p domain.Product
	err := r.queryRow(ctx, query, id).
		Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.PriceFiat, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (r *CatalogRepository) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := r.query(ctx, `SELECT id, name, is_active FROM locations WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var out []domain.Location
	for rows.Next() {
		var l domain.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.IsActive); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *CatalogRepository) GetLocation(ctx context.Context, id int64) (*domain.Location, error) {
	var l domain.Location
	err := r.queryRow(ctx, `SELECT id, name, is_active FROM locations WHERE id = $1 AND is_active`, id).
		Scan(&l.ID, &l.Name, &l.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLocationNotFound
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &l, nil
}

func (r *CatalogRepository) CreateCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	if err := r.queryRow(ctx, `INSERT INTO categories (name) VALUES ($1) RETURNING id`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	return id, nil
}

func (r *CatalogRepository) CreateProduct(ctx context.Context, p domain.Product) (int64, error) {
	const stmt = `
INSERT INTO products (category_id, name, description, price_fiat)
VALUES ($1, $2, $3, $4)
RETURNING id`

	var id int64
	if err := r.queryRow(ctx, stmt, p.CategoryID, p.Name, p.Description, p.PriceFiat).Scan(&id); err != nil {
		if isForeignKeyViolation(err) {
			return 0, domain.ErrCategoryNotFound
		}
		return 0, fmt.Errorf("create product: %w", err)
	}
	return id, nil
}

func (r *CatalogRepository) CreateLocation(ctx context.Context, name string) (int64, error) {
	var id int64
	if err := r.queryRow(ctx, `INSERT INTO locations (name) VALUES ($1) RETURNING id`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("create location: %w", err)
	}
	return id, nil
}
