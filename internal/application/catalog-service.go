package application

import (
	"context"
	"strings"

	"github.com/RaikyD/btc-content-shop/internal/domain"
	"github.com/RaikyD/btc-content-shop/internal/logger"
	"github.com/shopspring/decimal"
)

type CatalogRepository interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)
	ListProducts(ctx context.Context, categoryID int64) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListLocations(ctx context.Context) ([]domain.Location, error)
	GetLocation(ctx context.Context, id int64) (*domain.Location, error)
	CreateCategory(ctx context.Context, name string) (int64, error)
	CreateProduct(ctx context.Context, p domain.Product) (int64, error)
	CreateLocation(ctx context.Context, name string) (int64, error)
}

type ContentStock interface {
	AddContent(ctx context.Context, locationID int64, payloads []string) ([]int64, error)
	CountAvailable(ctx context.Context, locationID int64) (int, error)
}

// CatalogService serves the browse steps and the operator catalog management.
type CatalogService struct {
	repo  CatalogRepository
	stock ContentStock
}

func NewCatalogService(repo CatalogRepository, stock ContentStock) *CatalogService {
	return &CatalogService{repo: repo, stock: stock}
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

// ListProducts returns the active products of an active category.
func (s *CatalogService) ListProducts(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	if categoryID <= 0 {
		return nil, domain.ErrInvalidID
	}
	if _, err := s.repo.GetCategory(ctx, categoryID); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, categoryID)
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidID
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *CatalogService) ListLocations(ctx context.Context) ([]domain.Location, error) {
	return s.repo.ListLocations(ctx)
}

func (s *CatalogService) GetLocation(ctx context.Context, id int64) (*domain.Location, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidID
	}
	return s.repo.GetLocation(ctx, id)
}

func (s *CatalogService) AddCategory(ctx context.Context, name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	id, err := s.repo.CreateCategory(ctx, name)
	if err != nil {
		return domain.Category{}, err
	}
	logger.Info("category added", "category_id", id, "name", name)
	return domain.Category{ID: id, Name: name, IsActive: true}, nil
}

func (s *CatalogService) AddProduct(ctx context.Context, categoryID int64, name, description string, price decimal.Decimal) (domain.Product, error) {
	if categoryID <= 0 {
		return domain.Product{}, domain.ErrInvalidID
	}
	if !price.IsPositive() {
		return domain.Product{}, domain.ErrInvalidAmount
	}
	if _, err := s.repo.GetCategory(ctx, categoryID); err != nil {
		return domain.Product{}, err
	}

	p := domain.Product{
		CategoryID:  categoryID,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		PriceFiat:   price.Round(2),
		IsActive:    true,
	}
	id, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return domain.Product{}, err
	}
	p.ID = id
	logger.Info("product added", "product_id", id, "category_id", categoryID, "price", p.PriceFiat.String())
	return p, nil
}

func (s *CatalogService) AddLocation(ctx context.Context, name string) (domain.Location, error) {
	name = strings.TrimSpace(name)
	id, err := s.repo.CreateLocation(ctx, name)
	if err != nil {
		return domain.Location{}, err
	}
	logger.Info("location added", "location_id", id, "name", name)
	return domain.Location{ID: id, Name: name, IsActive: true}, nil
}

// AddContent stocks a location pool. Blank payloads are dropped.
func (s *CatalogService) AddContent(ctx context.Context, locationID int64, payloads []string) (int, error) {
	if locationID <= 0 {
		return 0, domain.ErrInvalidID
	}
	if _, err := s.repo.GetLocation(ctx, locationID); err != nil {
		return 0, err
	}

	clean := make([]string, 0, len(payloads))
	for _, p := range payloads {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
	}
	ids, err := s.stock.AddContent(ctx, locationID, clean)
	if err != nil {
		return 0, err
	}
	logger.Info("content added", "location_id", locationID, "count", len(ids))
	return len(ids), nil
}

func (s *CatalogService) CountAvailable(ctx context.Context, locationID int64) (int, error) {
	if locationID <= 0 {
		return 0, domain.ErrInvalidID
	}
	return s.stock.CountAvailable(ctx, locationID)
}
