// Package catalog serves the product catalog and syncs it from the
// external feed.
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ousashop/shop-backend/internal/models"
)

// Repo is the storage surface for catalog reads and feed upserts.
type Repo interface {
	UpsertCategory(ctx context.Context, c models.Category) (int64, bool, error)
	UpsertProduct(ctx context.Context, p models.Product) (bool, error)
	ListCategories(ctx context.Context) ([]*models.Category, error)
	ListActiveProducts(ctx context.Context) ([]*models.Product, error)
}

// Service implements catalog listing and import.
type Service struct {
	log  *slog.Logger
	repo Repo
}

// New creates the catalog service.
func New(log *slog.Logger, repo Repo) *Service {
	return &Service{log: log, repo: repo}
}

// Listing is the storefront payload: categories with the active products.
type Listing struct {
	Categories []*models.Category `json:"categories"`
	Products   []*models.Product  `json:"products"`
}

// List returns all categories and active products ordered for display.
func (s *Service) List(ctx context.Context) (*Listing, error) {
	const op = "catalog.List"

	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	products, err := s.repo.ListActiveProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Listing{Categories: categories, Products: products}, nil
}
