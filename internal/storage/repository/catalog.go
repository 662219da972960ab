package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ousashop/shop-backend/internal/models"
)

// UpsertCategory inserts or updates a category by its feed source id.
// Returns the local id and whether the row was created.
func (s *Storage) UpsertCategory(ctx context.Context, c models.Category) (int64, bool, error) {
	const op = "storage.UpsertCategory"
	select {
	case <-ctx.Done():
		return 0, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO categories (source_id, name_en, name_kh, description, active, display_order)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (source_id) DO UPDATE SET
			      name_en = EXCLUDED.name_en,
			      name_kh = EXCLUDED.name_kh,
			      description = EXCLUDED.description,
			      active = EXCLUDED.active,
			      display_order = EXCLUDED.display_order
			  RETURNING id, (xmax = 0) AS inserted`
	var id int64
	var inserted bool
	if err := s.DB.QueryRowContext(ctx, query,
		c.SourceID, c.NameEN, c.NameKH, c.Description, c.Active, c.DisplayOrder).Scan(&id, &inserted); err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return id, inserted, nil
}

// UpsertProduct inserts or updates a product by its feed source id.
// Returns whether the row was created.
func (s *Storage) UpsertProduct(ctx context.Context, p models.Product) (bool, error) {
	const op = "storage.UpsertProduct"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO products (source_id, name_en, name_kh, description_en, description_kh,
			      price, image_url, category_id, active, popular, display_order)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			  ON CONFLICT (source_id) DO UPDATE SET
			      name_en = EXCLUDED.name_en,
			      name_kh = EXCLUDED.name_kh,
			      description_en = EXCLUDED.description_en,
			      description_kh = EXCLUDED.description_kh,
			      price = EXCLUDED.price,
			      image_url = EXCLUDED.image_url,
			      category_id = EXCLUDED.category_id,
			      active = EXCLUDED.active,
			      popular = EXCLUDED.popular,
			      display_order = EXCLUDED.display_order
			  RETURNING (xmax = 0) AS inserted`
	var inserted bool
	if err := s.DB.QueryRowContext(ctx, query,
		p.SourceID, p.NameEN, p.NameKH, p.DescriptionEN, p.DescriptionKH,
		p.Price, p.ImageURL, p.CategoryID, p.Active, p.Popular, p.DisplayOrder).Scan(&inserted); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return inserted, nil
}

const productColumns = `id, source_id, name_en, name_kh, description_en, description_kh,
			      price, image_url, category_id, active, popular, display_order`

// ListCategories returns all categories ordered for display.
func (s *Storage) ListCategories(ctx context.Context) ([]*models.Category, error) {
	const op = "storage.ListCategories"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, source_id, name_en, name_kh, description, active, display_order
			  FROM categories
			  ORDER BY display_order, name_en`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.SourceID, &c.NameEN, &c.NameKH,
			&c.Description, &c.Active, &c.DisplayOrder); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ListActiveProducts returns all active products ordered for display.
func (s *Storage) ListActiveProducts(ctx context.Context) ([]*models.Product, error) {
	const op = "storage.ListActiveProducts"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + productColumns + `
			  FROM products
			  WHERE active
			  ORDER BY display_order, name_en`
	return s.queryProducts(ctx, op, query)
}

// GetActiveProduct returns an active product by id or ErrNotFound.
// Inactive products are treated as missing: they cannot be bought.
func (s *Storage) GetActiveProduct(ctx context.Context, id int64) (*models.Product, error) {
	const op = "storage.GetActiveProduct"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + productColumns + `
			  FROM products
			  WHERE id = $1 AND active`
	p := &models.Product{}
	row := s.DB.QueryRowContext(ctx, query, id)
	if err := scanProduct(row.Scan, p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetProduct returns a product by id regardless of its active flag.
// Fulfillment uses this: a product deactivated after checkout must still
// resolve when the webhook arrives.
func (s *Storage) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	const op = "storage.GetProduct"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + productColumns + `
			  FROM products
			  WHERE id = $1`
	p := &models.Product{}
	row := s.DB.QueryRowContext(ctx, query, id)
	if err := scanProduct(row.Scan, p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetActiveProductsByIDs returns the active subset of the given ids.
func (s *Storage) GetActiveProductsByIDs(ctx context.Context, ids []int64) ([]*models.Product, error) {
	const op = "storage.GetActiveProductsByIDs"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + productColumns + `
			  FROM products
			  WHERE id = ANY($1) AND active`
	return s.queryProducts(ctx, op, query, ids)
}

func (s *Storage) queryProducts(ctx context.Context, op, query string, args ...any) ([]*models.Product, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Product
	for rows.Next() {
		var p models.Product
		if err := scanProduct(rows.Scan, &p); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func scanProduct(scan func(...any) error, p *models.Product) error {
	return scan(&p.ID, &p.SourceID, &p.NameEN, &p.NameKH, &p.DescriptionEN, &p.DescriptionKH,
		&p.Price, &p.ImageURL, &p.CategoryID, &p.Active, &p.Popular, &p.DisplayOrder)
}
