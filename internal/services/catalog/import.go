package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ousashop/shop-backend/internal/models"
)

// feed is the document served by the external catalog endpoint.
// Products reference categories by the feed's own category id, not by a
// local database id.
type feed struct {
	Categories []feedCategory `json:"categories"`
	Products   []feedProduct  `json:"products"`
}

type feedCategory struct {
	ID           int64  `json:"id"`
	NameEN       string `json:"name_en"`
	NameKH       string `json:"name_kh"`
	Description  string `json:"description"`
	Active       bool   `json:"active"`
	DisplayOrder int    `json:"display_order"`
}

type feedProduct struct {
	ID            int64           `json:"id"`
	NameEN        string          `json:"name_en"`
	NameKH        string          `json:"name_kh"`
	DescriptionEN string          `json:"description_en"`
	DescriptionKH string          `json:"description_kh"`
	Price         decimal.Decimal `json:"price"`
	ImageURL      string          `json:"image_url"`
	CategoryID    int64           `json:"category_id"`
	Active        bool            `json:"active"`
	Popular       bool            `json:"popular"`
	DisplayOrder  int             `json:"display_order"`
}

// ImportResult counts what one import run did.
type ImportResult struct {
	CategoriesCreated int
	CategoriesUpdated int
	ProductsCreated   int
	ProductsUpdated   int
	ProductsSkipped   int
}

// Import fetches the catalog feed and upserts its contents. Categories
// are written first so products can be resolved against them; a product
// whose category is unknown is logged and skipped, never fails the run.
func (s *Service) Import(ctx context.Context, feedURL string) (*ImportResult, error) {
	const op = "catalog.Import"
	log := s.log.With(slog.String("op", op), slog.String("url", feedURL))

	doc, err := fetchFeed(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if doc.Categories == nil && doc.Products == nil {
		return nil, fmt.Errorf("%s: feed has neither categories nor products", op)
	}

	result := &ImportResult{}
	categoryIDs := make(map[int64]int64, len(doc.Categories))
	for _, fc := range doc.Categories {
		localID, created, err := s.repo.UpsertCategory(ctx, models.Category{
			SourceID:     strconv.FormatInt(fc.ID, 10),
			NameEN:       fc.NameEN,
			NameKH:       fc.NameKH,
			Description:  fc.Description,
			Active:       fc.Active,
			DisplayOrder: fc.DisplayOrder,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		categoryIDs[fc.ID] = localID
		if created {
			result.CategoriesCreated++
		} else {
			result.CategoriesUpdated++
		}
	}

	for _, fp := range doc.Products {
		categoryID, ok := categoryIDs[fp.CategoryID]
		if !ok {
			log.Warn("product references unknown category, skipping",
				slog.Int64("product_source_id", fp.ID),
				slog.Int64("category_source_id", fp.CategoryID))
			result.ProductsSkipped++
			continue
		}
		created, err := s.repo.UpsertProduct(ctx, models.Product{
			SourceID:      strconv.FormatInt(fp.ID, 10),
			NameEN:        fp.NameEN,
			NameKH:        fp.NameKH,
			DescriptionEN: fp.DescriptionEN,
			DescriptionKH: fp.DescriptionKH,
			Price:         fp.Price,
			ImageURL:      fp.ImageURL,
			CategoryID:    categoryID,
			Active:        fp.Active,
			Popular:       fp.Popular,
			DisplayOrder:  fp.DisplayOrder,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if created {
			result.ProductsCreated++
		} else {
			result.ProductsUpdated++
		}
	}

	log.Info("catalog import finished",
		slog.Int("categories_created", result.CategoriesCreated),
		slog.Int("categories_updated", result.CategoriesUpdated),
		slog.Int("products_created", result.ProductsCreated),
		slog.Int("products_updated", result.ProductsUpdated),
		slog.Int("products_skipped", result.ProductsSkipped))
	return result, nil
}

func fetchFeed(ctx context.Context, feedURL string) (*feed, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected feed status: %s", resp.Status)
	}

	var doc feed
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return &doc, nil
}
