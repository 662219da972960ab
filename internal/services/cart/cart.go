// Package cart manages the per-user shopping cart. The cart stores only
// product ids and quantities; names and prices are resolved live on
// every view, so a price change or deactivation is reflected at once.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/ousashop/shop-backend/internal/lib/money"
	"github.com/ousashop/shop-backend/internal/models"
	"github.com/ousashop/shop-backend/internal/storage/repository"
)

// ErrProductNotFound is returned when the product cannot be added.
var ErrProductNotFound = errors.New("product not found")

// ProductProvider resolves catalog products.
type ProductProvider interface {
	GetActiveProduct(ctx context.Context, id int64) (*models.Product, error)
	GetActiveProductsByIDs(ctx context.Context, ids []int64) ([]*models.Product, error)
}

// Store reads and writes the raw cart map.
type Store interface {
	Cart(ctx context.Context, userUID string) (map[string]int, error)
	SaveCart(ctx context.Context, userUID string, cart map[string]int) error
}

// Item is one resolved cart line priced for the viewing user.
type Item struct {
	Product   *models.Product `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// View is the resolved cart.
type View struct {
	Items []Item          `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// Service implements the cart operations.
type Service struct {
	log      *slog.Logger
	products ProductProvider
	store    Store
}

// New creates the cart service.
func New(log *slog.Logger, products ProductProvider, store Store) *Service {
	return &Service{log: log, products: products, store: store}
}

// Add increments the quantity of a product by one. The product must be
// active at the time of adding.
func (s *Service) Add(ctx context.Context, userUID string, productID int64) error {
	const op = "cart.Add"

	if _, err := s.products.GetActiveProduct(ctx, productID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrProductNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	cart, err := s.store.Cart(ctx, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	key := strconv.FormatInt(productID, 10)
	cart[key]++
	if err := s.store.SaveCart(ctx, userUID, cart); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("product added to cart",
		slog.String("user_uid", userUID),
		slog.Int64("product_id", productID),
		slog.Int("quantity", cart[key]))
	return nil
}

// Remove deletes a product from the cart entirely. Removing a product
// that is not in the cart is a no-op.
func (s *Service) Remove(ctx context.Context, userUID string, productID int64) error {
	const op = "cart.Remove"

	cart, err := s.store.Cart(ctx, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	key := strconv.FormatInt(productID, 10)
	if _, ok := cart[key]; !ok {
		return nil
	}
	delete(cart, key)
	if err := s.store.SaveCart(ctx, userUID, cart); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("product removed from cart",
		slog.String("user_uid", userUID),
		slog.Int64("product_id", productID))
	return nil
}

// Resolve returns the cart priced for the given user. Entries that no
// longer resolve to an active product are silently dropped from the
// view but left in the stored map. Items are listed at catalog prices;
// for pro users the discount is taken off the summed total, rounded
// once.
func (s *Service) Resolve(ctx context.Context, user *models.User) (*View, error) {
	const op = "cart.Resolve"

	cart, err := s.store.Cart(ctx, user.UID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ids := make([]int64, 0, len(cart))
	quantities := make(map[int64]int, len(cart))
	for key, qty := range cart {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || qty < 1 {
			continue
		}
		ids = append(ids, id)
		quantities[id] = qty
	}

	products, err := s.products.GetActiveProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	view := &View{Items: make([]Item, 0, len(products)), Total: decimal.Zero}
	for _, product := range products {
		quantity := quantities[product.ID]
		lineTotal := money.LineTotal(product.Price, quantity)
		view.Items = append(view.Items, Item{
			Product:   product,
			Quantity:  quantity,
			UnitPrice: product.Price,
			LineTotal: lineTotal,
		})
		view.Total = view.Total.Add(lineTotal)
	}
	if user.UserType == models.UserTypePro {
		view.Total = money.ApplyProDiscount(view.Total)
	}
	return view, nil
}
