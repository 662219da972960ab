// Package checkout builds hosted checkout sessions for single products,
// carts and pro subscriptions, and encodes the buy intent into session
// metadata for the webhook reconciler to act on later.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/ousashop/shop-backend/internal/config"
	"github.com/ousashop/shop-backend/internal/lib/money"
	"github.com/ousashop/shop-backend/internal/lib/sl"
	"github.com/ousashop/shop-backend/internal/models"
	"github.com/ousashop/shop-backend/internal/paymentprovider"
)

// Sentinel errors mapped to client responses by the handlers.
var (
	ErrEmailNotVerified = errors.New("email is not verified")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrProductNotFound  = errors.New("product not found")
)

const maxDescriptionRunes = 200

// ProductProvider resolves purchasable products.
type ProductProvider interface {
	GetActiveProduct(ctx context.Context, id int64) (*models.Product, error)
	GetActiveProductsByIDs(ctx context.Context, ids []int64) ([]*models.Product, error)
}

// CartStore reads the user's cart.
type CartStore interface {
	Cart(ctx context.Context, userUID string) (map[string]int, error)
}

// SessionCreator creates sessions at the payment provider.
type SessionCreator interface {
	Configured() bool
	CreateCheckoutSession(ctx context.Context, req paymentprovider.CreateSessionRequest) (*paymentprovider.Session, error)
}

// Service is the checkout orchestrator.
type Service struct {
	log      *slog.Logger
	products ProductProvider
	carts    CartStore
	provider SessionCreator
	payment  config.Payment
	siteURL  string
}

// New creates the checkout service.
func New(log *slog.Logger, products ProductProvider, carts CartStore,
	provider SessionCreator, payment config.Payment, siteURL string) *Service {
	return &Service{
		log:      log,
		products: products,
		carts:    carts,
		provider: provider,
		payment:  payment,
		siteURL:  siteURL,
	}
}

// StartProduct creates a payment session for a single product. Pro users
// get the discounted unit price; DiscountApplied in the intent records
// which price was charged.
func (s *Service) StartProduct(ctx context.Context, user *models.User, productID int64, quantity int) (*paymentprovider.Session, error) {
	const op = "checkout.StartProduct"

	if err := s.checkEligible(user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if quantity < 1 {
		quantity = 1
	}

	product, err := s.products.GetActiveProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrProductNotFound)
	}

	unitPrice, discounted := s.unitPrice(product, user)
	intent := Intent{
		Kind:            IntentProduct,
		UserUID:         user.UID,
		ProductID:       product.ID,
		Quantity:        quantity,
		DiscountApplied: discounted,
	}

	req := paymentprovider.CreateSessionRequest{
		Mode:          paymentprovider.ModePayment,
		CustomerEmail: user.Email,
		LineItems: []paymentprovider.LineItem{
			s.productLineItem(product, unitPrice, quantity),
		},
		SuccessURL: s.successURL(),
		CancelURL:  s.cancelURL(),
		Metadata:   intent.Metadata(),
	}
	session, err := s.provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("checkout session created",
		slog.String("session_id", session.ID),
		slog.String("user_uid", user.UID),
		slog.Int64("product_id", product.ID))
	return session, nil
}

// StartCart creates one payment session covering every resolvable line
// of the user's cart. Cart entries that no longer resolve to an active
// product are dropped; an empty resolved cart is refused.
func (s *Service) StartCart(ctx context.Context, user *models.User) (*paymentprovider.Session, error) {
	const op = "checkout.StartCart"

	if err := s.checkEligible(user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cart, err := s.carts.Cart(ctx, user.UID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	lines := decodeCartLines(joinCartMap(cart))
	ids := make([]int64, 0, len(lines))
	quantities := make(map[int64]int, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			continue
		}
		ids = append(ids, line.ProductID)
		quantities[line.ProductID] = line.Quantity
	}

	products, err := s.products.GetActiveProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyCart)
	}
	if dropped := len(ids) - len(products); dropped > 0 {
		s.log.Warn("cart entries dropped at checkout",
			slog.String("user_uid", user.UID),
			slog.Int("dropped", dropped))
	}

	discounted := user.UserType == models.UserTypePro
	items := make([]paymentprovider.LineItem, 0, len(products))
	intentLines := make([]CartLine, 0, len(products))
	for _, product := range products {
		quantity := quantities[product.ID]
		unitPrice, _ := s.unitPrice(product, user)
		items = append(items, s.productLineItem(product, unitPrice, quantity))
		intentLines = append(intentLines, CartLine{ProductID: product.ID, Quantity: quantity})
	}

	intent := Intent{
		Kind:            IntentProductCart,
		UserUID:         user.UID,
		Lines:           intentLines,
		DiscountApplied: discounted,
	}
	req := paymentprovider.CreateSessionRequest{
		Mode:          paymentprovider.ModePayment,
		CustomerEmail: user.Email,
		LineItems:     items,
		SuccessURL:    s.successURL(),
		CancelURL:     s.cancelURL(),
		Metadata:      intent.Metadata(),
	}
	session, err := s.provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("cart checkout session created",
		slog.String("session_id", session.ID),
		slog.String("user_uid", user.UID),
		slog.Int("lines", len(items)))
	return session, nil
}

// StartSubscription creates a subscription-mode session for the pro
// plan. A pre-configured remote price id wins over the inline monthly
// price. The pro discount never applies to the plan itself.
func (s *Service) StartSubscription(ctx context.Context, user *models.User) (*paymentprovider.Session, error) {
	const op = "checkout.StartSubscription"

	if err := s.checkEligible(user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var item paymentprovider.LineItem
	if s.payment.SubscriptionPriceID != "" {
		item = paymentprovider.LineItem{
			PriceID:  s.payment.SubscriptionPriceID,
			Quantity: 1,
		}
	} else {
		planPrice, err := decimal.NewFromString(s.payment.ProPlanPrice)
		if err != nil {
			s.log.Error("invalid pro plan price in configuration", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		item = paymentprovider.LineItem{
			PriceData: &paymentprovider.PriceData{
				Currency: s.payment.DefaultCurrency,
				ProductData: paymentprovider.ProductData{
					Name: "Pro membership",
				},
				UnitAmount: money.MinorUnits(planPrice),
				Recurring:  &paymentprovider.Recurring{Interval: "month"},
			},
			Quantity: 1,
		}
	}

	intent := Intent{
		Kind:    IntentSubscription,
		UserUID: user.UID,
		PriceID: s.payment.SubscriptionPriceID,
	}
	req := paymentprovider.CreateSessionRequest{
		Mode:          paymentprovider.ModeSubscription,
		CustomerEmail: user.Email,
		LineItems:     []paymentprovider.LineItem{item},
		SuccessURL:    s.successURL(),
		CancelURL:     s.cancelURL(),
		Metadata:      intent.Metadata(),
	}
	session, err := s.provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("subscription checkout session created",
		slog.String("session_id", session.ID),
		slog.String("user_uid", user.UID))
	return session, nil
}

func (s *Service) checkEligible(user *models.User) error {
	if !user.IsVerified() {
		return ErrEmailNotVerified
	}
	if !s.provider.Configured() {
		return paymentprovider.ErrNotConfigured
	}
	return nil
}

// unitPrice returns the price a given user pays for one unit and whether
// the pro discount was applied.
func (s *Service) unitPrice(product *models.Product, user *models.User) (decimal.Decimal, bool) {
	if user.UserType == models.UserTypePro {
		return money.ApplyProDiscount(product.Price), true
	}
	return product.Price, false
}

func (s *Service) productLineItem(product *models.Product, unitPrice decimal.Decimal, quantity int) paymentprovider.LineItem {
	return paymentprovider.LineItem{
		PriceData: &paymentprovider.PriceData{
			Currency: s.payment.DefaultCurrency,
			ProductData: paymentprovider.ProductData{
				Name:        product.NameEN,
				Description: truncateDescription(product.DescriptionEN),
			},
			UnitAmount: money.MinorUnits(unitPrice),
		},
		Quantity: quantity,
	}
}

func (s *Service) successURL() string {
	return s.siteURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}"
}

func (s *Service) cancelURL() string {
	return s.siteURL + "/billing/cancel"
}

// truncateDescription limits the provider-facing description length.
func truncateDescription(s string) string {
	runes := []rune(s)
	if len(runes) <= maxDescriptionRunes {
		return s
	}
	return string(runes[:maxDescriptionRunes])
}

// joinCartMap renders the session cart map in the same "pid:qty|..."
// form the intent uses, so both paths share one parser and one policy
// for malformed entries.
func joinCartMap(cart map[string]int) string {
	out := ""
	for id, qty := range cart {
		if out != "" {
			out += "|"
		}
		out += fmt.Sprintf("%s:%d", id, qty)
	}
	return out
}
