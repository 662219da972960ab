package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ousashop/shop-backend/internal/config"
	"github.com/ousashop/shop-backend/internal/models"
	"github.com/ousashop/shop-backend/internal/paymentprovider"
)

type ProductProviderMock struct {
	mock.Mock
}

func (m *ProductProviderMock) GetActiveProduct(ctx context.Context, id int64) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *ProductProviderMock) GetActiveProductsByIDs(ctx context.Context, ids []int64) ([]*models.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Product), args.Error(1)
}

type CartStoreMock struct {
	mock.Mock
}

func (m *CartStoreMock) Cart(ctx context.Context, userUID string) (map[string]int, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

type SessionCreatorMock struct {
	mock.Mock
}

func (m *SessionCreatorMock) Configured() bool {
	return m.Called().Bool(0)
}

func (m *SessionCreatorMock) CreateCheckoutSession(ctx context.Context, req paymentprovider.CreateSessionRequest) (*paymentprovider.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.Session), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func testPaymentConfig() config.Payment {
	return config.Payment{
		APIKey:          "sk_test",
		ProPlanPrice:    "9.99",
		DefaultCurrency: "usd",
	}
}

func verifiedUser(userType string) *models.User {
	now := time.Now()
	return &models.User{
		UID:             "user-1",
		Email:           "user@example.com",
		UserType:        userType,
		EmailVerifiedAt: &now,
	}
}

func testProduct(id int64, price string) *models.Product {
	return &models.Product{
		ID:            id,
		NameEN:        "Test product",
		DescriptionEN: "A test product",
		Price:         decimal.RequireFromString(price),
		Active:        true,
	}
}

func TestStartProduct_UnverifiedUserRefused(t *testing.T) {
	svc := New(newNoopLogger(), new(ProductProviderMock), new(CartStoreMock),
		new(SessionCreatorMock), testPaymentConfig(), "https://shop.example.com")

	_, err := svc.StartProduct(context.Background(), &models.User{UID: "u"}, 1, 1)
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}

func TestStartProduct_ProviderNotConfigured(t *testing.T) {
	provider := new(SessionCreatorMock)
	provider.On("Configured").Return(false)

	svc := New(newNoopLogger(), new(ProductProviderMock), new(CartStoreMock),
		provider, testPaymentConfig(), "https://shop.example.com")

	_, err := svc.StartProduct(context.Background(), verifiedUser(models.UserTypeBasic), 1, 1)
	assert.ErrorIs(t, err, paymentprovider.ErrNotConfigured)
}

func TestStartProduct_BasicUserPaysFullPrice(t *testing.T) {
	products := new(ProductProviderMock)
	products.On("GetActiveProduct", mock.Anything, int64(42)).
		Return(testProduct(42, "25.00"), nil).Once()

	provider := new(SessionCreatorMock)
	provider.On("Configured").Return(true)
	provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req paymentprovider.CreateSessionRequest) bool {
		return req.Mode == paymentprovider.ModePayment &&
			len(req.LineItems) == 1 &&
			req.LineItems[0].PriceData.UnitAmount == 2500 &&
			req.LineItems[0].Quantity == 2 &&
			req.Metadata["type"] == "product" &&
			req.Metadata["discount_applied"] == "false" &&
			req.SuccessURL == "https://shop.example.com/billing/success?session_id={CHECKOUT_SESSION_ID}"
	})).Return(&paymentprovider.Session{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil).Once()

	svc := New(newNoopLogger(), products, new(CartStoreMock),
		provider, testPaymentConfig(), "https://shop.example.com")

	session, err := svc.StartProduct(context.Background(), verifiedUser(models.UserTypeBasic), 42, 2)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.ID)

	products.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestStartProduct_ProUserGetsDiscount(t *testing.T) {
	products := new(ProductProviderMock)
	products.On("GetActiveProduct", mock.Anything, int64(42)).
		Return(testProduct(42, "25.00"), nil).Once()

	provider := new(SessionCreatorMock)
	provider.On("Configured").Return(true)
	provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req paymentprovider.CreateSessionRequest) bool {
		return req.LineItems[0].PriceData.UnitAmount == 2000 &&
			req.Metadata["discount_applied"] == "true"
	})).Return(&paymentprovider.Session{ID: "cs_2"}, nil).Once()

	svc := New(newNoopLogger(), products, new(CartStoreMock),
		provider, testPaymentConfig(), "https://shop.example.com")

	_, err := svc.StartProduct(context.Background(), verifiedUser(models.UserTypePro), 42, 1)
	require.NoError(t, err)
	provider.AssertExpectations(t)
}

func TestStartProduct_UnknownProduct(t *testing.T) {
	products := new(ProductProviderMock)
	products.On("GetActiveProduct", mock.Anything, int64(99)).
		Return(nil, errors.New("not found")).Once()

	provider := new(SessionCreatorMock)
	provider.On("Configured").Return(true)

	svc := New(newNoopLogger(), products, new(CartStoreMock),
		provider, testPaymentConfig(), "https://shop.example.com")

	_, err := svc.StartProduct(context.Background(), verifiedUser(models.UserTypeBasic), 99, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestStartCart_EmptyCartRefused(t *testing.T) {
	carts := new(CartStoreMock)
	carts.On("Cart", mock.Anything, "user-1").Return(map[string]int{}, nil).Once()

	products := new(ProductProviderMock)
	products.On("GetActiveProductsByIDs", mock.Anything, mock.Anything).
		Return([]*models.Product(nil), nil).Once()

	provider := new(SessionCreatorMock)
	provider.On("Configured").Return(true)

	svc := New(newNoopLogger(), products, carts,
		provider, testPaymentConfig(), "https://shop.example.com")

	_, err := svc.StartCart(context.Background(), verifiedUser(models.UserTypeBasic))
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestStartCart_DropsVanishedProducts(t *testing.T) {
	carts := new(CartStoreMock)
	carts.On("Cart", mock.Anything, "user-1").
		Return(map[string]int{"1": 2, "9": 1}, nil).Once()

	// Product 9 is gone; only product 1 resolves.
	products := new(ProductProviderMock)
	products.On("GetActiveProductsByIDs", mock.Anything, mock.MatchedBy(func(ids []int64) bool {
		return len(ids) == 2
	})).Return([]*models.Product{testProduct(1, "10.00")}, nil).Once()

	provider := new(SessionCreatorMock)
	provider.On("Configured").Return(true)
	provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req paymentprovider.CreateSessionRequest) bool {
		return len(req.LineItems) == 1 &&
			req.LineItems[0].Quantity == 2 &&
			req.Metadata["type"] == "product_cart" &&
			req.Metadata["cart"] == "1:2"
	})).Return(&paymentprovider.Session{ID: "cs_3"}, nil).Once()

	svc := New(newNoopLogger(), products, carts,
		provider, testPaymentConfig(), "https://shop.example.com")

	session, err := svc.StartCart(context.Background(), verifiedUser(models.UserTypeBasic))
	require.NoError(t, err)
	assert.Equal(t, "cs_3", session.ID)
	provider.AssertExpectations(t)
}

func TestStartSubscription_UsesConfiguredPriceID(t *testing.T) {
	cfg := testPaymentConfig()
	cfg.SubscriptionPriceID = "price_pro_monthly"

	provider := new(SessionCreatorMock)
	provider.On("Configured").Return(true)
	provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req paymentprovider.CreateSessionRequest) bool {
		return req.Mode == paymentprovider.ModeSubscription &&
			req.LineItems[0].PriceID == "price_pro_monthly" &&
			req.LineItems[0].PriceData == nil &&
			req.Metadata["type"] == "subscription" &&
			req.Metadata["price_id"] == "price_pro_monthly"
	})).Return(&paymentprovider.Session{ID: "cs_4"}, nil).Once()

	svc := New(newNoopLogger(), new(ProductProviderMock), new(CartStoreMock),
		provider, cfg, "https://shop.example.com")

	_, err := svc.StartSubscription(context.Background(), verifiedUser(models.UserTypeBasic))
	require.NoError(t, err)
	provider.AssertExpectations(t)
}

func TestStartSubscription_InlinePriceFallback(t *testing.T) {
	provider := new(SessionCreatorMock)
	provider.On("Configured").Return(true)
	provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req paymentprovider.CreateSessionRequest) bool {
		item := req.LineItems[0]
		return item.PriceID == "" &&
			item.PriceData != nil &&
			item.PriceData.UnitAmount == 999 &&
			item.PriceData.Recurring != nil &&
			item.PriceData.Recurring.Interval == "month"
	})).Return(&paymentprovider.Session{ID: "cs_5"}, nil).Once()

	svc := New(newNoopLogger(), new(ProductProviderMock), new(CartStoreMock),
		provider, testPaymentConfig(), "https://shop.example.com")

	_, err := svc.StartSubscription(context.Background(), verifiedUser(models.UserTypeBasic))
	require.NoError(t, err)
	provider.AssertExpectations(t)
}

func TestTruncateDescription(t *testing.T) {
	long := make([]rune, 0, 250)
	for range 250 {
		long = append(long, 'a')
	}
	assert.Len(t, []rune(truncateDescription(string(long))), 200)
	assert.Equal(t, "short", truncateDescription("short"))
}
