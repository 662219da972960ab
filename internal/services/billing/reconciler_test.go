package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ousashop/shop-backend/internal/models"
	"github.com/ousashop/shop-backend/internal/paymentprovider"
	"github.com/ousashop/shop-backend/internal/storage/repository"
)

type UserRepoMock struct {
	mock.Mock
}

func (m *UserRepoMock) GetUserByUID(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) SetUserType(ctx context.Context, userUID, userType string) error {
	return m.Called(ctx, userUID, userType).Error(0)
}

type ProductRepoMock struct {
	mock.Mock
}

func (m *ProductRepoMock) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

type BillingRepoMock struct {
	mock.Mock
}

func (m *BillingRepoMock) UpsertPurchase(ctx context.Context, p models.Purchase) error {
	return m.Called(ctx, p).Error(0)
}

func (m *BillingRepoMock) UpsertSubscription(ctx context.Context, sub models.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *BillingRepoMock) GetSubscription(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	args := m.Called(ctx, providerSubscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

type CartClearerMock struct {
	mock.Mock
}

func (m *CartClearerMock) ClearCart(ctx context.Context, userUID string) error {
	return m.Called(ctx, userUID).Error(0)
}

type SessionRetrieverMock struct {
	mock.Mock
}

func (m *SessionRetrieverMock) RetrieveSession(ctx context.Context, sessionID string) (*paymentprovider.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.Session), args.Error(1)
}

type reconcilerMocks struct {
	users    *UserRepoMock
	products *ProductRepoMock
	billing  *BillingRepoMock
	carts    *CartClearerMock
	provider *SessionRetrieverMock
}

func newTestReconciler(t *testing.T) (*Reconciler, reconcilerMocks) {
	t.Helper()
	m := reconcilerMocks{
		users:    new(UserRepoMock),
		products: new(ProductRepoMock),
		billing:  new(BillingRepoMock),
		carts:    new(CartClearerMock),
		provider: new(SessionRetrieverMock),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	return New(log, m.users, m.products, m.billing, m.carts, m.provider, "usd"), m
}

func (m reconcilerMocks) assertExpectations(t *testing.T) {
	t.Helper()
	m.users.AssertExpectations(t)
	m.products.AssertExpectations(t)
	m.billing.AssertExpectations(t)
	m.carts.AssertExpectations(t)
	m.provider.AssertExpectations(t)
}

func eventFor(t *testing.T, eventType string, object any) paymentprovider.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	var event paymentprovider.Event
	event.Type = eventType
	event.Data.Object = raw
	return event
}

func storedProduct(id int64, price string) *models.Product {
	return &models.Product{
		ID:     id,
		NameEN: "Stored product",
		Price:  decimal.RequireFromString(price),
		Active: true,
	}
}

func TestProcessEvent_UnknownTypeAcknowledged(t *testing.T) {
	r, m := newTestReconciler(t)

	err := r.ProcessEvent(context.Background(), eventFor(t, "invoice.paid", map[string]string{"id": "in_1"}))
	assert.NoError(t, err)
	m.assertExpectations(t)
}

func TestCheckoutCompleted_ProductPurchaseRecorded(t *testing.T) {
	r, m := newTestReconciler(t)

	m.users.On("GetUserByUID", mock.Anything, "user-1").
		Return(&models.User{UID: "user-1", UserType: models.UserTypeBasic}, nil).Once()
	m.products.On("GetProduct", mock.Anything, int64(42)).
		Return(storedProduct(42, "25.00"), nil).Once()
	m.billing.On("UpsertPurchase", mock.Anything, mock.MatchedBy(func(p models.Purchase) bool {
		return p.UserUID == "user-1" &&
			p.ProductID == 42 &&
			p.Quantity == 2 &&
			p.Amount.Equal(decimal.RequireFromString("50.00")) &&
			p.Currency == "eur" &&
			p.CheckoutSessionID == "cs_1" &&
			!p.DiscountApplied
	})).Return(nil).Once()

	session := paymentprovider.Session{
		ID:       "cs_1",
		Currency: "eur",
		Metadata: map[string]string{
			"type":             "product",
			"user_uid":         "user-1",
			"product_id":       "42",
			"quantity":         "2",
			"discount_applied": "false",
		},
	}
	err := r.ProcessEvent(context.Background(), eventFor(t, paymentprovider.EventCheckoutCompleted, session))
	require.NoError(t, err)
	m.assertExpectations(t)
}

func TestCheckoutCompleted_DiscountedAmountRecomputed(t *testing.T) {
	r, m := newTestReconciler(t)

	m.users.On("GetUserByUID", mock.Anything, "user-1").
		Return(&models.User{UID: "user-1", UserType: models.UserTypePro}, nil).Once()
	m.products.On("GetProduct", mock.Anything, int64(42)).
		Return(storedProduct(42, "25.00"), nil).Once()
	m.billing.On("UpsertPurchase", mock.Anything, mock.MatchedBy(func(p models.Purchase) bool {
		return p.Amount.Equal(decimal.RequireFromString("20.00")) &&
			p.Currency == "usd" &&
			p.DiscountApplied
	})).Return(nil).Once()

	// No currency on the session; the configured default fills in.
	session := paymentprovider.Session{
		ID: "cs_2",
		Metadata: map[string]string{
			"type":             "product",
			"user_uid":         "user-1",
			"product_id":       "42",
			"discount_applied": "true",
		},
	}
	err := r.ProcessEvent(context.Background(), eventFor(t, paymentprovider.EventCheckoutCompleted, session))
	require.NoError(t, err)
	m.assertExpectations(t)
}

func TestCheckoutCompleted_UnparseableMetadataAcknowledged(t *testing.T) {
	r, m := newTestReconciler(t)

	session := paymentprovider.Session{
		ID:       "cs_3",
		Metadata: map[string]string{"type": "gift_card", "user_uid": "user-1"},
	}
	err := r.ProcessEvent(context.Background(), eventFor(t, paymentprovider.EventCheckoutCompleted, session))
	assert.NoError(t, err)
	m.assertExpectations(t)
}

func TestCheckoutCompleted_UnknownUserAcknowledged(t *testing.T) {
	r, m := newTestReconciler(t)

	m.users.On("GetUserByUID", mock.Anything, "ghost").
		Return(nil, repository.ErrNotFound).Once()

	session := paymentprovider.Session{
		ID: "cs_4",
		Metadata: map[string]string{
			"type":       "product",
			"user_uid":   "ghost",
			"product_id": "42",
		},
	}
	err := r.ProcessEvent(context.Background(), eventFor(t, paymentprovider.EventCheckoutCompleted, session))
	assert.NoError(t, err)
	m.assertExpectations(t)
}

func TestCheckoutCompleted_UserLookupFailurePropagates(t *testing.T) {
	r, m := newTestReconciler(t)

	m.users.On("GetUserByUID", mock.Anything, "user-1").
		Return(nil, errors.New("connection refused")).Once()

	session := paymentprovider.Session{
		ID: "cs_5",
		Metadata: map[string]string{
			"type":       "product",
			"user_uid":   "user-1",
			"product_id": "42",
		},
	}
	err := r.ProcessEvent(context.Background(), eventFor(t, paymentprovider.EventCheckoutCompleted, session))
	assert.Error(t, err)
	m.assertExpectations(t)
}

func TestCheckoutCompleted_VanishedProductSkipsLine(t *testing.T) {
	r, m := newTestReconciler(t)

	m.users.On("GetUserByUID", mock.Anything, "user-1").
		Return(&models.User{UID: "user-1"}, nil).Once()
	m.products.On("GetProduct", mock.Anything, int64(42)).
		Return(nil, repository.ErrNotFound).Once()

	session := paymentprovider.Session{
		ID: "cs_6",
		Metadata: map[string]string{
			"type":       "product",
			"user_uid":   "user-1",
			"product_id": "42",
		},
	}
	err := r.ProcessEvent(context.Background(), eventFor(t, paymentprovider.EventCheckoutCompleted, session))
	assert.NoError(t, err)
	m.assertExpectations(t)
}

func TestCheckoutCompleted_CartPurchasesAndClear(t *testing.T) {
	r, m := newTestReconciler(t)

	m.users.On("GetUserByUID", mock.Anything, "user-1").
		Return(&models.User{UID: "user-1"}, nil).Once()
	m.products.On("GetProduct", mock.Anything, int64(1)).
		Return(storedProduct(1, "10.00"), nil).Once()
	m.products.On("GetProduct", mock.Anything, int64(7)).
		Return(storedProduct(7, "5.00"), nil).Once()
	m.billing.On("UpsertPurchase", mock.Anything, mock.MatchedBy(func(p models.Purchase) bool {
		return p.ProductID == 1 && p.Quantity == 2 && p.Amount.Equal(decimal.RequireFromString("20.00"))
	})).Return(nil).Once()
	m.billing.On("UpsertPurchase", mock.Anything, mock.MatchedBy(func(p models.Purchase) bool {
		return p.ProductID == 7 && p.Quantity == 1 && p.Amount.Equal(decimal.RequireFromString("5.00"))
	})).Return(nil).Once()
	m.carts.On("ClearCart", mock.Anything, "user-1").Return(nil).Once()

	session := paymentprovider.Session{
		ID:       "cs_7",
		Currency: "usd",
		Metadata: map[string]string{
			"type":     "product_cart",
			"user_uid": "user-1",
			"cart":     "1:2|7:1",
		},
	}
	err := r.ProcessEvent(context.Background(), eventFor(t, paymentprovider.EventCheckoutCompleted, session))
	require.NoError(t, err)
	m.assertExpectations(t)
}

func TestCheckoutCompleted_CartClearFailureIsNotFatal(t *testing.T) {
	r, m := newTestReconciler(t)

	m.users.On("GetUserByUID", mock.Anything, "user-1").
		Return(&models.User{UID: "user-1"}, nil).Once()
	m.products.On("GetProduct", mock.Anything, int64(1)).
		Return(storedProduct(1, "10.00"), nil).Once()
	m.billing.On("UpsertPurchase", mock.Anything, mock.Anything).Return(nil).Once()
	m.carts.On("ClearCart", mock.Anything, "user-1").
		Return(errors.New("redis down")).Once()

	session := paymentprovider.Session{
		ID:       "cs_8",
		Currency: "usd",
		Metadata: map[string]string{
			"type":     "product_cart",
			"user_uid": "user-1",
			"cart":     "1:1",
		},
	}
	err := r.ProcessEvent(context.Background(), eventFor(t, paymentprovider.EventCheckoutCompleted, session))
	assert.NoError(t, err)
	m.assertExpectations(t)
}

func TestCheckoutCompleted_SubscriptionActivatedAndOwnerPromoted(t *testing.T) {
	r, m := newTestReconciler(t)

	expiresAt := time.Now().Add(30 * 24 * time.Hour).Unix()
	m.users.On("GetUserByUID", mock.Anything, "user-1").
		Return(&models.User{UID: "user-1", UserType: models.UserTypeBasic}, nil).Twice()
	m.billing.On("UpsertSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
		return sub.UserUID == "user-1" &&
			sub.CustomerID == "cus_1" &&
			sub.ProviderSubscriptionID == "sub_1" &&
			sub.PriceID == "price_1" &&
			sub.Status == models.SubscriptionStatusActive &&
			sub.CurrentPeriodEnd != nil &&
			sub.CurrentPeriodEnd.Unix() == expiresAt
	})).Return(nil).Once()
	m.users.On("SetUserType", mock.Anything, "user-1", models.UserTypePro).Return(nil).Once()

	session := paymentprovider.Session{
		ID:             "cs_9",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		ExpiresAt:      expiresAt,
		Metadata: map[string]string{
			"type":     "subscription",
			"user_uid": "user-1",
			"price_id": "price_1",
		},
	}
	err := r.ProcessEvent(context.Background(), eventFor(t, paymentprovider.EventCheckoutCompleted, session))
	require.NoError(t, err)
	// The completed session is proof of payment; no lifecycle event is
	// needed before the row goes active and the owner is promoted.
	m.billing.AssertNotCalled(t, "GetSubscription", mock.Anything, mock.Anything)
	m.assertExpectations(t)
}

func TestCheckoutCompleted_SubscriptionOwnerAlreadyPro(t *testing.T) {
	r, m := newTestReconciler(t)

	m.users.On("GetUserByUID", mock.Anything, "user-1").
		Return(&models.User{UID: "user-1", UserType: models.UserTypePro}, nil).Twice()
	m.billing.On("UpsertSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
		return sub.ProviderSubscriptionID == "sub_1" &&
			sub.Status == models.SubscriptionStatusActive &&
			sub.CurrentPeriodEnd == nil
	})).Return(nil).Once()

	session := paymentprovider.Session{
		ID:             "cs_10",
		SubscriptionID: "sub_1",
		Metadata: map[string]string{
			"type":     "subscription",
			"user_uid": "user-1",
		},
	}
	err := r.ProcessEvent(context.Background(), eventFor(t, paymentprovider.EventCheckoutCompleted, session))
	require.NoError(t, err)
	m.users.AssertNotCalled(t, "SetUserType", mock.Anything, mock.Anything, mock.Anything)
	m.assertExpectations(t)
}

func TestSubscriptionUpdated_ActiveWithOwnerPromotes(t *testing.T) {
	r, m := newTestReconciler(t)

	m.billing.On("UpsertSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
		return sub.ProviderSubscriptionID == "sub_1" &&
			sub.Status == models.SubscriptionStatusActive &&
			sub.CurrentPeriodEnd != nil
	})).Return(nil).Once()
	m.billing.On("GetSubscription", mock.Anything, "sub_1").
		Return(&models.Subscription{
			UserUID:                "user-1",
			ProviderSubscriptionID: "sub_1",
			Status:                 models.SubscriptionStatusActive,
		}, nil).Once()
	m.users.On("GetUserByUID", mock.Anything, "user-1").
		Return(&models.User{UID: "user-1", UserType: models.UserTypeBasic}, nil).Once()
	m.users.On("SetUserType", mock.Anything, "user-1", models.UserTypePro).Return(nil).Once()

	obj := paymentprovider.SubscriptionObject{
		ID:               "sub_1",
		CustomerID:       "cus_1",
		Status:           models.SubscriptionStatusActive,
		CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour).Unix(),
	}
	err := r.ProcessEvent(context.Background(), eventFor(t, paymentprovider.EventSubscriptionUpdated, obj))
	require.NoError(t, err)
	m.assertExpectations(t)
}

func TestSubscriptionUpdated_AlreadyProSkipsWrite(t *testing.T) {
	r, m := newTestReconciler(t)

	m.billing.On("UpsertSubscription", mock.Anything, mock.Anything).Return(nil).Once()
	m.billing.On("GetSubscription", mock.Anything, "sub_1").
		Return(&models.Subscription{
			UserUID:                "user-1",
			ProviderSubscriptionID: "sub_1",
			Status:                 models.SubscriptionStatusActive,
		}, nil).Once()
	m.users.On("GetUserByUID", mock.Anything, "user-1").
		Return(&models.User{UID: "user-1", UserType: models.UserTypePro}, nil).Once()

	obj := paymentprovider.SubscriptionObject{ID: "sub_1", Status: models.SubscriptionStatusActive}
	err := r.ProcessEvent(context.Background(), eventFor(t, paymentprovider.EventSubscriptionUpdated, obj))
	require.NoError(t, err)
	m.users.AssertNotCalled(t, "SetUserType", mock.Anything, mock.Anything, mock.Anything)
	m.assertExpectations(t)
}

func TestSubscriptionUpdated_ActiveWithoutOwnerDefersPromotion(t *testing.T) {
	r, m := newTestReconciler(t)

	m.billing.On("UpsertSubscription", mock.Anything, mock.Anything).Return(nil).Once()
	m.billing.On("GetSubscription", mock.Anything, "sub_1").
		Return(&models.Subscription{
			ProviderSubscriptionID: "sub_1",
			Status:                 models.SubscriptionStatusActive,
		}, nil).Once()

	obj := paymentprovider.SubscriptionObject{ID: "sub_1", Status: models.SubscriptionStatusActive}
	err := r.ProcessEvent(context.Background(), eventFor(t, paymentprovider.EventSubscriptionUpdated, obj))
	require.NoError(t, err)
	m.users.AssertNotCalled(t, "SetUserType", mock.Anything, mock.Anything, mock.Anything)
	m.assertExpectations(t)
}

func TestSubscriptionDeleted_RecordsCanceledWithoutDemotion(t *testing.T) {
	r, m := newTestReconciler(t)

	m.billing.On("UpsertSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
		return sub.ProviderSubscriptionID == "sub_1" &&
			sub.Status == models.SubscriptionStatusCanceled
	})).Return(nil).Once()

	obj := paymentprovider.SubscriptionObject{
		ID:     "sub_1",
		Status: models.SubscriptionStatusActive, // the payload status is overridden
	}
	err := r.ProcessEvent(context.Background(), eventFor(t, paymentprovider.EventSubscriptionDeleted, obj))
	require.NoError(t, err)
	m.users.AssertNotCalled(t, "SetUserType", mock.Anything, mock.Anything, mock.Anything)
	m.assertExpectations(t)
}

func TestSubscriptionUpdated_WriteFailurePropagates(t *testing.T) {
	r, m := newTestReconciler(t)

	m.billing.On("UpsertSubscription", mock.Anything, mock.Anything).
		Return(errors.New("write failed")).Once()

	obj := paymentprovider.SubscriptionObject{ID: "sub_1", Status: models.SubscriptionStatusActive}
	err := r.ProcessEvent(context.Background(), eventFor(t, paymentprovider.EventSubscriptionUpdated, obj))
	assert.Error(t, err)
	m.assertExpectations(t)
}

func TestConfirmSession_ReconcilesCartCheckout(t *testing.T) {
	r, m := newTestReconciler(t)

	m.provider.On("RetrieveSession", mock.Anything, "cs_11").
		Return(&paymentprovider.Session{
			ID:       "cs_11",
			Currency: "usd",
			Metadata: map[string]string{
				"type":     "product_cart",
				"user_uid": "user-1",
				"cart":     "1:1",
			},
		}, nil).Once()
	m.users.On("GetUserByUID", mock.Anything, "user-1").
		Return(&models.User{UID: "user-1"}, nil).Once()
	m.products.On("GetProduct", mock.Anything, int64(1)).
		Return(storedProduct(1, "10.00"), nil).Once()
	m.billing.On("UpsertPurchase", mock.Anything, mock.MatchedBy(func(p models.Purchase) bool {
		return p.CheckoutSessionID == "cs_11" && p.ProductID == 1
	})).Return(nil).Once()
	m.carts.On("ClearCart", mock.Anything, "user-1").Return(nil).Once()

	session, err := r.ConfirmSession(context.Background(), "cs_11")
	require.NoError(t, err)
	assert.Equal(t, "cs_11", session.ID)
	m.assertExpectations(t)
}

func TestConfirmSession_ReconcileFailureStillReturnsSession(t *testing.T) {
	r, m := newTestReconciler(t)

	m.provider.On("RetrieveSession", mock.Anything, "cs_13").
		Return(&paymentprovider.Session{
			ID: "cs_13",
			Metadata: map[string]string{
				"type":       "product",
				"user_uid":   "user-1",
				"product_id": "42",
			},
		}, nil).Once()
	m.users.On("GetUserByUID", mock.Anything, "user-1").
		Return(nil, errors.New("connection refused")).Once()

	// The webhook delivery will retry the write; the success page only
	// needs the session back.
	session, err := r.ConfirmSession(context.Background(), "cs_13")
	require.NoError(t, err)
	assert.Equal(t, "cs_13", session.ID)
	m.assertExpectations(t)
}

func TestConfirmSession_ProviderFailure(t *testing.T) {
	r, m := newTestReconciler(t)

	m.provider.On("RetrieveSession", mock.Anything, "cs_12").
		Return(nil, errors.New("timeout")).Once()

	_, err := r.ConfirmSession(context.Background(), "cs_12")
	assert.Error(t, err)
	m.assertExpectations(t)
}
