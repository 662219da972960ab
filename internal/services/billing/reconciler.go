// Package billing reconciles payment-provider webhook events with the
// local purchase and subscription records. Every handler is idempotent:
// the provider may deliver an event more than once and in any order
// relative to other events of the same session.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ousashop/shop-backend/internal/lib/money"
	"github.com/ousashop/shop-backend/internal/lib/sl"
	"github.com/ousashop/shop-backend/internal/models"
	"github.com/ousashop/shop-backend/internal/paymentprovider"
	"github.com/ousashop/shop-backend/internal/services/checkout"
	"github.com/ousashop/shop-backend/internal/storage/repository"
)

// UserRepo reads and promotes users.
type UserRepo interface {
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
	SetUserType(ctx context.Context, userUID, userType string) error
}

// ProductRepo resolves products for fulfillment, including inactive
// ones: deactivation after checkout must not lose the purchase.
type ProductRepo interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
}

// BillingRepo persists purchases and subscriptions.
type BillingRepo interface {
	UpsertPurchase(ctx context.Context, p models.Purchase) error
	UpsertSubscription(ctx context.Context, sub models.Subscription) error
	GetSubscription(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
}

// CartClearer empties a user's cart after a successful cart checkout.
type CartClearer interface {
	ClearCart(ctx context.Context, userUID string) error
}

// SessionRetriever fetches checkout sessions from the provider.
type SessionRetriever interface {
	RetrieveSession(ctx context.Context, sessionID string) (*paymentprovider.Session, error)
}

// Reconciler applies webhook events to local state.
type Reconciler struct {
	log             *slog.Logger
	users           UserRepo
	products        ProductRepo
	billing         BillingRepo
	carts           CartClearer
	provider        SessionRetriever
	defaultCurrency string
}

// New creates the reconciler.
func New(log *slog.Logger, users UserRepo, products ProductRepo, billing BillingRepo,
	carts CartClearer, provider SessionRetriever, defaultCurrency string) *Reconciler {
	return &Reconciler{
		log:             log,
		users:           users,
		products:        products,
		billing:         billing,
		carts:           carts,
		provider:        provider,
		defaultCurrency: defaultCurrency,
	}
}

// ProcessEvent dispatches one webhook event. Unrecognized event types
// are acknowledged without action. A returned error means the local
// write failed and the provider should redeliver.
func (r *Reconciler) ProcessEvent(ctx context.Context, event paymentprovider.Event) error {
	const op = "billing.ProcessEvent"

	switch event.Type {
	case paymentprovider.EventCheckoutCompleted:
		var session paymentprovider.Session
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return r.HandleCheckoutCompleted(ctx, &session)
	case paymentprovider.EventSubscriptionUpdated:
		var sub paymentprovider.SubscriptionObject
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return r.handleSubscriptionLifecycle(ctx, &sub, sub.Status)
	case paymentprovider.EventSubscriptionDeleted:
		var sub paymentprovider.SubscriptionObject
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return r.handleSubscriptionLifecycle(ctx, &sub, models.SubscriptionStatusCanceled)
	default:
		r.log.Debug("ignoring webhook event", slog.String("type", event.Type))
		return nil
	}
}

// HandleCheckoutCompleted fulfills a completed session according to the
// intent embedded in its metadata. Events whose intent cannot be acted
// on (unknown user, unparseable metadata) are logged and acknowledged:
// redelivery would not change the outcome.
func (r *Reconciler) HandleCheckoutCompleted(ctx context.Context, session *paymentprovider.Session) error {
	const op = "billing.HandleCheckoutCompleted"
	log := r.log.With(slog.String("session_id", session.ID))

	intent, err := checkout.ParseIntent(session.Metadata)
	if err != nil {
		log.Warn("session metadata does not parse, skipping", sl.Err(err))
		return nil
	}
	log = log.With(slog.String("user_uid", intent.UserUID))

	user, err := r.users.GetUserByUID(ctx, intent.UserUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("session references unknown user, skipping")
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	switch intent.Kind {
	case checkout.IntentProduct:
		line := checkout.CartLine{ProductID: intent.ProductID, Quantity: intent.Quantity}
		if err := r.recordPurchase(ctx, log, session, intent, line); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	case checkout.IntentProductCart:
		for _, line := range intent.Lines {
			if err := r.recordPurchase(ctx, log, session, intent, line); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		if err := r.carts.ClearCart(ctx, user.UID); err != nil {
			log.Warn("failed to clear cart after checkout", sl.Err(err))
		}
		return nil
	case checkout.IntentSubscription:
		if err := r.linkSubscription(ctx, log, session, intent); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	default:
		log.Warn("unknown intent kind, skipping", slog.String("kind", string(intent.Kind)))
		return nil
	}
}

// recordPurchase writes one purchase line. The amount is recomputed from
// the stored price with the same discount rule used at checkout, so a
// redelivered event produces the identical row.
func (r *Reconciler) recordPurchase(ctx context.Context, log *slog.Logger,
	session *paymentprovider.Session, intent *checkout.Intent, line checkout.CartLine) error {
	product, err := r.products.GetProduct(ctx, line.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("session references unknown product, skipping line",
				slog.Int64("product_id", line.ProductID))
			return nil
		}
		return err
	}

	unitPrice := product.Price
	if intent.DiscountApplied {
		unitPrice = money.ApplyProDiscount(unitPrice)
	}
	currency := session.Currency
	if currency == "" {
		currency = r.defaultCurrency
	}

	purchase := models.Purchase{
		UserUID:           intent.UserUID,
		ProductID:         product.ID,
		Quantity:          line.Quantity,
		Amount:            money.LineTotal(unitPrice, line.Quantity),
		Currency:          currency,
		CheckoutSessionID: session.ID,
		PaymentIntentID:   session.PaymentIntentID,
		DiscountApplied:   intent.DiscountApplied,
	}
	if err := r.billing.UpsertPurchase(ctx, purchase); err != nil {
		return err
	}
	log.Info("purchase recorded",
		slog.Int64("product_id", product.ID),
		slog.Int("quantity", line.Quantity))
	return nil
}

// linkSubscription records the paid subscription and promotes its owner.
// A completed subscription-mode session is proof of payment, so the row
// becomes active right away with the period end taken from the session;
// a later lifecycle event overwrites both with the provider's values.
func (r *Reconciler) linkSubscription(ctx context.Context, log *slog.Logger,
	session *paymentprovider.Session, intent *checkout.Intent) error {
	if session.SubscriptionID == "" {
		log.Warn("subscription session carries no subscription id, skipping")
		return nil
	}

	var periodEnd *time.Time
	if session.ExpiresAt > 0 {
		t := time.Unix(session.ExpiresAt, 0).UTC()
		periodEnd = &t
	}

	sub := models.Subscription{
		UserUID:                intent.UserUID,
		CustomerID:             session.CustomerID,
		ProviderSubscriptionID: session.SubscriptionID,
		PriceID:                intent.PriceID,
		Status:                 models.SubscriptionStatusActive,
		CurrentPeriodEnd:       periodEnd,
	}
	if err := r.billing.UpsertSubscription(ctx, sub); err != nil {
		return err
	}
	log.Info("subscription linked",
		slog.String("subscription_id", session.SubscriptionID),
		slog.String("status", sub.Status))

	return r.promoteOwner(ctx, log, intent.UserUID)
}

// handleSubscriptionLifecycle records the provider-reported status and
// promotes the owner when the subscription becomes active. Cancellation
// never demotes: access runs to the end of the paid period.
func (r *Reconciler) handleSubscriptionLifecycle(ctx context.Context,
	sub *paymentprovider.SubscriptionObject, status string) error {
	const op = "billing.handleSubscriptionLifecycle"
	log := r.log.With(slog.String("subscription_id", sub.ID))

	var periodEnd *time.Time
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		periodEnd = &t
	}

	record := models.Subscription{
		CustomerID:             sub.CustomerID,
		ProviderSubscriptionID: sub.ID,
		Status:                 status,
		CurrentPeriodEnd:       periodEnd,
	}
	if err := r.billing.UpsertSubscription(ctx, record); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("subscription status recorded", slog.String("status", status))

	if status != models.SubscriptionStatusActive {
		return nil
	}

	stored, err := r.billing.GetSubscription(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if stored.UserUID == "" {
		// Owner unknown until the checkout-completed event arrives;
		// promotion happens there instead.
		log.Info("active subscription has no owner yet")
		return nil
	}
	if err := r.promoteOwner(ctx, log, stored.UserUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *Reconciler) promoteOwner(ctx context.Context, log *slog.Logger, userUID string) error {
	user, err := r.users.GetUserByUID(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("subscription owner no longer exists, skipping promotion",
				slog.String("user_uid", userUID))
			return nil
		}
		return err
	}
	if user.UserType == models.UserTypePro {
		return nil
	}
	if err := r.users.SetUserType(ctx, user.UID, models.UserTypePro); err != nil {
		return err
	}
	log.Info("user promoted to pro", slog.String("user_uid", user.UID))
	return nil
}

// ConfirmSession backs the post-payment success page: it fetches the
// session from the provider and applies it the same way the webhook
// would, so purchases and entitlements are in place even when the
// webhook has not landed yet. Reconciliation is best effort here; the
// idempotent webhook delivery remains authoritative.
func (r *Reconciler) ConfirmSession(ctx context.Context, sessionID string) (*paymentprovider.Session, error) {
	const op = "billing.ConfirmSession"

	session, err := r.provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := r.HandleCheckoutCompleted(ctx, session); err != nil {
		r.log.Warn("failed to reconcile confirmed session", sl.Err(err),
			slog.String("session_id", session.ID))
	}
	return session, nil
}
