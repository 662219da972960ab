package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ousashop/shop-backend/internal/models"
)

// UpsertPurchase inserts or updates a purchase keyed by
// (checkout_session_id, product_id). The database constraint arbitrates
// concurrent deliveries of the same webhook event: the second write
// becomes an update, never a duplicate row.
func (s *Storage) UpsertPurchase(ctx context.Context, p models.Purchase) error {
	const op = "storage.UpsertPurchase"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO purchases (user_uid, product_id, quantity, amount, currency,
			      checkout_session_id, payment_intent_id, discount_applied)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  ON CONFLICT (checkout_session_id, product_id) DO UPDATE SET
			      user_uid = EXCLUDED.user_uid,
			      quantity = EXCLUDED.quantity,
			      amount = EXCLUDED.amount,
			      currency = EXCLUDED.currency,
			      payment_intent_id = EXCLUDED.payment_intent_id,
			      discount_applied = EXCLUDED.discount_applied`
	_, err := s.DB.ExecContext(ctx, query,
		p.UserUID, p.ProductID, p.Quantity, p.Amount, p.Currency,
		p.CheckoutSessionID, p.PaymentIntentID, p.DiscountApplied)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpsertSubscription inserts or updates a subscription keyed by the
// remote subscription id. Empty user/customer/price fields never
// overwrite known values, so checkout-completed and lifecycle events may
// arrive in either order.
func (s *Storage) UpsertSubscription(ctx context.Context, sub models.Subscription) error {
	const op = "storage.UpsertSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var userUID sql.NullString
	if sub.UserUID != "" {
		userUID = sql.NullString{String: sub.UserUID, Valid: true}
	}
	var periodEnd sql.NullTime
	if sub.CurrentPeriodEnd != nil {
		periodEnd = sql.NullTime{Time: *sub.CurrentPeriodEnd, Valid: true}
	}

	query := `INSERT INTO subscriptions (user_uid, customer_id, provider_subscription_id,
			      price_id, status, current_period_end)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (provider_subscription_id) DO UPDATE SET
			      user_uid = COALESCE(EXCLUDED.user_uid, subscriptions.user_uid),
			      customer_id = CASE WHEN EXCLUDED.customer_id <> '' THEN EXCLUDED.customer_id
			                         ELSE subscriptions.customer_id END,
			      price_id = CASE WHEN EXCLUDED.price_id <> '' THEN EXCLUDED.price_id
			                      ELSE subscriptions.price_id END,
			      status = EXCLUDED.status,
			      current_period_end = EXCLUDED.current_period_end,
			      updated_at = now()`
	_, err := s.DB.ExecContext(ctx, query,
		userUID, sub.CustomerID, sub.ProviderSubscriptionID,
		sub.PriceID, sub.Status, periodEnd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetSubscription returns a subscription by the remote subscription id
// or ErrNotFound.
func (s *Storage) GetSubscription(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, COALESCE(user_uid::text, ''), customer_id, provider_subscription_id,
			      price_id, status, current_period_end, created_at, updated_at
			  FROM subscriptions
			  WHERE provider_subscription_id = $1`
	sub := &models.Subscription{}
	var periodEnd sql.NullTime
	row := s.DB.QueryRowContext(ctx, query, providerSubscriptionID)
	if err := row.Scan(&sub.ID, &sub.UserUID, &sub.CustomerID, &sub.ProviderSubscriptionID,
		&sub.PriceID, &sub.Status, &periodEnd, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = &periodEnd.Time
	}
	return sub, nil
}

// ListPurchasesByUser returns a user's purchases, newest first.
func (s *Storage) ListPurchasesByUser(ctx context.Context, userUID string) ([]*models.Purchase, error) {
	const op = "storage.ListPurchasesByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, product_id, quantity, amount, currency,
			      checkout_session_id, payment_intent_id, discount_applied, created_at
			  FROM purchases
			  WHERE user_uid = $1
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Purchase
	for rows.Next() {
		var p models.Purchase
		if err := rows.Scan(&p.ID, &p.UserUID, &p.ProductID, &p.Quantity, &p.Amount, &p.Currency,
			&p.CheckoutSessionID, &p.PaymentIntentID, &p.DiscountApplied, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
