package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provider-reported subscription statuses, stored verbatim.
const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusUnpaid     = "unpaid"
)

// Purchase is one fulfilled line of a completed checkout session.
// (CheckoutSessionID, ProductID) is the natural key: re-delivery of the
// same webhook event updates the row instead of duplicating it.
type Purchase struct {
	ID                int64           `json:"id"`
	UserUID           string          `json:"user_uid"`
	ProductID         int64           `json:"product_id"`
	Quantity          int             `json:"quantity"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	CheckoutSessionID string          `json:"checkout_session_id"`
	PaymentIntentID   string          `json:"payment_intent_id"`
	DiscountApplied   bool            `json:"discount_applied"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Subscription mirrors the provider's subscription object, keyed by the
// remote subscription id. UserUID is empty when a lifecycle event arrived
// before the checkout completion that names the owner.
type Subscription struct {
	ID                     int64      `json:"id"`
	UserUID                string     `json:"user_uid"`
	CustomerID             string     `json:"customer_id"`
	ProviderSubscriptionID string     `json:"provider_subscription_id"`
	PriceID                string     `json:"price_id"`
	Status                 string     `json:"status"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}
