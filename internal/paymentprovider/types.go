package paymentprovider

import "encoding/json"

// Checkout session modes.
const (
	ModePayment      = "payment"
	ModeSubscription = "subscription"
)

// Webhook event types this application reacts to. Anything else is
// acknowledged and ignored.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// ProductData names a line item for the provider-hosted checkout page.
type ProductData struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Recurring marks an inline price as a recurring one.
type Recurring struct {
	Interval string `json:"interval"`
}

// PriceData is an inline price: currency, display data and the unit
// amount in minor currency units.
type PriceData struct {
	Currency    string      `json:"currency"`
	ProductData ProductData `json:"product_data"`
	UnitAmount  int64       `json:"unit_amount"`
	Recurring   *Recurring  `json:"recurring,omitempty"`
}

// LineItem references either a pre-configured remote price or carries an
// inline PriceData.
type LineItem struct {
	PriceID   string     `json:"price,omitempty"`
	PriceData *PriceData `json:"price_data,omitempty"`
	Quantity  int        `json:"quantity"`
}

// CreateSessionRequest is the request body for creating a checkout
// session.
type CreateSessionRequest struct {
	Mode          string            `json:"mode"`
	CustomerEmail string            `json:"customer_email"`
	LineItems     []LineItem        `json:"line_items"`
	SuccessURL    string            `json:"success_url"`
	CancelURL     string            `json:"cancel_url"`
	Metadata      map[string]string `json:"metadata"`
}

// Session is the provider's checkout session object, both as returned
// by the API and as embedded in checkout.session.completed events.
type Session struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Mode            string            `json:"mode"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerID      string            `json:"customer"`
	SubscriptionID  string            `json:"subscription"`
	PaymentIntentID string            `json:"payment_intent"`
	Currency        string            `json:"currency"`
	ExpiresAt       int64             `json:"expires_at"`
	Metadata        map[string]string `json:"metadata"`
}

// SubscriptionObject is the provider's subscription object as embedded
// in customer.subscription.* events.
type SubscriptionObject struct {
	ID               string `json:"id"`
	CustomerID       string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

// Event is the webhook envelope: {type, data: {object: {...}}}.
type Event struct {
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}
