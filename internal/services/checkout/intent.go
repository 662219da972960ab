package checkout

import (
	"fmt"
	"strconv"
	"strings"
)

// IntentKind discriminates what a checkout session was created for.
type IntentKind string

// The three kinds of buy intent encoded into session metadata.
const (
	IntentProduct      IntentKind = "product"
	IntentProductCart  IntentKind = "product_cart"
	IntentSubscription IntentKind = "subscription"
)

// CartLine is one (product, quantity) pair of a cart checkout.
type CartLine struct {
	ProductID int64
	Quantity  int
}

// Intent is the self-describing payload embedded in a checkout session's
// metadata. It is the sole source of truth at fulfillment time: the cart
// may already be cleared when the webhook arrives. Only the fields of
// the active Kind are meaningful.
type Intent struct {
	Kind    IntentKind
	UserUID string

	// IntentProduct
	ProductID int64
	Quantity  int

	// IntentProductCart
	Lines []CartLine

	// IntentProduct and IntentProductCart
	DiscountApplied bool

	// IntentSubscription; empty when an inline price was used.
	PriceID string
}

// Metadata serializes the intent into the provider's string map.
func (i Intent) Metadata() map[string]string {
	md := map[string]string{
		"type":     string(i.Kind),
		"user_uid": i.UserUID,
	}
	switch i.Kind {
	case IntentProduct:
		md["product_id"] = strconv.FormatInt(i.ProductID, 10)
		md["quantity"] = strconv.Itoa(i.Quantity)
		md["discount_applied"] = strconv.FormatBool(i.DiscountApplied)
	case IntentProductCart:
		md["cart"] = encodeCartLines(i.Lines)
		md["discount_applied"] = strconv.FormatBool(i.DiscountApplied)
	case IntentSubscription:
		md["price_id"] = i.PriceID
	}
	return md
}

// ParseIntent decodes session metadata back into an Intent. Unknown
// intent kinds are rejected explicitly rather than falling through.
func ParseIntent(md map[string]string) (*Intent, error) {
	const op = "checkout.ParseIntent"

	intent := &Intent{
		Kind:    IntentKind(md["type"]),
		UserUID: md["user_uid"],
	}
	if intent.UserUID == "" {
		return nil, fmt.Errorf("%s: missing user_uid", op)
	}

	switch intent.Kind {
	case IntentProduct:
		productID, err := strconv.ParseInt(md["product_id"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid product_id %q", op, md["product_id"])
		}
		intent.ProductID = productID
		intent.Quantity = 1
		if q := md["quantity"]; q != "" {
			quantity, err := strconv.Atoi(q)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid quantity %q", op, q)
			}
			intent.Quantity = quantity
		}
		intent.DiscountApplied = md["discount_applied"] == "true"
	case IntentProductCart:
		intent.Lines = decodeCartLines(md["cart"])
		intent.DiscountApplied = md["discount_applied"] == "true"
	case IntentSubscription:
		intent.PriceID = md["price_id"]
	default:
		return nil, fmt.Errorf("%s: unknown intent type %q", op, md["type"])
	}
	return intent, nil
}

// encodeCartLines renders lines as "pid:qty|pid:qty".
func encodeCartLines(lines []CartLine) string {
	entries := make([]string, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, fmt.Sprintf("%d:%d", line.ProductID, line.Quantity))
	}
	return strings.Join(entries, "|")
}

// decodeCartLines parses "pid:qty|pid:qty"; entries that do not parse
// are skipped, mirroring how stale cart entries are tolerated elsewhere.
func decodeCartLines(s string) []CartLine {
	if s == "" {
		return nil
	}
	var lines []CartLine
	for _, entry := range strings.Split(s, "|") {
		pidStr, qtyStr, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		pid, err := strconv.ParseInt(pidStr, 10, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.Atoi(qtyStr)
		if err != nil {
			continue
		}
		lines = append(lines, CartLine{ProductID: pid, Quantity: qty})
	}
	return lines
}
