// Package webhook receives payment-provider events and hands them to
// the billing reconciler.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/ousashop/shop-backend/internal/lib/sl"
	"github.com/ousashop/shop-backend/internal/paymentprovider"
)

// Service processes webhook events.
type Service interface {
	ProcessEvent(ctx context.Context, event paymentprovider.Event) error
}

// Handler verifies and dispatches webhook deliveries.
type Handler struct {
	log           *slog.Logger
	service       Service
	webhookSecret string
}

// New creates the handler. An empty secret disables signature
// verification; that is only acceptable outside production.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: secret,
	}
}

// verifySignature checks the X-Api-Signature header: HMAC-SHA256 over
// the raw body, base64-encoded, compared in constant time.
func (h *Handler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expectedSig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expectedSig), []byte(signature))
}

// ServeHTTP godoc
// @Summary Payment provider webhook
// @Description Receives provider events. Responds 200 once the event is durably applied or safely skipped; a non-2xx response makes the provider redeliver.
// @Tags Billing
// @Accept json
// @Produce json
// @Success 200 "Event applied or skipped"
// @Failure 400 "Malformed payload"
// @Failure 401 "Invalid signature"
// @Failure 500 "Local write failed, redeliver"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"
	log := h.log.With(slog.String("op", op))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	if h.webhookSecret != "" {
		signature := r.Header.Get("X-Api-Signature")
		if signature == "" || !h.verifySignature(body, signature) {
			log.Error("invalid or missing webhook signature")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	var event paymentprovider.Event
	if err := json.Unmarshal(body, &event); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.service.ProcessEvent(r.Context(), event); err != nil {
		log.Error("failed to process webhook event", sl.Err(err),
			slog.String("event", event.Type))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	log.Info("webhook processed", slog.String("event", event.Type))
	w.WriteHeader(http.StatusOK)
}
