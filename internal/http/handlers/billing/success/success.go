// Package success serves the post-payment landing endpoint.
package success

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/ousashop/shop-backend/internal/http/response"
	"github.com/ousashop/shop-backend/internal/lib/sl"
	"github.com/ousashop/shop-backend/internal/paymentprovider"
)

// Service confirms checkout sessions with the provider.
type Service interface {
	ConfirmSession(ctx context.Context, sessionID string) (*paymentprovider.Session, error)
}

// Handler serves the success endpoint.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New creates the handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Payment success landing
// @Description Confirms the session with the provider and clears the cart for cart checkouts. A provider failure still yields 200: fulfillment arrives through the webhook.
// @Tags Billing
// @Produce json
// @Param session_id query string true "Checkout session id"
// @Success 200 {object} response.Response "Session summary or pending notice"
// @Failure 400 {object} response.ErrorResponse "Missing session_id"
// @Router /billing/success [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.success"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		log.Error("missing session_id query parameter")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing session_id"))
		return
	}

	session, err := h.service.ConfirmSession(r.Context(), sessionID)
	if err != nil {
		log.Warn("failed to confirm session with provider", sl.Err(err))
		render.JSON(w, r, response.StatusOKWithData(map[string]any{
			"message": "payment received, confirmation is still in progress",
		}))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message":        "payment successful",
		"session_id":     session.ID,
		"customer_email": session.CustomerEmail,
		"mode":           session.Mode,
	}))
}
