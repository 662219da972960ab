// Package checkoutsubscription starts a pro membership checkout.
package checkoutsubscription

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/ousashop/shop-backend/internal/http/middlewarectx"
	"github.com/ousashop/shop-backend/internal/http/response"
	"github.com/ousashop/shop-backend/internal/lib/sl"
	"github.com/ousashop/shop-backend/internal/models"
	"github.com/ousashop/shop-backend/internal/paymentprovider"
	checkoutservice "github.com/ousashop/shop-backend/internal/services/checkout"
)

// Service starts checkout sessions.
type Service interface {
	StartSubscription(ctx context.Context, user *models.User) (*paymentprovider.Session, error)
}

// Handler handles subscription checkout requests.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New creates the handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Subscribe to the pro plan
// @Description Creates a subscription-mode checkout session for the monthly pro plan and returns the redirect URL.
// @Tags Billing
// @Produce json
// @Success 200 {object} response.Response "Checkout URL and session id"
// @Failure 401 {object} response.ErrorResponse "Not authenticated"
// @Failure 403 {object} response.ErrorResponse "Email not verified"
// @Failure 500 {object} response.ErrorResponse "Server error"
// @Failure 503 {object} response.ErrorResponse "Payments not configured"
// @Router /checkout/subscription [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.checkoutsubscription"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	user, ok := middlewarectx.UserFromContext(r.Context())
	if !ok {
		log.Error("user not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	session, err := h.service.StartSubscription(r.Context(), user)
	if err != nil {
		switch {
		case errors.Is(err, checkoutservice.ErrEmailNotVerified):
			log.Error("unverified account attempted checkout")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("email is not verified"))
		case errors.Is(err, paymentprovider.ErrNotConfigured):
			log.Error("payments are not configured")
			w.WriteHeader(http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("payments are not available"))
		default:
			log.Error("failed to start checkout", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to start checkout"))
		}
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"checkout_url": session.URL,
		"session_id":   session.ID,
	}))
}
