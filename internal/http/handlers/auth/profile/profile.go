// Package profile returns the authenticated user and their purchase
// history.
package profile

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/ousashop/shop-backend/internal/http/middlewarectx"
	"github.com/ousashop/shop-backend/internal/http/response"
	"github.com/ousashop/shop-backend/internal/lib/sl"
	"github.com/ousashop/shop-backend/internal/models"
)

// PurchaseLister reads the purchase history of a user.
type PurchaseLister interface {
	ListPurchasesByUser(ctx context.Context, userUID string) ([]*models.Purchase, error)
}

// Handler serves the profile of the current user.
type Handler struct {
	log       *slog.Logger
	purchases PurchaseLister
}

// New creates the handler.
func New(log *slog.Logger, purchases PurchaseLister) *Handler {
	return &Handler{log: log, purchases: purchases}
}

// ServeHTTP godoc
// @Summary Current user profile
// @Description Returns the account attached to the presented access token, with its purchase history newest first.
// @Tags Auth
// @Produce json
// @Success 200 {object} response.Response "User profile and purchases"
// @Failure 401 {object} response.ErrorResponse "Not authenticated"
// @Failure 500 {object} response.ErrorResponse "Server error"
// @Router /profile [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.profile"

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

	purchases, err := h.purchases.ListPurchasesByUser(r.Context(), user.UID)
	if err != nil {
		log.Error("failed to list purchases", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to load profile"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"user":      user,
		"purchases": purchases,
	}))
}
