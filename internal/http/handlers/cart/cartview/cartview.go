// Package cartview serves the resolved cart.
package cartview

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
	cartservice "github.com/ousashop/shop-backend/internal/services/cart"
)

// Service resolves the cart against the live catalog.
type Service interface {
	Resolve(ctx context.Context, user *models.User) (*cartservice.View, error)
}

// Handler serves cart views.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New creates the handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary View the cart
// @Description Returns the cart priced for the current user, with line and grand totals. Vanished products are dropped from the view.
// @Tags Cart
// @Produce json
// @Success 200 {object} response.Response "Resolved cart"
// @Failure 401 {object} response.ErrorResponse "Not authenticated"
// @Failure 500 {object} response.ErrorResponse "Server error"
// @Router /cart [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cart.cartview"

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

	view, err := h.service.Resolve(r.Context(), user)
	if err != nil {
		log.Error("failed to resolve cart", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to load cart"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(view))
}
