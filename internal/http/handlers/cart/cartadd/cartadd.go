// Package cartadd puts products into the cart.
package cartadd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/ousashop/shop-backend/internal/http/middlewarectx"
	"github.com/ousashop/shop-backend/internal/http/response"
	"github.com/ousashop/shop-backend/internal/lib/sl"
	cartservice "github.com/ousashop/shop-backend/internal/services/cart"
)

// Service mutates the cart.
type Service interface {
	Add(ctx context.Context, userUID string, productID int64) error
}

// Handler handles add-to-cart requests.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New creates the handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Add a product to the cart
// @Description Increments the quantity of the product by one. The product must be active.
// @Tags Cart
// @Produce json
// @Param productID path int true "Product id"
// @Success 200 {object} response.Response "Product added"
// @Failure 400 {object} response.ErrorResponse "Invalid product id"
// @Failure 401 {object} response.ErrorResponse "Not authenticated"
// @Failure 404 {object} response.ErrorResponse "Product not found"
// @Failure 500 {object} response.ErrorResponse "Server error"
// @Router /cart/{productID} [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cart.cartadd"

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

	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		log.Error("invalid product id", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid product id"))
		return
	}

	if err := h.service.Add(r.Context(), user.UID, productID); err != nil {
		if errors.Is(err, cartservice.ErrProductNotFound) {
			log.Error("product not found", slog.Int64("product_id", productID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("product not found"))
			return
		}
		log.Error("failed to add product to cart", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to add product to cart"))
		return
	}

	render.JSON(w, r, response.OK())
}
