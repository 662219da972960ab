// Package checkoutproduct starts a checkout session for one product.
package checkoutproduct

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/ousashop/shop-backend/internal/http/middlewarectx"
	"github.com/ousashop/shop-backend/internal/http/response"
	"github.com/ousashop/shop-backend/internal/lib/sl"
	"github.com/ousashop/shop-backend/internal/models"
	"github.com/ousashop/shop-backend/internal/paymentprovider"
	checkoutservice "github.com/ousashop/shop-backend/internal/services/checkout"
)

// Request is the optional body; quantity defaults to one.
type Request struct {
	Quantity int `json:"quantity"`
}

// Service starts checkout sessions.
type Service interface {
	StartProduct(ctx context.Context, user *models.User, productID int64, quantity int) (*paymentprovider.Session, error)
}

// Handler handles product checkout requests.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New creates the handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Buy one product
// @Description Creates a hosted checkout session for the product and returns the redirect URL. Pro users are charged the discounted price.
// @Tags Billing
// @Accept json
// @Produce json
// @Param productID path int true "Product id"
// @Param request body Request false "Quantity, defaults to 1"
// @Success 200 {object} response.Response "Checkout URL and session id"
// @Failure 400 {object} response.ErrorResponse "Invalid product id"
// @Failure 401 {object} response.ErrorResponse "Not authenticated"
// @Failure 403 {object} response.ErrorResponse "Email not verified"
// @Failure 404 {object} response.ErrorResponse "Product not found"
// @Failure 500 {object} response.ErrorResponse "Server error"
// @Failure 503 {object} response.ErrorResponse "Payments not configured"
// @Router /checkout/product/{productID} [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.checkoutproduct"

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

	req := Request{Quantity: 1}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	session, err := h.service.StartProduct(r.Context(), user, productID, req.Quantity)
	if err != nil {
		writeCheckoutError(w, r, log, err)
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"checkout_url": session.URL,
		"session_id":   session.ID,
	}))
}

func writeCheckoutError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, checkoutservice.ErrEmailNotVerified):
		log.Error("unverified account attempted checkout")
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("email is not verified"))
	case errors.Is(err, paymentprovider.ErrNotConfigured):
		log.Error("payments are not configured")
		w.WriteHeader(http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("payments are not available"))
	case errors.Is(err, checkoutservice.ErrProductNotFound):
		log.Error("product not found")
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("product not found"))
	case errors.Is(err, checkoutservice.ErrEmptyCart):
		log.Error("cart is empty")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("cart is empty"))
	default:
		log.Error("failed to start checkout", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to start checkout"))
	}
}
