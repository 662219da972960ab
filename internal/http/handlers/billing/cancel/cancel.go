// Package cancel serves the abandoned-checkout landing endpoint.
package cancel

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/ousashop/shop-backend/internal/http/response"
)

// Handler serves the cancel endpoint. Abandoning a checkout changes
// nothing server-side: the cart stays as it was.
type Handler struct {
	log *slog.Logger
}

// New creates the handler.
func New(log *slog.Logger) *Handler {
	return &Handler{log: log}
}

// ServeHTTP godoc
// @Summary Payment cancel landing
// @Description Acknowledges an abandoned checkout. The cart is left untouched.
// @Tags Billing
// @Produce json
// @Success 200 {object} response.Response "Acknowledgment"
// @Router /billing/cancel [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.cancel"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	log.Info("checkout canceled by user")

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "checkout canceled, your cart is unchanged",
	}))
}
