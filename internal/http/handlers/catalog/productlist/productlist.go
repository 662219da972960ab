// Package productlist serves the storefront catalog.
package productlist

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/ousashop/shop-backend/internal/http/response"
	"github.com/ousashop/shop-backend/internal/lib/sl"
	catalogservice "github.com/ousashop/shop-backend/internal/services/catalog"
)

// Service lists the catalog.
type Service interface {
	List(ctx context.Context) (*catalogservice.Listing, error)
}

// Handler serves catalog listings.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New creates the handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary List the catalog
// @Description Returns all categories and active products ordered for display.
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Response "Categories and products"
// @Failure 500 {object} response.ErrorResponse "Server error"
// @Router /catalog/products [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.catalog.productlist"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	listing, err := h.service.List(r.Context())
	if err != nil {
		log.Error("failed to list catalog", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to list catalog"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(listing))
}
