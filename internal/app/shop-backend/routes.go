package shopbackend

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/ousashop/shop-backend/internal/config"
	"github.com/ousashop/shop-backend/internal/http/handlers/auth/forgotpassword"
	"github.com/ousashop/shop-backend/internal/http/handlers/auth/login"
	"github.com/ousashop/shop-backend/internal/http/handlers/auth/profile"
	"github.com/ousashop/shop-backend/internal/http/handlers/auth/register"
	"github.com/ousashop/shop-backend/internal/http/handlers/auth/resetpassword"
	"github.com/ousashop/shop-backend/internal/http/handlers/auth/verifyemail"
	"github.com/ousashop/shop-backend/internal/http/handlers/billing/cancel"
	"github.com/ousashop/shop-backend/internal/http/handlers/billing/checkoutcart"
	"github.com/ousashop/shop-backend/internal/http/handlers/billing/checkoutproduct"
	"github.com/ousashop/shop-backend/internal/http/handlers/billing/checkoutsubscription"
	"github.com/ousashop/shop-backend/internal/http/handlers/billing/success"
	"github.com/ousashop/shop-backend/internal/http/handlers/billing/webhook"
	"github.com/ousashop/shop-backend/internal/http/handlers/cart/cartadd"
	"github.com/ousashop/shop-backend/internal/http/handlers/cart/cartremove"
	"github.com/ousashop/shop-backend/internal/http/handlers/cart/cartview"
	"github.com/ousashop/shop-backend/internal/http/handlers/catalog/productlist"
	"github.com/ousashop/shop-backend/internal/http/middlewarectx"
	"github.com/ousashop/shop-backend/internal/lib/jwt"
	authservice "github.com/ousashop/shop-backend/internal/services/auth"
	billingservice "github.com/ousashop/shop-backend/internal/services/billing"
	cartservice "github.com/ousashop/shop-backend/internal/services/cart"
	catalogservice "github.com/ousashop/shop-backend/internal/services/catalog"
	checkoutservice "github.com/ousashop/shop-backend/internal/services/checkout"
	"github.com/ousashop/shop-backend/internal/storage/repository"
)

// RegisterRoutes mounts every endpoint of the web API.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config,
	jwtMaker jwt.Maker, db *repository.Storage,
	authSvc *authservice.Service, catalogSvc *catalogservice.Service,
	cartSvc *cartservice.Service, checkoutSvc *checkoutservice.Service,
	reconciler *billingservice.Reconciler) {
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Open endpoints
		r.Post("/register", register.New(logger, authSvc).ServeHTTP)
		r.Post("/verify-email", verifyemail.New(logger, authSvc).ServeHTTP)
		r.Post("/login", login.New(logger, authSvc).ServeHTTP)
		r.Post("/forgot-password", forgotpassword.New(logger, authSvc).ServeHTTP)
		r.Post("/reset-password", resetpassword.New(logger, authSvc).ServeHTTP)
		r.Get("/catalog/products", productlist.New(logger, catalogSvc).ServeHTTP)
		r.Get("/billing/success", success.New(logger, reconciler).ServeHTTP)
		r.Get("/billing/cancel", cancel.New(logger).ServeHTTP)

		// Authenticated group
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(jwtMaker, db, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Get("/profile", profile.New(logger, db).ServeHTTP)
			r.Get("/cart", cartview.New(logger, cartSvc).ServeHTTP)
			r.Post("/cart/{productID}", cartadd.New(logger, cartSvc).ServeHTTP)
			r.Delete("/cart/{productID}", cartremove.New(logger, cartSvc).ServeHTTP)
			r.Post("/checkout/product/{productID}", checkoutproduct.New(logger, checkoutSvc).ServeHTTP)
			r.Post("/checkout/cart", checkoutcart.New(logger, checkoutSvc).ServeHTTP)
			r.Post("/checkout/subscription", checkoutsubscription.New(logger, checkoutSvc).ServeHTTP)
		})

		// Webhook endpoint, guarded by signature instead of JWT
		r.Post("/payments/webhook", webhook.New(logger, reconciler, cfg.Payment.WebhookSecret).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
