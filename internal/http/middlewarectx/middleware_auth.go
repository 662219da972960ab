// Package middlewarectx contains the HTTP middleware that authenticates
// requests and attaches the current user to the request context.
package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/ousashop/shop-backend/internal/http/response"
	"github.com/ousashop/shop-backend/internal/lib/jwt"
	"github.com/ousashop/shop-backend/internal/lib/sl"
	"github.com/ousashop/shop-backend/internal/models"
	"github.com/ousashop/shop-backend/internal/storage/repository"
)

// Key is the type for request-context keys.
type Key string

// UserKey holds the authenticated *models.User in the request context.
const UserKey Key = "user"

// TokenParser validates access tokens.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.CustomClaims, error)
}

// UserGetter loads users for authenticated requests.
type UserGetter interface {
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
}

// JWTMiddleware checks the Bearer token, loads the user and puts it into
// the request context. Tokens of deleted or disabled accounts are
// rejected even when the signature is still valid.
func JWTMiddleware(parser TokenParser, users UserGetter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := parser.ParseToken(tokenStr)
			if err != nil {
				log.Error("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}

			user, err := users.GetUserByUID(r.Context(), claims.UserUID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					log.Error("token references unknown user")
					render.Status(r, http.StatusUnauthorized)
					render.JSON(w, r, response.Error("invalid or expired token"))
					return
				}
				log.Error("failed to load user", sl.Err(err))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.Error("internal error"))
				return
			}
			if user.IsDisabled {
				log.Error("disabled account attempted access",
					slog.String("user_uid", user.UID))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("account is disabled"))
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the user attached by JWTMiddleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserKey).(*models.User)
	return user, ok && user != nil
}
