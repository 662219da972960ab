// Package verifyemail confirms a staged registration with the emailed
// code and creates the account.
package verifyemail

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/ousashop/shop-backend/internal/http/response"
	"github.com/ousashop/shop-backend/internal/lib/sl"
	"github.com/ousashop/shop-backend/internal/models"
	authservice "github.com/ousashop/shop-backend/internal/services/auth"
)

// Request is the verification input.
type Request struct {
	RegistrationToken string `json:"registration_token" validate:"required"`
	Code              string `json:"code" validate:"required,len=6,numeric"`
}

// Service promotes staged registrations.
type Service interface {
	VerifyEmail(ctx context.Context, token, code string) (*models.User, string, error)
}

// Handler handles verification requests.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New creates the handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Verify email
// @Description Confirms the emailed code, creates the account and returns an access token.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Registration token and code"
// @Success 200 {object} response.Response "Account created"
// @Failure 400 {object} response.ErrorResponse "Invalid, expired or unknown code"
// @Failure 422 {object} response.ErrorResponse "Validation error"
// @Failure 500 {object} response.ErrorResponse "Server error"
// @Router /verify-email [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.verifyemail"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	user, token, err := h.service.VerifyEmail(r.Context(), req.RegistrationToken, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, authservice.ErrNoPendingRegistration):
			log.Error("no pending registration for token")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("no pending registration, register again"))
		case errors.Is(err, authservice.ErrCodeExpired):
			log.Error("verification code expired")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("verification code expired, register again"))
		case errors.Is(err, authservice.ErrInvalidCode):
			log.Error("verification code mismatch")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid verification code"))
		default:
			log.Error("verification failed", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to verify email"))
		}
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"token": token,
		"user":  user,
	}))
}
