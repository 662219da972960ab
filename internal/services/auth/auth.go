// Package auth implements registration with email verification, login,
// and the password reset flow. Verification codes are delivered through
// the email queue; the service never touches SMTP directly.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ousashop/shop-backend/internal/lib/password"
	"github.com/ousashop/shop-backend/internal/lib/sl"
	"github.com/ousashop/shop-backend/internal/lib/verification"
	"github.com/ousashop/shop-backend/internal/models"
	"github.com/ousashop/shop-backend/internal/storage/repository"
)

// Sentinel errors mapped to client responses by the handlers.
var (
	ErrEmailTaken            = errors.New("email is already registered")
	ErrNoPendingRegistration = errors.New("no pending registration")
	ErrInvalidCode           = errors.New("invalid verification code")
	ErrCodeExpired           = errors.New("verification code expired")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrAccountDisabled       = errors.New("account is disabled")
	ErrEmailNotVerified      = errors.New("email is not verified")
)

// UserRepo is the storage surface the auth flows need.
type UserRepo interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, userUID, passwordHash string) error
	ReplacePendingRegistration(ctx context.Context, p models.PendingRegistration) (int64, error)
	GetPendingRegistration(ctx context.Context, id int64) (*models.PendingRegistration, error)
	PromotePendingRegistration(ctx context.Context, p *models.PendingRegistration, verifiedAt time.Time) (*models.User, error)
}

// TokenStore holds the short-lived registration tokens and reset codes.
type TokenStore interface {
	SetRegistrationToken(ctx context.Context, token string, pendingID int64, ttl time.Duration) error
	RegistrationToken(ctx context.Context, token string) (int64, bool, error)
	DeleteRegistrationToken(ctx context.Context, token string) error
	SetResetCode(ctx context.Context, email, code string, ttl time.Duration) error
	ResetCode(ctx context.Context, email string) (string, bool, error)
	DeleteResetCode(ctx context.Context, email string) error
}

// EmailPublisher hands messages to the outbound email queue.
type EmailPublisher interface {
	Publish(msg models.EmailMessage) error
}

// TokenMaker issues signed access tokens.
type TokenMaker interface {
	GenerateToken(userUID, email string) (string, error)
}

// Service implements the auth flows.
type Service struct {
	log    *slog.Logger
	repo   UserRepo
	tokens TokenStore
	emails EmailPublisher
	jwt    TokenMaker
}

// New creates the auth service.
func New(log *slog.Logger, repo UserRepo, tokens TokenStore, emails EmailPublisher, jwt TokenMaker) *Service {
	return &Service{log: log, repo: repo, tokens: tokens, emails: emails, jwt: jwt}
}

// Register stages a new signup and emails a verification code. It
// returns an opaque registration token the client must present together
// with the code. Re-registering an unverified email replaces the earlier
// attempt.
func (s *Service) Register(ctx context.Context, email, firstName, lastName, plainPassword string) (string, error) {
	const op = "auth.Register"

	_, err := s.repo.GetUserByEmail(ctx, email)
	if err == nil {
		return "", fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	hash, err := password.GetHash(plainPassword)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	code, err := verification.NewCode()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	pending := models.PendingRegistration{
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: hash,
		Code:         code,
		ExpiresAt:    time.Now().Add(verification.CodeTTL),
	}
	pendingID, err := s.repo.ReplacePendingRegistration(ctx, pending)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	token := uuid.NewString()
	if err := s.tokens.SetRegistrationToken(ctx, token, pendingID, verification.CodeTTL); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := s.emails.Publish(models.EmailMessage{
		Kind:      models.EmailKindVerification,
		Email:     email,
		FirstName: firstName,
		Code:      code,
	}); err != nil {
		// The pending row stays usable; the user can re-register to get
		// a new code if this message never arrives.
		s.log.Error("failed to publish verification email", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("registration staged", slog.String("email", email))
	return token, nil
}

// VerifyEmail promotes a pending registration to a real account when the
// submitted code matches, and returns the new user with an access token.
func (s *Service) VerifyEmail(ctx context.Context, token, code string) (*models.User, string, error) {
	const op = "auth.VerifyEmail"

	pendingID, ok, err := s.tokens.RegistrationToken(ctx, token)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, "", fmt.Errorf("%s: %w", op, ErrNoPendingRegistration)
	}

	pending, err := s.repo.GetPendingRegistration(ctx, pendingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", fmt.Errorf("%s: %w", op, ErrNoPendingRegistration)
		}
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	// The staging row stays in place on failure: the user can re-register
	// to get a fresh code, which replaces the row.
	if !pending.IsValid(time.Now()) {
		return nil, "", fmt.Errorf("%s: %w", op, ErrCodeExpired)
	}
	if pending.Code != code {
		return nil, "", fmt.Errorf("%s: %w", op, ErrInvalidCode)
	}

	user, err := s.repo.PromotePendingRegistration(ctx, pending, time.Now())
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	if err := s.tokens.DeleteRegistrationToken(ctx, token); err != nil {
		s.log.Warn("failed to delete registration token", sl.Err(err))
	}

	accessToken, err := s.jwt.GenerateToken(user.UID, user.Email)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("email verified, account created", slog.String("user_uid", user.UID))
	return user, accessToken, nil
}

// Login authenticates by email and password and returns the user with an
// access token. Disabled and unverified accounts are refused after the
// password check, so the error does not leak whether the password was
// right for an unknown email.
func (s *Service) Login(ctx context.Context, email, plainPassword string) (*models.User, string, error) {
	const op = "auth.Login"

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, plainPassword); err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if user.IsDisabled {
		return nil, "", fmt.Errorf("%s: %w", op, ErrAccountDisabled)
	}
	if !user.IsVerified() {
		return nil, "", fmt.Errorf("%s: %w", op, ErrEmailNotVerified)
	}

	accessToken, err := s.jwt.GenerateToken(user.UID, user.Email)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("user logged in", slog.String("user_uid", user.UID))
	return user, accessToken, nil
}

// ForgotPassword emails a reset code when the address belongs to an
// account. An unknown address is not an error: the response must not
// reveal which emails are registered.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	const op = "auth.ForgotPassword"

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Info("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	code, err := verification.NewCode()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.tokens.SetResetCode(ctx, email, code, verification.CodeTTL); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.emails.Publish(models.EmailMessage{
		Kind:      models.EmailKindPasswordReset,
		Email:     email,
		FirstName: user.FirstName,
		Code:      code,
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("password reset code issued", slog.String("user_uid", user.UID))
	return nil
}

// ResetPassword replaces the password when the submitted reset code
// matches the one emailed earlier. The code is single use.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	const op = "auth.ResetPassword"

	stored, ok, err := s.tokens.ResetCode(ctx, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok || stored != code {
		return fmt.Errorf("%s: %w", op, ErrInvalidCode)
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidCode)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	hash, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.UpdatePassword(ctx, user.UID, hash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.tokens.DeleteResetCode(ctx, email); err != nil {
		s.log.Warn("failed to delete reset code", sl.Err(err))
	}

	s.log.Info("password reset", slog.String("user_uid", user.UID))
	return nil
}
