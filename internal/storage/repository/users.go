package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ousashop/shop-backend/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// GetUserByEmail returns a user by email or ErrNotFound.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, email, first_name, last_name, password_hash, user_type,
			      is_disabled, email_verified_at, created_at
			  FROM users
			  WHERE email = $1`
	return s.scanUser(s.DB.QueryRowContext(ctx, query, email), op)
}

// GetUserByUID returns a user by uid or ErrNotFound.
func (s *Storage) GetUserByUID(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUserByUID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, email, first_name, last_name, password_hash, user_type,
			      is_disabled, email_verified_at, created_at
			  FROM users
			  WHERE uid = $1`
	return s.scanUser(s.DB.QueryRowContext(ctx, query, userUID), op)
}

func (s *Storage) scanUser(row *sql.Row, op string) (*models.User, error) {
	u := &models.User{}
	var verifiedAt sql.NullTime
	if err := row.Scan(&u.UID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.UserType, &u.IsDisabled, &verifiedAt, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if verifiedAt.Valid {
		u.EmailVerifiedAt = &verifiedAt.Time
	}
	return u, nil
}

// SetUserType updates the entitlement tier of a user.
func (s *Storage) SetUserType(ctx context.Context, userUID, userType string) error {
	const op = "storage.SetUserType"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET user_type = $1 WHERE uid = $2`
	_, err := s.DB.ExecContext(ctx, query, userType, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdatePassword replaces the password hash of a user.
func (s *Storage) UpdatePassword(ctx context.Context, userUID, passwordHash string) error {
	const op = "storage.UpdatePassword"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET password_hash = $1 WHERE uid = $2`
	_, err := s.DB.ExecContext(ctx, query, passwordHash, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ReplacePendingRegistration deletes any pending registration for the
// email and inserts a fresh one in a single transaction, returning the
// new row id. This keeps the at-most-one-live-row-per-email invariant.
func (s *Storage) ReplacePendingRegistration(ctx context.Context, p models.PendingRegistration) (int64, error) {
	const op = "storage.ReplacePendingRegistration"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM pending_registrations WHERE email = $1`, p.Email); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var newID int64
	query := `INSERT INTO pending_registrations (email, first_name, last_name, password_hash, code, expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id`
	if err = tx.QueryRowContext(ctx, query,
		p.Email, p.FirstName, p.LastName, p.PasswordHash, p.Code, p.ExpiresAt).Scan(&newID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetPendingRegistration returns a pending registration by id or
// ErrNotFound.
func (s *Storage) GetPendingRegistration(ctx context.Context, id int64) (*models.PendingRegistration, error) {
	const op = "storage.GetPendingRegistration"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, email, first_name, last_name, password_hash, code, created_at, expires_at
			  FROM pending_registrations
			  WHERE id = $1`
	p := &models.PendingRegistration{}
	row := s.DB.QueryRowContext(ctx, query, id)
	if err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.PasswordHash,
		&p.Code, &p.CreatedAt, &p.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// PromotePendingRegistration creates a verified user from the staging
// row and deletes the row, both in one transaction. Returns the new
// user.
func (s *Storage) PromotePendingRegistration(ctx context.Context, p *models.PendingRegistration, verifiedAt time.Time) (*models.User, error) {
	const op = "storage.PromotePendingRegistration"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	u := &models.User{
		Email:           p.Email,
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		PasswordHash:    p.PasswordHash,
		UserType:        models.UserTypeBasic,
		EmailVerifiedAt: &verifiedAt,
	}
	query := `INSERT INTO users (email, first_name, last_name, password_hash, user_type, email_verified_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING uid, created_at`
	if err = tx.QueryRowContext(ctx, query,
		u.Email, u.FirstName, u.LastName, u.PasswordHash, u.UserType, verifiedAt).Scan(&u.UID, &u.CreatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM pending_registrations WHERE id = $1`, p.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}
