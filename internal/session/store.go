// Package session implements the Redis-backed session state: the
// per-user cart map and the short-lived tokens used during registration
// and password reset. The rest of the application consumes it through
// narrow interfaces, never through Redis directly.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ousashop/shop-backend/internal/config"
)

// Store wraps the Redis client.
type Store struct {
	rdb *redis.Client
}

// InitStore connects to Redis and verifies the connection.
func InitStore(ctx context.Context, cfg config.RedisConnection) (*Store, error) {
	const op = "session.InitStore"
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Store{rdb: rdb}, nil
}

func cartKey(userUID string) string {
	return "cart:" + userUID
}

// Cart returns the user's cart map (product id -> quantity). A missing
// key yields an empty map.
func (s *Store) Cart(ctx context.Context, userUID string) (map[string]int, error) {
	const op = "session.Cart"
	val, err := s.rdb.Get(ctx, cartKey(userUID)).Result()
	if err == redis.Nil {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cart := map[string]int{}
	if err := json.Unmarshal([]byte(val), &cart); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return cart, nil
}

// SaveCart stores the user's cart map.
func (s *Store) SaveCart(ctx context.Context, userUID string, cart map[string]int) error {
	const op = "session.SaveCart"
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.rdb.Set(ctx, cartKey(userUID), data, 0).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ClearCart deletes the user's cart.
func (s *Store) ClearCart(ctx context.Context, userUID string) error {
	const op = "session.ClearCart"
	if err := s.rdb.Del(ctx, cartKey(userUID)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func registrationKey(token string) string {
	return "pending_registration:" + token
}

// SetRegistrationToken maps an opaque token to a pending-registration
// row id for the given TTL.
func (s *Store) SetRegistrationToken(ctx context.Context, token string, pendingID int64, ttl time.Duration) error {
	const op = "session.SetRegistrationToken"
	if err := s.rdb.Set(ctx, registrationKey(token), pendingID, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RegistrationToken resolves a token to the pending-registration id.
// The second return value is false when the token is unknown or expired.
func (s *Store) RegistrationToken(ctx context.Context, token string) (int64, bool, error) {
	const op = "session.RegistrationToken"
	id, err := s.rdb.Get(ctx, registrationKey(token)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return id, true, nil
}

// DeleteRegistrationToken removes a registration token.
func (s *Store) DeleteRegistrationToken(ctx context.Context, token string) error {
	const op = "session.DeleteRegistrationToken"
	if err := s.rdb.Del(ctx, registrationKey(token)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func resetKey(email string) string {
	return "password_reset:" + email
}

// SetResetCode stores the password-reset code for an email.
func (s *Store) SetResetCode(ctx context.Context, email, code string, ttl time.Duration) error {
	const op = "session.SetResetCode"
	if err := s.rdb.Set(ctx, resetKey(email), code, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ResetCode returns the stored reset code for an email; false when none
// is live.
func (s *Store) ResetCode(ctx context.Context, email string) (string, bool, error) {
	const op = "session.ResetCode"
	code, err := s.rdb.Get(ctx, resetKey(email)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return code, true, nil
}

// DeleteResetCode removes the reset code for an email.
func (s *Store) DeleteResetCode(ctx context.Context, email string) error {
	const op = "session.DeleteResetCode"
	if err := s.rdb.Del(ctx, resetKey(email)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
