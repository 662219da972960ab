package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ousashop/shop-backend/internal/models"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS users (
    uid UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    email TEXT NOT NULL UNIQUE,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    user_type TEXT NOT NULL DEFAULT 'basic',
    is_disabled BOOLEAN NOT NULL DEFAULT FALSE,
    email_verified_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pending_registrations (
    id BIGSERIAL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    code TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
    id BIGSERIAL PRIMARY KEY,
    source_id TEXT NOT NULL UNIQUE,
    name_en TEXT NOT NULL,
    name_kh TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    display_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS products (
    id BIGSERIAL PRIMARY KEY,
    source_id TEXT NOT NULL UNIQUE,
    name_en TEXT NOT NULL,
    name_kh TEXT NOT NULL DEFAULT '',
    description_en TEXT NOT NULL DEFAULT '',
    description_kh TEXT NOT NULL DEFAULT '',
    price NUMERIC(8,2) NOT NULL,
    image_url TEXT NOT NULL DEFAULT '',
    category_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    popular BOOLEAN NOT NULL DEFAULT FALSE,
    display_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS purchases (
    id BIGSERIAL PRIMARY KEY,
    user_uid UUID NOT NULL REFERENCES users(uid) ON DELETE CASCADE,
    product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
    quantity INTEGER NOT NULL DEFAULT 1,
    amount NUMERIC(10,2) NOT NULL,
    currency TEXT NOT NULL DEFAULT 'usd',
    checkout_session_id TEXT NOT NULL,
    payment_intent_id TEXT NOT NULL DEFAULT '',
    discount_applied BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (checkout_session_id, product_id)
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id BIGSERIAL PRIMARY KEY,
    user_uid UUID REFERENCES users(uid) ON DELETE CASCADE,
    customer_id TEXT NOT NULL DEFAULT '',
    provider_subscription_id TEXT NOT NULL UNIQUE,
    price_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'incomplete',
    current_period_end TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// setupTestDatabase starts a disposable PostgreSQL container, applies
// the schema and returns a connected Storage.
func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "shop_test",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(3 * time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port("5432/tcp"))
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/shop_test?sslmode=disable",
		host, port.Port())

	var storage *Storage
	for i := 0; i < 10; i++ {
		storage, err = New(connString)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "could not connect to test database")
	t.Cleanup(func() {
		_ = storage.DB.Close()
	})

	_, err = storage.DB.ExecContext(ctx, testSchema)
	require.NoError(t, err)

	return storage
}

// TestDataFactory seeds rows the tests need.
type TestDataFactory struct {
	t       *testing.T
	storage *Storage
}

func newTestDataFactory(t *testing.T, storage *Storage) *TestDataFactory {
	return &TestDataFactory{t: t, storage: storage}
}

func (f *TestDataFactory) CreateUser(email, userType string, verified bool) *models.User {
	f.t.Helper()

	u := &models.User{Email: email, UserType: userType, PasswordHash: "hash"}
	var verifiedAt any
	if verified {
		now := time.Now().UTC()
		u.EmailVerifiedAt = &now
		verifiedAt = now
	}
	err := f.storage.DB.QueryRow(
		`INSERT INTO users (email, password_hash, user_type, email_verified_at)
		 VALUES ($1, $2, $3, $4) RETURNING uid, created_at`,
		email, u.PasswordHash, userType, verifiedAt,
	).Scan(&u.UID, &u.CreatedAt)
	require.NoError(f.t, err)
	return u
}

func (f *TestDataFactory) CreateCategory(sourceID, name string) int64 {
	f.t.Helper()

	id, _, err := f.storage.UpsertCategory(context.Background(), models.Category{
		SourceID: sourceID,
		NameEN:   name,
		Active:   true,
	})
	require.NoError(f.t, err)
	return id
}

func (f *TestDataFactory) CreateProduct(sourceID, name, price string, categoryID int64, active bool) int64 {
	f.t.Helper()

	_, err := f.storage.UpsertProduct(context.Background(), models.Product{
		SourceID:   sourceID,
		NameEN:     name,
		Price:      decimal.RequireFromString(price),
		CategoryID: categoryID,
		Active:     active,
	})
	require.NoError(f.t, err)

	var id int64
	err = f.storage.DB.QueryRow(
		`SELECT id FROM products WHERE source_id = $1`, sourceID).Scan(&id)
	require.NoError(f.t, err)
	return id
}
