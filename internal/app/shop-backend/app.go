// Package shopbackend wires the web API: storage, session store, email
// queue, payment provider and the HTTP server.
package shopbackend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/ousashop/shop-backend/internal/config"
	"github.com/ousashop/shop-backend/internal/lib/jwt"
	"github.com/ousashop/shop-backend/internal/migrations"
	"github.com/ousashop/shop-backend/internal/paymentprovider"
	"github.com/ousashop/shop-backend/internal/rabbitmq"
	authservice "github.com/ousashop/shop-backend/internal/services/auth"
	billingservice "github.com/ousashop/shop-backend/internal/services/billing"
	cartservice "github.com/ousashop/shop-backend/internal/services/cart"
	catalogservice "github.com/ousashop/shop-backend/internal/services/catalog"
	checkoutservice "github.com/ousashop/shop-backend/internal/services/checkout"
	"github.com/ousashop/shop-backend/internal/session"
	"github.com/ousashop/shop-backend/internal/storage/repository"
)

// App is the assembled web API process.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New builds the application from configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	sessions, err := session.InitStore(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitConnection.URL, cfg.RabbitConnection.Retries, cfg.RabbitConnection.RetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, []rabbitmq.QueueConfig{
		{QueueName: rabbitmq.EmailQueue, RoutingKey: rabbitmq.EmailRoutingKey},
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	emailPublisher := rabbitmq.NewEmailPublisher(ch)

	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	providerClient := paymentprovider.NewClient(cfg.Payment.APIKey)

	authSvc := authservice.New(logger, db, sessions, emailPublisher, jwtMaker)
	catalogSvc := catalogservice.New(logger, db)
	cartSvc := cartservice.New(logger, db, sessions)
	checkoutSvc := checkoutservice.New(logger, db, sessions, providerClient, cfg.Payment, cfg.SiteURL)
	reconciler := billingservice.New(logger, db, db, db, sessions, providerClient, cfg.Payment.DefaultCurrency)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, jwtMaker, db,
		authSvc, catalogSvc, cartSvc, checkoutSvc, reconciler)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		conn:   conn,
		ch:     ch,
	}, nil
}

// Run serves HTTP until the context is canceled, then shuts down
// gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.ch.Close(); closeErr != nil {
			a.logger.Error("failed to close channel", slog.Any("err", closeErr))
		}
		if closeErr := a.conn.Close(); closeErr != nil {
			a.logger.Error("failed to close connection", slog.Any("err", closeErr))
		}
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Error("failed to close database", slog.Any("err", closeErr))
		}
		return err
	}
}
