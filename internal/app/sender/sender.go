// Package sender wires the email worker: broker connection, SMTP
// transport and the consumer loop.
package sender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/ousashop/shop-backend/internal/config"
	"github.com/ousashop/shop-backend/internal/lib/smtp"
	"github.com/ousashop/shop-backend/internal/rabbitmq"
	senderservice "github.com/ousashop/shop-backend/internal/services/sender"
)

// App is the assembled sender worker.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.Service
	logger        *slog.Logger
}

// New builds the worker from configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
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

	transport := smtp.NewTransport(cfg, logger)
	senderService := senderservice.New(logger, transport)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

// Run consumes the email queue until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumeMessages(ctx, a.ch, rabbitmq.EmailQueue, a.senderService.HandleEmailMessage)
	if err != nil {
		a.logger.Error("failed to start email consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	return nil
}
