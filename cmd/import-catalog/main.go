package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ousashop/shop-backend/internal/config"
	"github.com/ousashop/shop-backend/internal/migrations"
	catalogservice "github.com/ousashop/shop-backend/internal/services/catalog"
	"github.com/ousashop/shop-backend/internal/storage/repository"
)

func main() {
	feedURL := flag.String("url", "", "catalog feed URL, overrides the configured one")
	flag.Parse()

	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	url := cfg.CatalogFeedURL
	if *feedURL != "" {
		url = *feedURL
	}
	if url == "" {
		logger.Error("no catalog feed URL configured, pass -url or set catalog_feed_url")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		logger.Error("failed to connect to storage", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		_ = db.DB.Close()
	}()
	if err := migrations.Run(db.DB, "./migrations"); err != nil {
		logger.Error("failed to run migrations", slog.Any("err", err))
		os.Exit(1)
	}

	service := catalogservice.New(logger, db)
	result, err := service.Import(ctx, url)
	if err != nil {
		logger.Error("catalog import failed", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("catalog import complete",
		slog.Int("categories_created", result.CategoriesCreated),
		slog.Int("categories_updated", result.CategoriesUpdated),
		slog.Int("products_created", result.ProductsCreated),
		slog.Int("products_updated", result.ProductsUpdated),
		slog.Int("products_skipped", result.ProductsSkipped))
}
