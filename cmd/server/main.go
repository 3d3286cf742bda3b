package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ledgerworks/stockroom/internal/adapter/handler"
	"github.com/ledgerworks/stockroom/internal/adapter/storage"
	"github.com/ledgerworks/stockroom/internal/config"
	"github.com/ledgerworks/stockroom/internal/core/service"
	"github.com/ledgerworks/stockroom/internal/logging"
	"github.com/ledgerworks/stockroom/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New("stockroom", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logging.Sync(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Embedded database: ledger and catalog share one file so a multi-key
	// deduction is a single transaction.
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	store := storage.NewSQLiteAdapter(db)
	if err := store.InitSchema(ctx); err != nil {
		logger.Fatal("failed to init schema", zap.Error(err))
	}
	logger.Info("database ready", zap.String("path", cfg.DBPath))

	var idem port.IdempotencyStore
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		idem = storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	sales := service.NewSaleService(store, store, idem, logger)
	catalog := service.NewCatalogService(store, logger)
	reports := service.NewReportService(store)

	httpHandler := handler.NewHTTPHandler(sales, catalog, reports, cfg.CommitTimeout, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpHandler.HealthCheck)
	mux.HandleFunc("/api/products", httpHandler.AddProduct)
	mux.HandleFunc("/api/inventory", httpHandler.InventoryReport)
	mux.HandleFunc("/api/inventory/adjust", httpHandler.AdjustInventory)
	mux.HandleFunc("/api/sales", httpHandler.CreateSale)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("HTTP server stopped")

	if rdb != nil {
		rdb.Close()
	}
	logger.Info("connections closed")
}
