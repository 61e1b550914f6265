// Command reconcile_once runs a single reconciliation pass against the
// configured position file and prints the pass report as JSON.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	jsoniter "github.com/json-iterator/go"

	"cryptoPositionWatch/config"
	"cryptoPositionWatch/internal/adapters/binanceclient"
	"cryptoPositionWatch/internal/adapters/filestore"
	"cryptoPositionWatch/internal/adapters/logger"
	"cryptoPositionWatch/internal/adapters/notify"
	"cryptoPositionWatch/internal/adapters/sqlite"
	"cryptoPositionWatch/internal/app"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewZapLogger(cfg.LogLevel, "reconcile-once")
	defer func() { _ = appLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := filestore.Open(ctx, filestore.Config{Path: cfg.PositionsFile, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open position store: %v", err)
	}

	journal, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.JournalDBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize closure journal: %v", err)
	}
	defer journal.Close()

	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	if err := binanceClient.SetServerTime(ctx); err != nil {
		appLogger.Warn(ctx, "Binance server time sync failed", map[string]interface{}{"error": err.Error()})
	}

	reconciler, err := app.NewReconciler(app.ReconcilerConfig{
		WorkerPoolSize:            cfg.WorkerPoolSize,
		GatewayTimeout:            cfg.GatewayTimeout,
		NotifyTimeout:             cfg.NotifyTimeout,
		TreatMissingOrderAsFilled: cfg.TreatMissingOrderAsFilled,
	}, app.ReconcilerDeps{
		Logger:   appLogger,
		Store:    store,
		Gateway:  binanceClient,
		Notifier: notify.New(ctx, notify.TelegramConfig{Token: cfg.TelegramBotToken, ChatID: cfg.TelegramChatID, Logger: appLogger, HTTPTimeout: notify.HTTPTimeoutWithin(cfg.NotifyTimeout)}),
		Journal:  journal,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize reconciler: %v", err)
	}

	report, passErr := reconciler.RunOnePass(ctx)

	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Printf("failed to print report: %v", err)
	}
	if passErr != nil {
		journal.Close()
		log.Fatalf("Pass failed: %v", passErr)
	}
}
