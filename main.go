package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptoPositionWatch/config"
	"cryptoPositionWatch/internal/adapters/binanceclient"
	"cryptoPositionWatch/internal/adapters/filestore"
	"cryptoPositionWatch/internal/adapters/logger"
	"cryptoPositionWatch/internal/adapters/notify"
	"cryptoPositionWatch/internal/adapters/sqlite"
	"cryptoPositionWatch/internal/api"
	"cryptoPositionWatch/internal/api/handlers"
	"cryptoPositionWatch/internal/app"
	"cryptoPositionWatch/internal/cache"
	"cryptoPositionWatch/internal/ports"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewZapLogger(cfg.LogLevel, "position-watch")
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Position store
	store, err := filestore.Open(ctx, filestore.Config{Path: cfg.PositionsFile, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to open position store")
		log.Fatalf("FATAL: Failed to open position store: %v", err)
	}

	// 4. Closure journal
	journal, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.JournalDBPath, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize closure journal")
		log.Fatalf("FATAL: Failed to initialize closure journal: %v", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing closure journal")
		}
	}()

	// 5. Exchange gateway behind the order status cache
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	checkExchange(ctx, binanceClient, appLogger, cfg.GatewayTimeout)

	orderCache := cache.New[*ports.OrderStatus](cache.WithName("orders"))
	gateway, err := app.NewCachedGateway(binanceClient, orderCache, cfg.CacheTTL, cfg.TerminalCacheTTL)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize order cache")
		log.Fatalf("FATAL: Failed to initialize order cache: %v", err)
	}

	// 6. Notifier
	notifier := notify.New(ctx, notify.TelegramConfig{
		Token:       cfg.TelegramBotToken,
		ChatID:      cfg.TelegramChatID,
		Logger:      appLogger,
		HTTPTimeout: notify.HTTPTimeoutWithin(cfg.NotifyTimeout),
	})

	// 7. Reconciler and scheduler
	reconciler, err := app.NewReconciler(app.ReconcilerConfig{
		WorkerPoolSize:            cfg.WorkerPoolSize,
		GatewayTimeout:            cfg.GatewayTimeout,
		NotifyTimeout:             cfg.NotifyTimeout,
		TreatMissingOrderAsFilled: cfg.TreatMissingOrderAsFilled,
	}, app.ReconcilerDeps{
		Logger:   appLogger,
		Store:    store,
		Gateway:  gateway,
		Notifier: notifier,
		Journal:  journal,
		Orders:   gateway,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize reconciler")
		log.Fatalf("FATAL: Failed to initialize reconciler: %v", err)
	}

	scheduler, err := app.NewScheduler(app.SchedulerConfig{
		Interval:            cfg.ReconcileInterval,
		MaintenanceInterval: cfg.MaintenanceInterval,
		JournalRetention:    cfg.JournalRetention,
	}, appLogger, reconciler, journal, orderCache)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize scheduler")
		log.Fatalf("FATAL: Failed to initialize scheduler: %v", err)
	}

	// 8. Admin HTTP server
	var server *http.Server
	if cfg.AdminAddr != "" {
		server = &http.Server{
			Addr: cfg.AdminAddr,
			Handler: api.SetupRoutes(&api.Dependencies{
				Logger:    appLogger,
				Positions: store,
				Journal:   journal,
				Passes:    scheduler,
				Caches:    []handlers.CacheStatter{orderCache},
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			appLogger.Info(ctx, "Admin server listening", map[string]interface{}{"addr": cfg.AdminAddr})
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error(ctx, err, "Admin server failed")
			}
		}()
	}

	// 9. Run until signalled
	if err := scheduler.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to start scheduler")
		log.Fatalf("FATAL: Failed to start scheduler: %v", err)
	}
	<-ctx.Done()
	appLogger.Info(context.Background(), "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, err, "Admin server shutdown failed")
		}
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, err, "Scheduler did not stop cleanly")
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

// checkExchange verifies connectivity and syncs the clock offset used for
// signed requests. Failures are logged; the scheduler retries every pass.
func checkExchange(ctx context.Context, client *binanceclient.Client, appLogger ports.Logger, timeout time.Duration) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(callCtx); err != nil {
		appLogger.Warn(ctx, "Binance ping failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := client.SetServerTime(callCtx); err != nil {
		appLogger.Warn(ctx, "Binance server time sync failed", map[string]interface{}{"error": err.Error()})
	}
}
