package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/visa2any/checkout-api/internal/catalog"
	"github.com/visa2any/checkout-api/internal/checkout"
	"github.com/visa2any/checkout-api/internal/handlers"
	"github.com/visa2any/checkout-api/internal/notify"
	"github.com/visa2any/checkout-api/internal/payments"
	"github.com/visa2any/checkout-api/internal/persistence"
	"github.com/visa2any/checkout-api/internal/platform/config"
	"github.com/visa2any/checkout-api/internal/platform/observability"
	"github.com/visa2any/checkout-api/internal/pricing"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	pricingRegistry := pricing.NewRegistry()

	var productCatalog *catalog.Catalog
	if path := strings.TrimSpace(cfg.Catalog.Path); path != "" {
		productCatalog, err = catalog.LoadFile(path, pricingRegistry.Names())
	} else {
		productCatalog, err = catalog.Load(pricingRegistry.Names())
	}
	if err != nil {
		logger.Fatal("failed to load product catalog", zap.Error(err))
	}
	logger.Info("product catalog loaded", zap.Int("products", productCatalog.Len()))

	snapshotStore, err := persistence.NewFileStore(cfg.Snapshots.Dir)
	if err != nil {
		logger.Fatal("failed to initialise snapshot store", zap.Error(err))
	}
	snapshotAdapter, err := persistence.NewAdapter(persistence.AdapterDeps{
		Store:    snapshotStore,
		Clock:    time.Now,
		Logger:   observability.EventLogger(logger.Named("persistence")),
		Debounce: cfg.Snapshots.Debounce,
	})
	if err != nil {
		logger.Fatal("failed to initialise snapshot adapter", zap.Error(err))
	}
	defer snapshotAdapter.Close()

	gatewayProvider, err := payments.NewGatewayProvider(payments.GatewayConfig{
		BaseURL:     cfg.Gateway.BaseURL,
		AccessToken: cfg.Gateway.Token,
		PublicKey:   cfg.Gateway.PublicKey,
		Logger:      observability.EventLogger(logger.Named("gateway")),
		Clock:       time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment gateway provider", zap.Error(err))
	}

	providers := map[string]payments.Provider{"gateway": gatewayProvider}
	routes := map[string]string{"pix": "gateway", "boleto": "gateway"}
	if strings.TrimSpace(cfg.Stripe.APIKey) != "" {
		stripeProvider, err := payments.NewStripeCardProvider(payments.StripeCardConfig{
			APIKey: cfg.Stripe.APIKey,
			Logger: observability.EventLogger(logger.Named("stripe")),
			Clock:  time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe card provider", zap.Error(err))
		}
		providers["stripe"] = stripeProvider
		routes["card"] = "stripe"
	} else {
		logger.Warn("stripe api key not configured; card payments route to the gateway")
	}

	paymentManager, err := payments.NewManager(providers,
		payments.WithDefaultProvider("gateway"),
		payments.WithMethodRoutes(routes),
	)
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	sessionStore := checkout.NewSessionStore(time.Now)
	flow, err := checkout.NewFlow(checkout.FlowDeps{
		Sessions:     sessionStore,
		Catalog:      productCatalog,
		Pricing:      pricingRegistry,
		Snapshots:    snapshotAdapter,
		Payments:     paymentManager,
		Notifier:     notify.NewLogNotifier(logger.Named("notify")),
		Clock:        time.Now,
		Logger:       observability.EventLogger(logger.Named("checkout")),
		PollInterval: cfg.Checkout.PollInterval,
		PollCeiling:  cfg.Checkout.PollCeiling,
		BackURLs: payments.BackURLs{
			Success: cfg.Checkout.SuccessURL,
			Failure: cfg.Checkout.FailureURL,
			Pending: cfg.Checkout.PendingURL,
		},
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout flow", zap.Error(err))
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Checkout.SessionSweep > 0 {
		cleanupTicker = time.NewTicker(cfg.Checkout.SessionSweep)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			sweepLogger := logger.Named("sessions")
			for {
				select {
				case <-cleanupTicker.C:
					if removed := sessionStore.CleanupExpired(cfg.Checkout.SessionTTL); removed > 0 {
						sweepLogger.Info("expired sessions removed", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	healthHandlers := handlers.NewHealthHandlers(func() error {
		if productCatalog.Len() == 0 {
			return errors.New("catalog is empty")
		}
		return nil
	})

	catalogHandlers := handlers.NewCatalogHandlers(productCatalog, pricingRegistry)
	checkoutHandlers := handlers.NewCheckoutHandlers(flow)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithRateLimiter(cfg.RateLimit.PerWindow, cfg.RateLimit.Window, time.Now),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("checkout api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
