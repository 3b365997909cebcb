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

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/frozen-haven/api/internal/handlers"
	"github.com/frozen-haven/api/internal/payments"
	"github.com/frozen-haven/api/internal/platform/alerts"
	"github.com/frozen-haven/api/internal/platform/auth"
	"github.com/frozen-haven/api/internal/platform/config"
	pfirestore "github.com/frozen-haven/api/internal/platform/firestore"
	"github.com/frozen-haven/api/internal/platform/idempotency"
	"github.com/frozen-haven/api/internal/platform/observability"
	"github.com/frozen-haven/api/internal/platform/secrets"
	platformstorage "github.com/frozen-haven/api/internal/platform/storage"
	firestoreRepo "github.com/frozen-haven/api/internal/repositories/firestore"
	"github.com/frozen-haven/api/internal/services"
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

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	customerRepo, err := firestoreRepo.NewCustomerRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise customer repository", zap.Error(err))
	}
	alertRepo, err := firestoreRepo.NewAlertRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise alert repository", zap.Error(err))
	}
	notificationRepo, err := firestoreRepo.NewNotificationRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise notification repository", zap.Error(err))
	}

	var alertPublisher services.AlertPublisher
	var pubsubClient *pubsub.Client
	if topicName := strings.TrimSpace(cfg.Alerts.Topic); topicName != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		publisher, err := alerts.NewPubSubAlertPublisher(pubsubClient.Topic(topicName))
		if err != nil {
			logger.Fatal("failed to initialise alert publisher", zap.Error(err))
		}
		alertPublisher = publisher
	} else {
		logger.Warn("alerts topic not configured; alerts will not fan out")
	}
	defer func() {
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	alertService, err := services.NewAlertService(services.AlertServiceDeps{
		Alerts:           alertRepo,
		Publisher:        alertPublisher,
		TTL:              cfg.Alerts.TTL,
		CleanupBatchSize: cfg.Alerts.CleanupBatchSize,
		Clock:            time.Now,
		IDGenerator:      newID,
		Logger:           zapEventLogger(logger.Named("alerts")),
	})
	if err != nil {
		logger.Fatal("failed to initialise alert service", zap.Error(err))
	}

	stockService, err := services.NewStockService(services.StockServiceDeps{
		Products:          productRepo,
		Alerts:            alertService,
		LowStockThreshold: cfg.Stock.LowStockThreshold,
		MovementPageLimit: cfg.Stock.MovementPageLimit,
		Clock:             time.Now,
		IDGenerator:       newID,
		Logger:            zapEventLogger(logger.Named("stock")),
	})
	if err != nil {
		logger.Fatal("failed to initialise stock service", zap.Error(err))
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: productRepo,
		Clock:    time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      orderRepo,
		Products:    productRepo,
		Customers:   customerRepo,
		Alerts:      alertService,
		LookupLimit: cfg.Orders.LookupLimit,
		Clock:       time.Now,
		IDGenerator: newID,
		Logger:      zapEventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	var paymentProvider payments.Provider
	if secretKey := strings.TrimSpace(cfg.Payments.SecretKey); secretKey != "" {
		paymentProvider, err = payments.NewFlutterwaveProvider(secretKey,
			payments.WithBaseURL(cfg.Payments.VerifyBaseURL),
			payments.WithHTTPClient(&http.Client{Timeout: cfg.Payments.VerifyTimeout}),
		)
		if err != nil {
			logger.Fatal("failed to initialise payment provider", zap.Error(err))
		}
	} else {
		logger.Warn("payment secret key not configured; reference verification disabled")
	}

	paymentService, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:        orderRepo,
		Notifications: notificationRepo,
		Alerts:        alertService,
		Provider:      paymentProvider,
		Clock:         time.Now,
		IDGenerator:   newID,
		Logger:        zapEventLogger(logger.Named("payments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}

	customerService, err := services.NewCustomerService(services.CustomerServiceDeps{
		Customers: customerRepo,
	})
	if err != nil {
		logger.Fatal("failed to initialise customer service", zap.Error(err))
	}

	var adminMiddleware func(http.Handler) http.Handler
	if strings.TrimSpace(cfg.Firebase.ProjectID) != "" {
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
		}
		authenticator := auth.NewAuthenticator(verifier)
		adminMiddleware = authenticator.RequireFirebaseAuth("admin", "staff")
	} else {
		logger.Warn("firebase project not configured; admin routes are unprotected")
	}

	var callbackMiddleware func(http.Handler) http.Handler
	if strings.TrimSpace(cfg.Payments.WebhookSecret) != "" {
		callbackMiddleware = auth.RequireWebhookSignature(cfg.Payments.WebhookHeader, func() string {
			return cfg.Payments.WebhookSecret
		})
	} else {
		logger.Warn("webhook secret not configured; callback signatures are not validated")
	}

	var uploader *platformstorage.Uploader
	if bucket := strings.TrimSpace(cfg.Storage.AssetsBucket); bucket != "" && cfg.Firebase.CredentialsFile != "" {
		signer, err := platformstorage.NewServiceAccountSignerFromFile(cfg.Firebase.CredentialsFile)
		if err != nil {
			logger.Fatal("failed to parse storage signer key", zap.Error(err))
		}
		uploader, err = platformstorage.NewUploader(signer, bucket,
			platformstorage.WithUploadExpiry(cfg.Storage.UploadURLLifetime),
		)
		if err != nil {
			logger.Fatal("failed to initialise uploader", zap.Error(err))
		}
	} else {
		logger.Warn("assets bucket or credentials not configured; image uploads disabled")
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	checkoutIdempotency := idempotency.Middleware(idempotencyStore,
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithLogger(zap.NewStdLog(logger.Named("idempotency"))),
	)

	productHandlers := handlers.NewProductHandlers(catalogService)
	orderHandlers := handlers.NewOrderHandlers(orderService, adminMiddleware)
	paymentHandlers := handlers.NewPaymentHandlers(paymentService, callbackMiddleware)
	adminStockHandlers := handlers.NewAdminStockHandlers(stockService)
	adminAlertHandlers := handlers.NewAdminAlertHandlers(alertService)
	adminCustomerHandlers := handlers.NewAdminCustomerHandlers(customerService)
	adminAssetHandlers := handlers.NewAdminAssetHandlers(uploader, catalogService)

	healthHandlers := handlers.NewHealthHandlers(func(ctx context.Context) error {
		iter := firestoreClient.Collections(ctx)
		_, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		return err
	})

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithOrderRoutes(func(r chi.Router) {
			r.Use(checkoutIdempotency)
			orderHandlers.Routes(r)
		}),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithAdminRoutes(func(r chi.Router) {
			adminStockHandlers.Routes(r)
			adminAlertHandlers.Routes(r)
			adminCustomerHandlers.Routes(r)
			adminAssetHandlers.Routes(r)
		}),
	}
	if adminMiddleware != nil {
		opts = append(opts, handlers.WithAdminMiddlewares(adminMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupTicker := time.NewTicker(cfg.Alerts.CleanupInterval)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleanupLogger := logger.Named("alerts")
		for {
			select {
			case <-cleanupTicker.C:
				runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
				deleted, err := alertService.Cleanup(runCtx)
				cancel()
				if err != nil {
					cleanupLogger.Error("alert cleanup error", zap.Error(err))
					continue
				}
				if deleted > 0 {
					cleanupLogger.Info("alert cleanup removed records", zap.Int("count", deleted))
				}
				runCtx, cancel = context.WithTimeout(cleanupCtx, time.Minute)
				expired, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Alerts.CleanupBatchSize)
				cancel()
				if err != nil {
					cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if expired > 0 {
					cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", expired))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("frozen haven api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newID() string {
	return ulid.Make().String()
}

func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info("service event", zFields...)
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	if project := strings.TrimSpace(os.Getenv("API_SECRET_PROJECT_ID")); project != "" {
		opts = append(opts, secrets.WithProject(project))
	} else if project := strings.TrimSpace(os.Getenv("API_FIREBASE_PROJECT_ID")); project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if fallback := strings.TrimSpace(os.Getenv("API_SECRET_FALLBACK_FILE")); fallback != "" {
		opts = append(opts, secrets.WithFallbackFile(fallback))
	}
	if credentials := strings.TrimSpace(os.Getenv("API_FIREBASE_CREDENTIALS_FILE")); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}
