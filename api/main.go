package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	_ "time/tzdata" // dashboard timezones on images without zoneinfo

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"

	"mindforu/internal/analytics"
	"mindforu/internal/auth"
	"mindforu/internal/billing"
	"mindforu/internal/callsync"
	"mindforu/internal/metrics"
	"mindforu/internal/store"
	"mindforu/internal/vapi"
)

const shutdownTimeout = 15 * time.Second

// App holds the wired components of the backend
type App struct {
	Config    *Config
	Logger    *zap.Logger
	Store     *store.Store
	Vapi      *vapi.Client
	Metrics   *metrics.Metrics
	Syncer    *callsync.Syncer
	Scheduler *callsync.Scheduler
	Analytics *analytics.Service
	Service   *DashboardService
	Billing   *billing.Handler
}

// NewApp connects to MongoDB and wires every component from the config
func NewApp(ctx context.Context, cfg *Config, logger *zap.Logger) (*App, error) {
	db, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureIndexes(ctx); err != nil {
		_ = db.Close(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	if !cfg.HasVapiConfig() {
		logger.Warn("⚠️  VAPI_API_KEY not set, Vapi operations will fail with 503")
	}
	vapiClient := vapi.NewClient(cfg.VapiAPIKey, cfg.VapiBaseURL, vapi.WithLogger(logger.Named("vapi")))

	m := metrics.New()
	syncer := callsync.NewSyncer(db, vapiClient, logger.Named("sync"), m, callsync.Options{
		Concurrency: cfg.SyncConcurrency,
		CallLimit:   cfg.SyncCallLimit,
	})
	scheduler := callsync.NewScheduler(syncer, cfg.SyncInterval, logger.Named("scheduler"))
	an := analytics.NewService(db, vapiClient)
	if err := an.EnableCache(1000, cfg.AnalyticsCacheTTL); err != nil {
		_ = db.Close(context.Background())
		return nil, err
	}

	secret := cfg.JWTSecret
	if secret == "" {
		logger.Warn("⚠️  JWT_SECRET not set, using an insecure development secret")
		secret = "mindforu-dev-secret"
	}
	authManager := auth.NewManager(secret, cfg.JWTTTL)

	if cfg.StripeSecretKey != "" {
		stripe.Key = cfg.StripeSecretKey
	}
	var billingHandler *billing.Handler
	if cfg.HasStripeConfig() {
		billingHandler = billing.NewHandler(cfg.StripeWebhookSecret, db, logger.Named("stripe"), m)
	} else {
		logger.Warn("⚠️  STRIPE_WEBHOOK_SECRET not set, Stripe webhooks are disabled")
	}

	svc := NewDashboardService(cfg, db, vapiClient, authManager, an, syncer, scheduler, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     db,
		Vapi:      vapiClient,
		Metrics:   m,
		Syncer:    syncer,
		Scheduler: scheduler,
		Analytics: an,
		Service:   svc,
		Billing:   billingHandler,
	}, nil
}

// Router builds the HTTP router for the app
func (a *App) Router() *gin.Engine {
	return NewRouter(a.Service, a.Billing, a.Metrics)
}

// Serve runs the HTTP server and the sync scheduler until ctx is cancelled,
// then shuts both down.
func (a *App) Serve(ctx context.Context) error {
	if a.Config.GinMode != "" {
		gin.SetMode(a.Config.GinMode)
	}

	if a.Config.SyncEnabled && a.Config.HasVapiConfig() {
		a.Scheduler.Start(ctx)
		a.Logger.Info("🔄 [SYNC] scheduler started", zap.Duration("interval", a.Config.SyncInterval))
	} else {
		a.Logger.Info("⏸️  [SYNC] scheduler disabled")
	}
	defer a.Scheduler.Stop()

	srv := &http.Server{
		Addr:              a.Config.Addr(),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("🚀 Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("🛑 Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Close releases the analytics cache and the database connection
func (a *App) Close(ctx context.Context) error {
	a.Analytics.Close()
	return a.Store.Close(ctx)
}
