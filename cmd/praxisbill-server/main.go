package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/praxisbill/praxisbill/internal/config"
	"github.com/praxisbill/praxisbill/internal/domain/billing"
	"github.com/praxisbill/praxisbill/internal/domain/payments"
	"github.com/praxisbill/praxisbill/internal/domain/submission"
	"github.com/praxisbill/praxisbill/internal/domain/tariff"
	"github.com/praxisbill/praxisbill/internal/platform/auth"
	"github.com/praxisbill/praxisbill/internal/platform/clearing"
	"github.com/praxisbill/praxisbill/internal/platform/db"
	"github.com/praxisbill/praxisbill/internal/platform/invoicedoc"
	"github.com/praxisbill/praxisbill/internal/platform/middleware"
	"github.com/praxisbill/praxisbill/internal/platform/telemetry"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "praxisbill-server",
		Short: "Swiss medical invoice submission pipeline",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the reconciliation engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation cycle and exit",
		Long: "Polls upload statuses and drains the download and notification " +
			"inboxes once. Intended for cron-style scheduling on deployments " +
			"that run the server with reconcile.enabled=false.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcileOnce()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("praxisbill-server", version)
		},
	}
}

// errClearingUnconfigured is returned by every call on the stand-in
// transport used when no clearing proxy is configured.
var errClearingUnconfigured = errors.New("clearing proxy is not configured (set PRAXISBILL_CLEARING_BASE_URL)")

// unconfiguredTransport lets the rest of the API serve when the clearing
// proxy is not configured; any submission attempt fails with a clear error.
type unconfiguredTransport struct{}

func (unconfiguredTransport) Submit(context.Context, []byte) (string, error) {
	return "", errClearingUnconfigured
}

func (unconfiguredTransport) CheckStatus(context.Context, string) (clearing.StatusResult, error) {
	return clearing.StatusResult{}, errClearingUnconfigured
}

func (unconfiguredTransport) ListDownloads(context.Context) ([]clearing.Download, error) {
	return nil, errClearingUnconfigured
}

func (unconfiguredTransport) FetchDownload(context.Context, string) ([]byte, error) {
	return nil, errClearingUnconfigured
}

func (unconfiguredTransport) ConfirmDownload(context.Context, string) error {
	return errClearingUnconfigured
}

func (unconfiguredTransport) ListNotifications(context.Context) ([]clearing.Notification, error) {
	return nil, errClearingUnconfigured
}

func (unconfiguredTransport) ConfirmNotification(context.Context, string) error {
	return errClearingUnconfigured
}

// services bundles everything both entrypoints (serve, reconcile) build the
// same way.
type services struct {
	tariffs     *tariff.Service
	invoices    *billing.Service
	submissions *submission.Service
	payments    *payments.Service
	engine      *submission.Engine
}

func buildServices(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*services, error) {
	tariffSvc, err := tariff.NewService(tariff.Config{
		CostNeutralityFactor: cfg.Billing.CostNeutralityFactor,
		DefaultCanton:        cfg.Billing.DefaultCanton,
	})
	if err != nil {
		return nil, fmt.Errorf("tariff service: %w", err)
	}

	modus := "test"
	if cfg.IsProduction() {
		modus = "production"
	}
	builder := invoicedoc.NewBuilder(invoicedoc.Config{
		SchemaVersion:   cfg.Billing.SchemaVersion,
		FallbackGLN:     cfg.Billing.FallbackGLN,
		FallbackIBAN:    cfg.Billing.FallbackIBAN,
		SenderGLN:       cfg.Clearing.SenderGLN,
		SoftwareName:    "praxisbill",
		SoftwareVersion: version,
		Modus:           modus,
	})

	var transport submission.Transport = unconfiguredTransport{}
	if cfg.Clearing.BaseURL != "" {
		client, err := clearing.NewClient(clearing.Config{
			BaseURL:   cfg.Clearing.BaseURL,
			Username:  cfg.Clearing.Username,
			Password:  cfg.Clearing.Password,
			SenderGLN: cfg.Clearing.SenderGLN,
			Timeout:   cfg.Clearing.Timeout,
		}, clearing.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("clearing client: %w", err)
		}
		transport = client
	} else {
		logger.Warn().Msg("clearing base URL not configured; submissions will fail until it is set")
	}

	invoiceSvc := billing.NewService(billing.NewInvoiceRepoPG(pool), tariffSvc)

	submissionSvc := submission.NewService(
		submission.NewSubmissionRepoPG(pool),
		submission.NewResponseRepoPG(pool),
		submission.NewNotificationRepoPG(pool),
		invoiceSvc,
		builder,
		transport,
		logger,
	)

	engine := submission.NewEngine(submissionSvc, submission.EngineConfig{
		Interval:      cfg.Reconcile.Interval,
		StatusDwell:   cfg.Reconcile.StatusDwell,
		DwellLawTypes: cfg.Reconcile.DwellLawTypes,
		BatchSize:     cfg.Reconcile.BatchSize,
	}, logger)

	paymentSvc := payments.NewService(payments.NewEventRepoPG(pool), invoiceSvc, logger)

	return &services{
		tariffs:     tariffSvc,
		invoices:    invoiceSvc,
		submissions: submissionSvc,
		payments:    paymentSvc,
		engine:      engine,
	}, nil
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	svcs, err := buildServices(cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build services")
	}

	telemetryProvider := telemetry.NewProvider(telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		MetricsEnabled: telemetry.BoolPtr(cfg.Telemetry.Enabled),
		Environment:    cfg.Server.Env,
	})
	svcs.submissions.SetMetrics(telemetryProvider)
	svcs.payments.SetMetrics(telemetryProvider)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(telemetryProvider.MetricsMiddleware())

	// The operator API is authenticated; the payment webhook and the health
	// endpoints stay outside the group.
	api := e.Group("/api")
	if cfg.IsDev() || !cfg.Auth.Enabled {
		api.Use(auth.DevAuthMiddleware())
	} else {
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			JWKSURL:    cfg.Auth.JWKSURL,
			SigningKey: []byte(cfg.Auth.SigningKey),
		}))
	}
	api.Use(auth.RequireRole("billing"))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.Server.RateLimitRPS,
		BurstSize:         cfg.Server.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	// Domain handlers
	tariff.NewHandler(svcs.tariffs).RegisterRoutes(api)
	billing.NewHandler(svcs.invoices).RegisterRoutes(api)
	submission.NewHandler(svcs.submissions).RegisterRoutes(api)

	paymentsHandler := payments.NewHandler(svcs.payments, cfg.Payments.WebhookSecret, logger)
	paymentsHandler.RegisterRoutes(api)
	paymentsHandler.RegisterWebhook(e)

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", telemetryProvider.PrometheusHandler())

	// Background reconciliation engine
	engineCtx, engineCancel := context.WithCancel(ctx)
	defer engineCancel()
	if cfg.Reconcile.Enabled {
		go svcs.engine.Start(engineCtx)
	} else {
		logger.Info().Msg("reconcile engine disabled; run the reconcile command from a scheduler")
	}

	// Pool gauges for /metrics
	healthMetrics := telemetryProvider.HealthMetrics()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-engineCtx.Done():
				return
			case <-ticker.C:
				stats := db.GetPoolStats(pool)
				healthMetrics.SetDBPoolActive(int64(stats.AcquiredConns))
				healthMetrics.SetDBPoolIdle(int64(stats.IdleConns))
				if open, err := svcs.submissions.CountOpen(engineCtx); err == nil {
					healthMetrics.SetOpenSubmissions(int64(open))
				}
			}
		}
	}()

	// Graceful shutdown
	go func() {
		addr := cfg.Addr()
		logger.Info().Str("addr", addr).Str("env", cfg.Server.Env).Msg("starting server")
		var err error
		if cfg.Server.TLSEnabled {
			err = e.StartTLS(addr, cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	engineCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	_ = telemetryProvider.Shutdown(shutdownCtx)
	logger.Info().Msg("server stopped")
	return nil
}

func runReconcileOnce() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Clearing.BaseURL == "" {
		return fmt.Errorf("PRAXISBILL_CLEARING_BASE_URL is required for reconcile")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	svcs, err := buildServices(cfg, pool, logger)
	if err != nil {
		return err
	}

	stats := svcs.engine.RunCycle(ctx)
	logger.Info().
		Int("status_checked", stats.StatusChecked).
		Int("status_advanced", stats.StatusAdvanced).
		Int("dwell_delivered", stats.DwellDelivered).
		Int("downloads", stats.Downloads).
		Int("responses", stats.Responses).
		Int("notifications", stats.Notifications).
		Int("duplicates", stats.Duplicates).
		Int("unmatched", stats.Unmatched).
		Int("rejections", stats.Rejections).
		Int("errors", stats.Errors).
		Msg("reconcile cycle complete")

	if stats.Errors > 0 {
		return fmt.Errorf("reconcile cycle finished with %d errors", stats.Errors)
	}
	return nil
}
