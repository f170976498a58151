package main

import (
	"context"
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

	"github.com/renalink/renalink/internal/config"
	"github.com/renalink/renalink/internal/domain/alert"
	"github.com/renalink/renalink/internal/domain/billing"
	"github.com/renalink/renalink/internal/domain/device"
	"github.com/renalink/renalink/internal/domain/interaction"
	"github.com/renalink/renalink/internal/domain/labresult"
	"github.com/renalink/renalink/internal/domain/measurement"
	"github.com/renalink/renalink/internal/domain/patient"
	"github.com/renalink/renalink/internal/domain/symptom"
	"github.com/renalink/renalink/internal/domain/timeentry"
	"github.com/renalink/renalink/internal/platform/auth"
	"github.com/renalink/renalink/internal/platform/db"
	"github.com/renalink/renalink/internal/platform/devicesync"
	"github.com/renalink/renalink/internal/platform/middleware"
	"github.com/renalink/renalink/internal/platform/notification"
	"github.com/renalink/renalink/internal/platform/telemetry"
	"github.com/renalink/renalink/internal/platform/ws"
)

// logDeliverer is the notification transport used when no webhook endpoint
// is configured. It writes the rendered notification to the log so that
// escalations remain visible in development and in deployments that have
// not wired a paging gateway yet.
type logDeliverer struct {
	logger zerolog.Logger
}

func (d *logDeliverer) Deliver(_ context.Context, n *notification.Notification) error {
	d.logger.Warn().
		Str("alert_id", n.AlertID).
		Str("patient_id", n.PatientID).
		Str("severity", n.Severity).
		Int("level", n.Level).
		Str("subject", n.Subject).
		Msg("care-team notification (no webhook configured)")
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "renalink-server",
		Short: "Remote patient monitoring API server for CKD care programs",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(escalateCmd())
	rootCmd.AddCommand(syncDevicesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the monitoring API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	// migrate down - keep as warning
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore from a database backup or write a forward migration instead.")
			return nil
		},
	})

	return cmd
}

// escalateCmd runs a single escalation cycle and exits. It is the manual
// escape hatch for operators when the in-process scheduler is down or a
// cycle needs to be forced between ticks.
func escalateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "escalate",
		Short: "Run one escalation cycle over open alerts and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			tel := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{ServiceName: "renalink"})
			notifier := buildNotifier(cfg, logger)
			sched := alert.NewScheduler(alert.NewPgRepository(pool), notifier, nil, tel, logger, cfg.EscalationInterval())
			sched.SetWait(cfg.EscalationAfter())

			escalated, err := sched.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("escalation cycle failed: %w", err)
			}
			fmt.Printf("Escalated %d alert(s).\n", escalated)
			return nil
		},
	}
}

// syncDevicesCmd pulls every syncable device connection once and exits.
func syncDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-devices",
		Short: "Run one device vendor sync cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.DeviceSyncEnabled() {
				return fmt.Errorf("VENDOR_API_URL is not configured")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			tel := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{ServiceName: "renalink"})
			runner := db.PoolRunner(pool)

			measurementRepo := measurement.NewMeasurementRepoPG(pool)
			interactionRepo := interaction.NewLogRepoPG(pool)
			measurementSvc := measurement.NewService(measurementRepo, interactionRepo, runner, tel, logger)

			client := devicesync.NewClient(devicesync.ClientConfig{
				BaseURL: cfg.VendorAPIURL,
				APIKey:  cfg.VendorAPIKey,
			}, logger)
			syncer := devicesync.NewSyncer(device.NewPgRepository(pool), measurementSvc, client, tel, logger, devicesync.Config{})

			report, err := syncer.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("device sync cycle failed: %w", err)
			}
			fmt.Printf("Synced %d connection(s): %d record(s) pulled, %d accepted, %d duplicate(s), %d skipped, %d failed.\n",
				report.Connections, report.Records, report.Accepted, report.Duplicates, report.Skipped, report.Failed)
			return nil
		},
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// buildNotifier assembles the care-team notification pipeline: webhook
// delivery when NOTIFY_WEBHOOK_URL is set, log-only delivery otherwise.
func buildNotifier(cfg *config.Config, logger zerolog.Logger) *notification.Manager {
	var deliverer notification.Deliverer
	if cfg.NotifyWebhookURL != "" {
		deliverer = notification.NewWebhookDeliverer(cfg.NotifyWebhookURL)
	} else {
		deliverer = &logDeliverer{logger: logger}
	}
	return notification.NewManager(deliverer, notification.NewTemplateEngine())
}

func runServer() error {
	// Logger
	logger := newLogger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	runner := db.PoolRunner(pool)

	// Telemetry
	tel := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceName:    "renalink",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Env,
	})

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(tel.TracingMiddleware())
	e.Use(tel.MetricsMiddleware())

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware([]byte(cfg.AuthJWTSecret)))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// API group
	apiV1 := e.Group("/api/v1")

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", tel.PrometheusHandler())

	// Live dashboard feed
	hub := ws.NewHub()
	wsHandler := ws.NewWebSocketHandler(hub)
	wsHandler.RegisterRoutes(apiV1)

	// Care-team notifications
	notifyMgr := buildNotifier(cfg, logger)
	notification.NewHandler(notifyMgr).RegisterRoutes(apiV1)

	// Patient domain
	patientRepo := patient.NewPatientRepoPG(pool)
	patientSvc := patient.NewService(patientRepo)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	// Interaction log
	interactionRepo := interaction.NewLogRepoPG(pool)
	interaction.NewHandler(interactionRepo).RegisterRoutes(apiV1)

	// Measurement ingestion
	measurementRepo := measurement.NewMeasurementRepoPG(pool)
	measurementSvc := measurement.NewService(measurementRepo, interactionRepo, runner, tel, logger)
	measurement.NewHandler(measurementSvc).RegisterRoutes(apiV1)

	// Lab results
	labRepo := labresult.NewPgRepository(pool)
	labSvc := labresult.NewService(labRepo, interactionRepo, runner, logger)
	labresult.NewHandler(labSvc).RegisterRoutes(apiV1)

	// Symptom check-ins
	symptomRepo := symptom.NewPgRepository(pool)
	symptomSvc := symptom.NewService(symptomRepo, interactionRepo, runner, logger)
	symptom.NewHandler(symptomSvc).RegisterRoutes(apiV1)

	// Alerts: rule engine is the evaluator for all three ingestion paths.
	alertRepo := alert.NewPgRepository(pool)
	alertSvc := alert.NewService(alertRepo, hub, logger)
	alert.NewHandler(alertSvc).RegisterRoutes(apiV1)

	engine := alert.NewEngine(alertRepo, measurementRepo, hub, tel, logger)
	measurementSvc.SetEvaluator(engine)
	labSvc.SetEvaluator(engine)
	symptomSvc.SetEvaluator(engine)

	// Care time tracking
	timeRepo := timeentry.NewPgRepository(pool)
	timeSvc := timeentry.NewService(timeRepo, logger)
	timeentry.NewHandler(timeSvc).RegisterRoutes(apiV1)

	// Billing summaries
	billingSvc := billing.NewService(billing.NewPgRepository(pool), patientRepo, logger)
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)

	// Device connections
	deviceRepo := device.NewPgRepository(pool)
	deviceSvc := device.NewService(deviceRepo, patientRepo, logger)
	device.NewHandler(deviceSvc).RegisterRoutes(apiV1)

	// Background jobs share one context so shutdown stops them together.
	jobCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()

	sched := alert.NewScheduler(alertRepo, notifyMgr, hub, tel, logger, cfg.EscalationInterval())
	sched.SetWait(cfg.EscalationAfter())
	go sched.Run(jobCtx)

	if cfg.DeviceSyncEnabled() {
		client := devicesync.NewClient(devicesync.ClientConfig{
			BaseURL: cfg.VendorAPIURL,
			APIKey:  cfg.VendorAPIKey,
		}, logger)
		syncer := devicesync.NewSyncer(deviceRepo, measurementSvc, client, tel, logger, devicesync.Config{
			Interval: cfg.DeviceSyncInterval(),
		})
		go syncer.Run(jobCtx)
	} else {
		logger.Info().Msg("device sync disabled: VENDOR_API_URL not set")
	}

	go reportHealthGauges(jobCtx, pool, alertRepo, tel)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopJobs()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// reportHealthGauges refreshes pool and alert-backlog gauges every 30
// seconds until the context is cancelled.
func reportHealthGauges(ctx context.Context, pool *pgxpool.Pool, alerts alert.Repository, tel *telemetry.TelemetryProvider) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	health := tel.HealthMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := pool.Stat()
			health.SetDBPoolActive(int64(stats.AcquiredConns()))
			health.SetDBPoolIdle(int64(stats.IdleConns()))
			if open, err := alerts.CountOpen(ctx); err == nil {
				health.SetOpenAlerts(open)
			}
		}
	}
}
