package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	billingapp "github.com/odyssee/backend/internal/application/billing"
	paymentapp "github.com/odyssee/backend/internal/application/payment"
	tenancyapp "github.com/odyssee/backend/internal/application/tenancy"
	tripapp "github.com/odyssee/backend/internal/application/trip"
	"github.com/odyssee/backend/internal/domain/shared"
	"github.com/odyssee/backend/internal/infrastructure/auth"
	stripebilling "github.com/odyssee/backend/internal/infrastructure/billing"
	"github.com/odyssee/backend/internal/infrastructure/cache"
	"github.com/odyssee/backend/internal/infrastructure/config"
	"github.com/odyssee/backend/internal/infrastructure/generator"
	"github.com/odyssee/backend/internal/infrastructure/logger"
	"github.com/odyssee/backend/internal/infrastructure/mail"
	"github.com/odyssee/backend/internal/infrastructure/migration"
	"github.com/odyssee/backend/internal/infrastructure/persistence"
	"github.com/odyssee/backend/internal/infrastructure/publishing"
	"github.com/odyssee/backend/internal/infrastructure/render"
	"github.com/odyssee/backend/internal/infrastructure/scheduler"
	"github.com/odyssee/backend/internal/infrastructure/secrets"
	"github.com/odyssee/backend/internal/infrastructure/telemetry"
	"github.com/odyssee/backend/internal/interfaces/http/handler"
	"github.com/odyssee/backend/internal/interfaces/http/middleware"
	"github.com/odyssee/backend/internal/interfaces/http/router"
	"github.com/odyssee/backend/migrations"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

//	@title			Odyssée API
//	@version		1.0
//	@description	Trip generation, publication and payments for travel agencies
//	@BasePath		/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

const defaultShutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The log provider has to exist before the logger so that records are
	// bridged from the first line on.
	logProvider, err := telemetry.NewLoggerProvider(ctx, cfg.Telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize log export: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.FromAppConfig(cfg.Log), logProvider.ZapCores()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting Odyssée backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		shutdownTelemetry(log, logProvider)
		_ = log.Sync()
		os.Exit(1)
	}
	shutdownTelemetry(log, logProvider)
	log.Info("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	tracerProvider, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	profiler, err := telemetry.NewProfiler(cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init profiler: %w", err)
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Warn("Error stopping profiler", zap.Error(err))
		}
		shutdownTelemetry(log, meterProvider, tracerProvider)
	}()

	metrics, err := telemetry.NewMetrics(meterProvider.Meter(cfg.Telemetry.ServiceName))
	if err != nil {
		return fmt.Errorf("init service metrics: %w", err)
	}

	// A wrong or missing master key must stop the process before it serves
	// anything, so this comes before the database.
	vault, err := secrets.NewVault(cfg.Security.MasterEncryptionKey)
	if err != nil {
		return fmt.Errorf("init secret vault: %w", err)
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), 200*time.Millisecond)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		if err := telemetry.RegisterDBTracing(db.DB, cfg.Database.DBName); err != nil {
			return fmt.Errorf("register database tracing: %w", err)
		}
	}
	if cfg.Database.AutoMigrate {
		if err := runMigrations(cfg.Database, log); err != nil {
			return err
		}
	}

	location, err := cfg.Quota.Location()
	if err != nil {
		return fmt.Errorf("quota timezone %q: %w", cfg.Quota.Timezone, err)
	}

	idempotency, err := newIdempotencyStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if idempotency != nil {
		defer func() { _ = idempotency.Close() }()
	}

	sheets, err := render.NewSheetRenderer()
	if err != nil {
		return fmt.Errorf("load sheet templates: %w", err)
	}
	pdf := render.NewPDFRenderer(cfg.Render, log)
	defer func() { _ = pdf.Close() }()

	// Repositories
	agencyRepo := persistence.NewGormAgencyRepository(db.DB)
	ledger := persistence.NewGormQuotaLedger(db.DB,
		persistence.WithLedgerLocation(location),
		persistence.WithLockTimeout(cfg.Quota.LockTimeout),
	)

	// Application services
	quotaService := billingapp.NewQuotaService(ledger, metrics, log)
	credentialService := tenancyapp.NewCredentialService(agencyRepo, vault, metrics, log)
	generationService := tripapp.NewGenerationService(
		credentialService,
		quotaService,
		generator.NewGeminiClient(cfg.Gemini, log),
		idempotency,
		shared.IdempotencyConfig{Enabled: cfg.Idempotency.Enabled, TTL: cfg.Idempotency.TTL},
		metrics,
		log,
	)
	var places tripapp.PlaceLookup
	if cfg.Places.Enabled {
		places = generator.NewPlacesClient(cfg.Places, log)
	}
	publicationService := tripapp.NewPublicationService(tripapp.PublicationDeps{
		Agencies: agencyRepo,
		Configs:  credentialService,
		Sheets:   sheets,
		PDF:      pdf,
		FTP:      publishing.NewFTPPublisher(0, log),
		S3:       publishing.NewS3Publisher(log),
		Places:   places,
		Keys:     credentialService,
	}, log)
	paymentService := paymentapp.NewPaymentService(
		agencyRepo,
		credentialService,
		stripebilling.NewStripePaymentLinks(cfg.Stripe, log),
		mail.NewSMTPMailer(cfg.Mail.Timeout, log),
		cfg.Mail,
		log,
	)

	// HTTP
	middleware.SetupValidator()
	base := handler.NewBaseHandler(log, clockwork.NewRealClock())
	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		BaseDomain:     cfg.App.BaseDomain,
		TracingEnabled: tracerProvider.IsEnabled(),
		HTTP:           cfg.HTTP,
		Tokens:         auth.NewJWTService(cfg.Security),
		Agencies:       agencyRepo,
		Logger:         log,
	}, router.Handlers{
		Health:      handler.NewHealthHandler(base, db),
		Generation:  handler.NewGenerationHandler(base, generationService, quotaService),
		Credentials: handler.NewCredentialHandler(base, credentialService),
		Trips:       handler.NewTripHandler(base, publicationService),
		Payments:    handler.NewPaymentHandler(base, paymentService),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Scheduler.Enabled {
		reporter, err := scheduler.NewUsageReporter(agencyRepo, metrics, cfg.Scheduler, log,
			scheduler.WithLocation(location))
		if err != nil {
			return err
		}
		if err := reporter.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			return reporter.Stop()
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		timeout := cfg.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// runMigrations applies the embedded migrations on a dedicated connection;
// closing the migrator closes the handle it was given.
func runMigrations(cfg config.DatabaseConfig, log *zap.Logger) error {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	m, err := migration.NewFromFS(sqlDB, migrations.FS, log)
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}

func newIdempotencyStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (shared.IdempotencyStore, error) {
	if !cfg.Idempotency.Enabled {
		log.Info("Idempotency keys disabled")
		return nil, nil
	}
	return cache.NewIdempotencyStore(ctx, cfg, log)
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func shutdownTelemetry(log *zap.Logger, providers ...shutdowner) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, p := range providers {
		if err := p.Shutdown(ctx); err != nil {
			log.Warn("Error flushing telemetry", zap.Error(err))
		}
	}
}
