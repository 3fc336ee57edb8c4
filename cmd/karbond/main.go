// Command karbond serves the HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/karbonuyum/platform/pkg/api"
	"github.com/karbonuyum/platform/pkg/artifacts"
	"github.com/karbonuyum/platform/pkg/auth"
	"github.com/karbonuyum/platform/pkg/authz"
	"github.com/karbonuyum/platform/pkg/benchmark"
	"github.com/karbonuyum/platform/pkg/calc"
	"github.com/karbonuyum/platform/pkg/config"
	"github.com/karbonuyum/platform/pkg/events"
	"github.com/karbonuyum/platform/pkg/ingest"
	"github.com/karbonuyum/platform/pkg/notify"
	"github.com/karbonuyum/platform/pkg/observability"
	"github.com/karbonuyum/platform/pkg/store"
	"github.com/karbonuyum/platform/pkg/suggest"
)

func main() {
	cfg := config.Load()
	log := observability.NewLogger(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.JWTSecret == "" {
		return errors.New("SECRET_KEY must be set")
	}

	shutdownMetrics, err := observability.SetupMeterProvider(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownMetrics(context.Background()) }()
	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBSSLMode)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.InitAll(ctx, db); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	bus := events.NewBus(rdb)

	var artifactStore artifacts.Store
	if cfg.S3Bucket != "" {
		artifactStore, err = artifacts.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
	} else {
		artifactStore, err = artifacts.NewLocalStore(cfg.UploadDir)
	}
	if err != nil {
		return err
	}

	users := store.NewUserStore(db)
	companies := store.NewCompanyStore(db)
	facilities := store.NewFacilityStore(db)
	activities := store.NewActivityStore(db)
	financials := store.NewFinancialsStore(db)
	targets := store.NewTargetStore(db)
	invoices := store.NewInvoiceStore(db)
	reports := store.NewReportStore(db)
	suppliers := store.NewSupplierStore(db)
	notifications := store.NewNotificationStore(db)
	analyticsStore := store.NewAnalyticsStore(db)

	calcSvc := calc.NewService(calc.NewClimatiq(cfg.ClimatiqAPIKey, cfg.ClimatiqURL), metrics, log)
	ingestSvc := ingest.NewService(activities, bus, calcSvc, cfg.EventPipelineEnabled, log)

	var mailer notify.Mailer
	if cfg.EmailEnabled {
		mailer = notify.NewSendGridMailer(cfg.EmailAPIKey, cfg.EmailFromAddr, cfg.EmailAPIURL)
	}
	notifier := notify.NewService(notifications, users, mailer, log)

	suggestDefaults, err := config.LoadParameterProfile(cfg.ParameterProfilePath)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Deps{
		Config:        cfg,
		Users:         users,
		Companies:     companies,
		Facilities:    facilities,
		Activities:    activities,
		Financials:    financials,
		Targets:       targets,
		Invoices:      invoices,
		Reports:       reports,
		Suppliers:     suppliers,
		Notifications: notifications,
		Analytics:     analyticsStore,
		Tokens:        auth.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.JWTExpiryMinutes)*time.Minute),
		Authorizer:    authz.NewAuthorizer(companies, facilities),
		Ingest:        ingestSvc,
		Calc:          calcSvc,
		Benchmark:     benchmark.NewService(activities, companies),
		Suggest:       suggest.NewEngine(facilities, activities, financials, analyticsStore, suggestDefaults, log),
		Notifier:      notifier,
		Bus:           bus,
		Artifacts:     artifactStore,
		LimitGlobal:   auth.NewRedisLimiter(rdb, "global", cfg.RateLimitGlobalPerMin, time.Minute),
		LimitCalc:     auth.NewRedisLimiter(rdb, "calc", cfg.RateLimitCalcPerMin, time.Minute),
		LimitCSV:      auth.NewRedisLimiter(rdb, "csv", cfg.RateLimitCSVPerHour, time.Hour),
		LimitWizard:   auth.NewRedisLimiter(rdb, "wizard", cfg.RateLimitWizardPerMin, time.Minute),
		Log:           log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
