// Command karbonworker runs the queue consumers and the periodic jobs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/karbonuyum/platform/pkg/analytics"
	"github.com/karbonuyum/platform/pkg/artifacts"
	"github.com/karbonuyum/platform/pkg/calc"
	"github.com/karbonuyum/platform/pkg/config"
	"github.com/karbonuyum/platform/pkg/events"
	"github.com/karbonuyum/platform/pkg/ingest"
	"github.com/karbonuyum/platform/pkg/notify"
	"github.com/karbonuyum/platform/pkg/observability"
	"github.com/karbonuyum/platform/pkg/ocr"
	"github.com/karbonuyum/platform/pkg/report"
	"github.com/karbonuyum/platform/pkg/store"
	"github.com/karbonuyum/platform/pkg/worker"
)

var consumedQueues = []string{
	events.QueueIngestion,
	events.QueueInvalidData,
	events.QueueReports,
	events.QueueAnalytics,
}

func main() {
	cfg := config.Load()
	log := observability.NewLogger(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	var locker events.Locker
	if cfg.IdempotencyPath != "" {
		sqliteLocker, err := events.NewSQLiteLocker(cfg.IdempotencyPath)
		if err != nil {
			return err
		}
		defer sqliteLocker.Close()
		locker = sqliteLocker
	} else {
		locker = events.NewRedisLocker(rdb)
	}

	var artifactStore artifacts.Store
	if cfg.S3Bucket != "" {
		artifactStore, err = artifacts.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
	} else {
		artifactStore, err = artifacts.NewLocalStore(cfg.ReportDir)
	}
	if err != nil {
		return err
	}

	users := store.NewUserStore(db)
	companies := store.NewCompanyStore(db)
	facilities := store.NewFacilityStore(db)
	activities := store.NewActivityStore(db)
	financials := store.NewFinancialsStore(db)
	invoices := store.NewInvoiceStore(db)
	reports := store.NewReportStore(db)
	notifications := store.NewNotificationStore(db)
	analyticsStore := store.NewAnalyticsStore(db)
	eventLog := store.NewEventLogStore(db)

	var mailer notify.Mailer
	if cfg.EmailEnabled {
		mailer = notify.NewSendGridMailer(cfg.EmailAPIKey, cfg.EmailFromAddr, cfg.EmailAPIURL)
	}
	notifier := notify.NewService(notifications, users, mailer, log)

	calcSvc := calc.NewService(calc.NewClimatiq(cfg.ClimatiqAPIKey, cfg.ClimatiqURL), metrics, log)
	ingestConsumer := ingest.NewConsumer(activities, eventLog, calcSvc, log)
	ocrWorker := ocr.NewWorker(invoices, eventLog,
		ocr.NewVisionDetector(cfg.VisionAPIKey, cfg.VisionURL),
		ocr.PopplerRasterizer{}, artifactStore, notifier.Notify, metrics, log)
	reportWorker := report.NewWorker(reports, companies, facilities, activities, financials,
		users, eventLog, artifactStore, notifier,
		time.Duration(cfg.ReportTTLDays)*24*time.Hour, log)
	jobs := analytics.NewJobs(analyticsStore, activities, companies, notifier.Notify, log)

	rt := worker.NewRuntime(bus, locker, metrics, cfg.MaxRetries, cfg.RetryBackoff, log)
	rt.Register(events.TypeActivityCreated, ingestConsumer.HandleActivityCreated)
	rt.Register(events.TypeActivityInvalid, ingestConsumer.HandleActivityInvalid)
	rt.Register(events.TypeInvoiceUploaded, ocrWorker.HandleInvoiceUploaded)
	rt.Register(events.TypeReportRequested, reportWorker.HandleReportRequested)
	rt.Register(events.TypeAnalyticsRefresh, analyticsHandler(jobs))
	rt.SetBackoff(events.TypeReportRequested, cfg.ReportRetryBackoff)
	rt.SetBackoff(events.TypeROIRequested, cfg.ROIRetryBackoff)
	rt.OnTerminalFailure(events.TypeInvoiceUploaded, ocrWorker.MarkTerminalFailure)
	rt.OnTerminalFailure(events.TypeReportRequested, reportWorker.MarkTerminalFailure)

	sched := worker.NewScheduler(log)
	sched.Add("pump_delayed", 30*time.Second,
		worker.PumpDelayedQueues(bus, metrics, consumedQueues, log))
	sched.Add("report_cleanup", time.Hour, reportWorker.Cleanup)
	sched.Add("anomaly_scan", 24*time.Hour, jobs.ScanAnomalies)
	sched.Add("leaderboards", 24*time.Hour, jobs.RefreshLeaderboards)
	sched.Add("industry_benchmarks", 7*24*time.Hour, jobs.RefreshIndustryBenchmarks)

	log.Info("worker started", "queues", consumedQueues)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		rt.Run(ctx, consumedQueues...)
	}()
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	wg.Wait()
	log.Info("worker stopped")
	return nil
}

// analyticsHandler routes a refresh event to the named job so deployments can
// trigger a recompute by publishing instead of waiting for the next tick.
func analyticsHandler(jobs *analytics.Jobs) worker.Handler {
	return func(ctx context.Context, payload []byte) error {
		var ev events.AnalyticsRefresh
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decode analytics event: %w", err)
		}
		switch ev.Job {
		case "industry_benchmarks":
			return jobs.RefreshIndustryBenchmarks(ctx)
		case "leaderboards":
			return jobs.RefreshLeaderboards(ctx)
		case "anomaly_scan":
			return jobs.ScanAnomalies(ctx)
		default:
			return fmt.Errorf("unknown analytics job %q", ev.Job)
		}
	}
}
