package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/quotewire/pulse/internal/adapters/http/api"
	"github.com/quotewire/pulse/internal/adapters/repository"
	"github.com/quotewire/pulse/internal/adapters/stream"
	app "github.com/quotewire/pulse/internal/app"
	"github.com/quotewire/pulse/internal/config"
	"github.com/quotewire/pulse/internal/domain/ledger"
	"github.com/quotewire/pulse/internal/notify"
	"github.com/quotewire/pulse/internal/scheduler"
	"github.com/quotewire/pulse/pkg/logger"
	"github.com/quotewire/pulse/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second // websocket upgrades share this server
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	// Disable default Go metrics collection to avoid duplicate metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := repository.New(ctx, cfg.DBPath, cfg.RegistryDefaults())
	if err != nil {
		loggerInstance.Error(ctx, "failed to open store", logger.Error(err))
		return
	}
	defer func() {
		_ = store.Close()
	}()

	// Notification channels: email is authoritative, push best-effort.
	email := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.NotifyFromAddress,
	})
	// The push gateway itself is built per registry snapshot so operators can
	// rotate or disable it through the config store without a restart; the
	// process config only supplies fallback credentials and the timeout.
	dispatcher := notify.NewDispatcher(
		ledger.NewInMemoryLedger(ledger.WithMaxSize(cfg.LedgerSize)),
		store,
		email,
		notify.WithPushOptions(notify.WithTimeout(time.Duration(cfg.PushTimeoutMS)*time.Millisecond)),
	)

	hub := stream.NewHub(
		stream.WithWriteTimeout(time.Duration(cfg.StreamWriteTimeoutMS)*time.Millisecond),
		stream.WithMaxSubscribers(cfg.StreamMaxSubscribers),
	)

	svc := app.New(store,
		app.WithLogger(loggerInstance),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.TickQueueSize),
		app.WithHub(hub),
		app.WithDispatcher(dispatcher),
	)
	if err := svc.Start(ctx); err != nil {
		loggerInstance.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop(context.Background())

	// Recurring jobs: the price tick and the deadline-closure sweep.
	sched := scheduler.New()
	if err := sched.AddJob(ctx, "price-tick", cfg.TickSchedule, func(jobCtx context.Context) {
		if _, err := svc.Tick(jobCtx); err != nil {
			loggerInstance.Error(jobCtx, "tick failed", logger.Error(err))
		}
	}); err != nil {
		loggerInstance.Error(ctx, "failed to schedule tick", logger.Error(err))
		return
	}
	if err := sched.AddJob(ctx, "deadline-sweep", cfg.SweepSchedule, func(jobCtx context.Context) {
		if _, err := svc.Sweep(jobCtx); err != nil {
			loggerInstance.Error(jobCtx, "sweep failed", logger.Error(err))
		}
	}); err != nil {
		loggerInstance.Error(ctx, "failed to schedule sweep", logger.Error(err))
		return
	}
	sched.Start()

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc)
	go startSystemMetricsUpdater(ctx)

	// HTTP mux and routes.
	mux := http.NewServeMux()
	apiServer := api.NewServer(svc, api.HistoryLimits{
		Default: cfg.HistoryDefaultLimit,
		Max:     cfg.HistoryMaxLimit,
	}, hub)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		loggerInstance.Warn(ctx, "scheduler shutdown incomplete", logger.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// startServiceMetricsUpdater refreshes service gauges on an interval.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := svc.GetStats(ctx)
			if queueLen, ok := stats["queueLength"].(int); ok {
				metrics.UpdateQueueSize(queueLen)
			}
			if subscribers, ok := stats["subscribers"].(int); ok {
				metrics.UpdateSubscriberCount(subscribers)
			}
		}
	}
}

// startSystemMetricsUpdater keeps goroutine pressure visible in logs when
// debug logging is enabled.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(serviceMetricsInterval * 2)
	defer ticker.Stop()

	log := logger.Get().Named("system")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			log.Debug(ctx, "system stats",
				logger.Int("goroutines", runtime.NumGoroutine()),
				logger.Int64("heap_alloc_bytes", int64(m.Alloc)),
			)
		}
	}
}
