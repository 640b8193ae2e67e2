package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/quotewire/pulse/internal/simulation"
	"github.com/quotewire/pulse/pkg/logger"
)

func main() {
	cfg := &simulation.Config{}
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:9090", "base URL of the pricing service")
	flag.IntVar(&cfg.Opportunities, "opportunities", 50, "number of opportunities to create")
	flag.IntVar(&cfg.Outlets, "outlets", 10, "number of distinct outlets")
	flag.IntVar(&cfg.Clicks, "clicks", 2000, "number of click webhooks to send")
	flag.IntVar(&cfg.Pitches, "pitches", 500, "number of pitch webhooks to send")
	flag.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*2, "number of concurrent workers")
	flag.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "HTTP request timeout")
	flag.DurationVar(&cfg.Observe, "observe", 70*time.Second, "how long to watch prices after traffic stops")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose logging")
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if cfg.Verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := simulation.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		os.Exit(1)
	}
}
