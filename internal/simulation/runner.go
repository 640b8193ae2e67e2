package simulation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quotewire/pulse/pkg/logger"
)

const healthWaitTimeout = 15 * time.Second

// Run executes a complete simulation pass against a running service.
func Run(ctx context.Context, cfg *Config) error {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("simulation")

	log.Info(ctx, "starting pricing simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("opportunities", cfg.Opportunities),
		logger.Int("clicks", cfg.Clicks),
		logger.Int("pitches", cfg.Pitches),
		logger.Int("workers", cfg.Workers),
	)

	c := newClient(cfg)
	if err := c.waitHealthy(ctx, healthWaitTimeout); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	opportunities := generateOpportunities(cfg)
	for _, o := range opportunities {
		if err := c.createOpportunity(ctx, o); err != nil {
			stats.Failed++
			log.Warn(ctx, "opportunity creation failed", logger.Error(err))
			continue
		}
		stats.OpportunitiesCreated++
	}

	initial := snapshotPrices(ctx, c, opportunities)

	var failed atomic.Int64
	submitTraffic(ctx, cfg, c, opportunities, stats, &failed)
	stats.Failed += int(failed.Load())

	if cfg.Observe > 0 {
		log.Info(ctx, "observing price movement", logger.Duration("window", cfg.Observe))
		select {
		case <-ctx.Done():
		case <-time.After(cfg.Observe):
		}
		final := snapshotPrices(ctx, c, opportunities)
		for id, before := range initial {
			if after, ok := final[id]; ok && after != before {
				stats.PricesMoved++
			}
		}
	}

	stats.Duration = time.Since(stats.StartTime)
	log.Info(ctx, "simulation complete",
		logger.Int("opportunitiesCreated", stats.OpportunitiesCreated),
		logger.Int("clicksSubmitted", stats.ClicksSubmitted),
		logger.Int("clicksIgnored", stats.ClicksIgnored),
		logger.Int("pitchesSubmitted", stats.PitchesSubmitted),
		logger.Int("pricesMoved", stats.PricesMoved),
		logger.Int("failed", stats.Failed),
		logger.Duration("elapsed", stats.Duration),
	)
	return nil
}

// submitTraffic fans clicks and pitches out over the worker pool. Roughly a
// tenth of the clicks go out untagged to exercise the webhook filter.
func submitTraffic(ctx context.Context, cfg *Config, c *client, opportunities []opportunityRequest, stats *Stats, failed *atomic.Int64) {
	type task func(context.Context) error

	tasks := make(chan task)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				if err := t(ctx); err != nil {
					failed.Add(1)
				}
			}
		}()
	}

	var statsMu sync.Mutex
	for i := 0; i < cfg.Clicks; i++ {
		tagged := rand.Float64() >= 0.1
		id := pickOpportunity(opportunities)
		tasks <- func(ctx context.Context) error {
			err := c.sendClick(ctx, id, tagged)
			if err == nil {
				statsMu.Lock()
				if tagged {
					stats.ClicksSubmitted++
				} else {
					stats.ClicksIgnored++
				}
				statsMu.Unlock()
			}
			return err
		}
	}
	for i := 0; i < cfg.Pitches; i++ {
		p := generatePitch(opportunities)
		tasks <- func(ctx context.Context) error {
			err := c.sendPitch(ctx, p)
			if err == nil {
				statsMu.Lock()
				stats.PitchesSubmitted++
				statsMu.Unlock()
			}
			return err
		}
	}
	close(tasks)
	wg.Wait()
}

func snapshotPrices(ctx context.Context, c *client, opportunities []opportunityRequest) map[string]float64 {
	out := make(map[string]float64, len(opportunities))
	for _, o := range opportunities {
		resp, err := c.getOpportunity(ctx, o.ID)
		if err != nil {
			continue
		}
		out[resp.ID] = resp.CurrentPrice
	}
	return out
}
