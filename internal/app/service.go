// Package service provides the core pricing service that implements the
// dependencies required by the HTTP API and the scheduled jobs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	jobqueue "github.com/quotewire/pulse/internal/adapters/mq/queue"
	workerpool "github.com/quotewire/pulse/internal/adapters/mq/worker"
	"github.com/quotewire/pulse/internal/adapters/repository"
	"github.com/quotewire/pulse/internal/adapters/stream"
	"github.com/quotewire/pulse/internal/domain/model"
	"github.com/quotewire/pulse/internal/domain/pricing"
	"github.com/quotewire/pulse/internal/domain/registry"
	"github.com/quotewire/pulse/internal/notify"
	"github.com/quotewire/pulse/pkg/logger"
	"github.com/quotewire/pulse/pkg/metrics"
)

// Sentinel kinds for service errors.
var (
	ErrPriceOutOfBounds = errors.New("price out of bounds")
	ErrQueueSaturated   = errors.New("tick queue saturated")
)

// Service owns the tick pipeline: registry load, job fan-out through the
// queue and worker pool, atomic commits, distribution, and notifications.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      *repository.Store
	engine     *pricing.Engine
	queue      jobqueue.Queue
	workerPool *workerpool.Pool
	hub        *stream.Hub
	dispatcher *notify.Dispatcher
	inflight   *inflightGuard

	// Configuration
	workerCount int
	queueSize   int

	// State
	started bool
	now     func() time.Time

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the tick job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithHub sets the price distribution hub.
func WithHub(h *stream.Hub) Option {
	return func(s *Service) {
		s.hub = h
	}
}

// WithDispatcher sets the notification dispatcher.
func WithDispatcher(d *notify.Dispatcher) Option {
	return func(s *Service) {
		s.dispatcher = d
	}
}

// WithPricingEngine overrides the default pricing engine.
func WithPricingEngine(e *pricing.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a Service around an opened store.
func New(store *repository.Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		workerCount: runtime.NumCPU() * 2,
		queueSize:   10000,
		inflight:    newInflightGuard(),
		now:         time.Now,
		logger:      nil, // resolved on Start
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the tick pipeline components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.engine == nil {
		s.engine = pricing.NewEngine()
	}

	s.logger.Info(ctx, "starting pricing service...")

	s.queue = jobqueue.NewInMemoryQueue(
		jobqueue.WithCapacity(s.queueSize),
		jobqueue.WithBufferSize(s.queueSize),
	)
	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, s)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "pricing service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(ctx, "stopping pricing service...")

	if s.workerPool != nil {
		_ = s.workerPool.Shutdown(ctx)
	}

	s.started = false
	s.logger.Info(ctx, "pricing service stopped")
}

// Tick runs one pricing pass: load a fresh registry snapshot, fan every
// eligible opportunity out to the worker pool, and wait for the batch to
// drain. Failures are contained per opportunity.
func (s *Service) Tick(ctx context.Context) (model.TickReport, error) {
	start := s.now()
	report := model.TickReport{StartedAt: start}

	defer func() {
		metrics.RecordTickDuration(float64(time.Since(start).Milliseconds()))
	}()

	snap, err := s.store.Load(ctx)
	if err != nil {
		metrics.RecordTickError()
		return report, fmt.Errorf("load registry snapshot: %w", err)
	}

	opportunities, err := s.store.ListOpen(ctx, start)
	if err != nil {
		metrics.RecordTickError()
		return report, fmt.Errorf("list open opportunities: %w", err)
	}

	var (
		wg       sync.WaitGroup
		reportMu sync.Mutex
	)
	for _, o := range opportunities {
		if !s.inflight.tryAcquire(o.ID) {
			// Still being priced by a previous tick; never double-process.
			report.Skipped++
			metrics.RecordTickSkipped()
			continue
		}

		wg.Add(1)
		job := jobqueue.Job{
			Opportunity: o,
			Registry:    &snap,
			TickTime:    start,
			Done: func(err error) {
				defer wg.Done()
				reportMu.Lock()
				defer reportMu.Unlock()
				if err != nil {
					report.Errors = append(report.Errors, model.TickError{OpportunityID: o.ID, Err: err})
					metrics.RecordTickError()
					return
				}
				report.Processed++
			},
		}
		if !s.queue.Enqueue(ctx, job) {
			s.inflight.release(o.ID)
			wg.Done()
			report.Errors = append(report.Errors, model.TickError{
				OpportunityID: o.ID,
				Err:           ErrQueueSaturated,
			})
			metrics.RecordTickError()
		}
	}
	wg.Wait()

	if report.Processed > 0 {
		metrics.RecordTickCommitted()
	}
	s.logger.Info(ctx, "tick completed",
		logger.Int("processed", report.Processed),
		logger.Int("skipped", report.Skipped),
		logger.Int("errors", len(report.Errors)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}

// Process prices one opportunity for one tick. Implements worker.Processor.
func (s *Service) Process(ctx context.Context, job jobqueue.Job) (err error) {
	defer func() {
		s.inflight.release(job.Opportunity.ID)
		if job.Done != nil {
			job.Done(err)
		}
	}()

	o := job.Opportunity
	snap := job.Registry
	now := job.TickTime

	signals, values, err := s.collectSignals(ctx, o, snap, now)
	if err != nil {
		return fmt.Errorf("collect signals: %w", err)
	}

	computeStart := time.Now()
	result, err := s.engine.Compute(ctx, pricing.Input{
		OpportunityID:  o.ID,
		PriorPrice:     o.CurrentPrice,
		Floor:          snap.Floor,
		Ceiling:        snap.Ceiling,
		Signals:        signals,
		Ambient:        pricing.Ambient{Trigger: snap.AmbientTrigger, Cooldown: snap.AmbientCooldown, Rate: snap.AmbientRate},
		LastMovedAt:    o.LastMovedAt,
		LastDecayAt:    o.LastDecayAt,
		InventoryLevel: o.InventoryLevel,
		Now:            now,
	})
	metrics.RecordComputeLatency(float64(time.Since(computeStart).Milliseconds()))
	if err != nil {
		return fmt.Errorf("compute price: %w", err)
	}

	moved := result.Trend != model.TrendStable
	commit := repository.TickCommit{
		OpportunityID:    o.ID,
		ExpectedVersion:  o.Version,
		NewPrice:         result.Price,
		VariableSnapshot: values,
		PriceMoved:       moved,
		AmbientApplied:   result.AmbientApplied,
		Snapshot: model.PriceSnapshot{
			ID:             uuid.NewString(),
			OpportunityID:  o.ID,
			SuggestedPrice: result.Price,
			Payload: model.SnapshotPayload{
				PriorPrice:     o.CurrentPrice,
				Delta:          result.Delta,
				Contributions:  result.Contributions,
				AmbientApplied: result.AmbientApplied,
				Clamped:        result.Clamped,
				Source:         "tick",
			},
			TickTime: now,
		},
	}
	if err := s.store.CommitTick(ctx, commit); err != nil {
		return fmt.Errorf("commit tick: %w", err)
	}

	o.CurrentPrice = result.Price
	o.VariableSnapshot = values
	if moved {
		o.LastMovedAt = now
	}
	if result.AmbientApplied {
		o.LastDecayAt = now
	}
	o.Version++

	if moved && s.hub != nil {
		s.hub.Publish(model.PriceUpdate{
			OpportunityID:   o.ID,
			CurrentPrice:    result.Price,
			Trend:           result.Trend,
			LastPriceUpdate: now,
		})
	}
	if s.dispatcher != nil {
		s.dispatcher.Evaluate(ctx, o, snap, now)
	}

	return nil
}

// collectSignals reads the demand signals inside the configured window and
// pairs them with the registered variables. Variables with no backing
// signal contribute zero rather than failing the job.
func (s *Service) collectSignals(ctx context.Context, o model.Opportunity, snap *registry.Snapshot, now time.Time) ([]pricing.Signal, map[string]float64, error) {
	since := now.Add(-snap.SignalWindow)

	signals := make([]pricing.Signal, 0, len(snap.Variables))
	values := make(map[string]float64, len(snap.Variables))

	for name, v := range snap.Variables {
		var value float64
		switch name {
		case registry.VarPitchVelocity:
			n, err := s.store.CountRecentPitches(ctx, o.ID, since)
			if err != nil {
				return nil, nil, err
			}
			value = float64(n)
		case registry.VarClickBoost:
			n, err := s.store.CountClicks(ctx, o.ID, since)
			if err != nil {
				return nil, nil, err
			}
			value = float64(n)
		case registry.VarConversionRate:
			successful, total, err := s.store.OutletConversion(ctx, o.OutletID)
			if err != nil {
				return nil, nil, err
			}
			if total > 0 {
				value = float64(successful) / float64(total)
			}
		case registry.VarOutletLoad:
			n, err := s.store.OutletOpenCount(ctx, o.OutletID, o.ID, now)
			if err != nil {
				return nil, nil, err
			}
			value = float64(n)
		case registry.VarBaselineDecay:
			value = -snap.BaselineDecayRate
		default:
			s.logger.Warn(ctx, "variable has no backing signal", logger.String("variable", name))
		}

		signals = append(signals, pricing.Signal{Name: name, Value: value, Weight: v.Weight, Fn: v.NonlinearFn})
		values[name] = value
	}

	return signals, values, nil
}

// Sweep closes every opportunity past its deadline and drops their
// notification ledger state. Idempotent; re-running finds nothing left to
// close.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	closed, err := s.store.CloseExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("deadline sweep: %w", err)
	}
	if s.dispatcher != nil {
		for _, id := range closed {
			s.dispatcher.Forget(ctx, id)
		}
	}
	if len(closed) > 0 {
		s.logger.Info(ctx, "deadline sweep closed opportunities", logger.Int("closed", len(closed)))
	}
	return len(closed), nil
}

// ApplyPriceUpdate is the programmatic ingress: set an explicit price on an
// open opportunity, bounded by the current floor and ceiling, then publish
// and evaluate notifications like any other committed change.
func (s *Service) ApplyPriceUpdate(ctx context.Context, opportunityID string, price float64) (model.Opportunity, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("load registry snapshot: %w", err)
	}
	if price < snap.Floor || price > snap.Ceiling {
		return model.Opportunity{}, fmt.Errorf("%w: %.2f not in [%.2f, %.2f]",
			ErrPriceOutOfBounds, price, snap.Floor, snap.Ceiling)
	}

	prior, err := s.store.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return model.Opportunity{}, err
	}

	now := s.now()
	o, err := s.store.ApplyPriceUpdate(ctx, opportunityID, price,
		model.SnapshotPayload{Source: "ingress"}, uuid.NewString())
	if err != nil {
		return model.Opportunity{}, err
	}

	if s.hub != nil {
		s.hub.Publish(model.PriceUpdate{
			OpportunityID:   o.ID,
			CurrentPrice:    o.CurrentPrice,
			Trend:           pricing.TrendOf(prior.CurrentPrice, o.CurrentPrice),
			LastPriceUpdate: now,
		})
	}
	if s.dispatcher != nil {
		s.dispatcher.Evaluate(ctx, o, &snap, now)
	}
	return o, nil
}

// RecordClick stores one click signal for an existing opportunity.
func (s *Service) RecordClick(ctx context.Context, opportunityID string) error {
	if _, err := s.store.GetOpportunity(ctx, opportunityID); err != nil {
		return err
	}
	return s.store.AppendClick(ctx, model.ClickEvent{
		ID:            uuid.NewString(),
		OpportunityID: opportunityID,
		ClickedAt:     s.now(),
	})
}

// RecordPitch mirrors a pitch into the local read model.
func (s *Service) RecordPitch(ctx context.Context, p model.Pitch) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, err := s.store.GetOpportunity(ctx, p.OpportunityID); err != nil {
		return err
	}
	return s.store.UpsertPitch(ctx, p)
}

// CreateOpportunity registers a new opportunity for pricing.
func (s *Service) CreateOpportunity(ctx context.Context, o *model.Opportunity) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return s.store.CreateOpportunity(ctx, o)
}

// GetOpportunity returns one opportunity.
func (s *Service) GetOpportunity(ctx context.Context, id string) (model.Opportunity, error) {
	return s.store.GetOpportunity(ctx, id)
}

// History returns the most recent price snapshots, newest first.
func (s *Service) History(ctx context.Context, opportunityID string, limit int) ([]model.PriceSnapshot, error) {
	if _, err := s.store.GetOpportunity(ctx, opportunityID); err != nil {
		return nil, err
	}
	return s.store.Snapshots(ctx, opportunityID, limit)
}

// RegisterPushSubscription stores or replaces a user's push endpoint.
func (s *Service) RegisterPushSubscription(ctx context.Context, sub model.PushSubscription) error {
	return s.store.UpsertPushSubscription(ctx, sub)
}

// UpsertVariable hot-updates a pricing variable; takes effect next tick.
func (s *Service) UpsertVariable(ctx context.Context, v registry.Variable) error {
	return s.store.UpsertVariable(ctx, v)
}

// UpsertConfig hot-updates a runtime config value; takes effect next tick.
func (s *Service) UpsertConfig(ctx context.Context, key, value string) error {
	return s.store.UpsertConfig(ctx, key, value)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}

	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
	}
	if s.hub != nil {
		stats["subscribers"] = s.hub.SubscriberCount()
	}
	if open, err := s.store.CountOpen(ctx, s.now()); err == nil {
		stats["openOpportunities"] = open
		metrics.UpdateOpenOpportunities(open)
	}

	return stats
}
