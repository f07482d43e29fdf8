package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"optionstream/internal/models"
	"optionstream/internal/performance"
	"optionstream/pkg/utils"
)

// ViewSource produces the current option-chain view for a symbol. The
// server wires this to the snapshot cache backed by the analytics
// engine.
type ViewSource interface {
	BuildView(ctx context.Context, symbol string) (*models.OptionChainView, error)
}

// Encoder serializes a view into the wire message broadcast to
// subscribers.
type Encoder func(*models.OptionChainView) ([]byte, error)

// SchedulerConfig holds broadcast scheduler configuration.
type SchedulerConfig struct {
	// Interval is the broadcast period while the market is open.
	Interval time.Duration
	// ClosedInterval is the broadcast period outside market hours;
	// chains barely move, so the sweep slows down.
	ClosedInterval time.Duration
	// SymbolTimeout bounds one symbol's view build so a stuck upstream
	// cannot stall the tick for other symbols.
	SymbolTimeout time.Duration
	// Workers sizes the symbol worker pool.
	Workers int
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:       10 * time.Second,
		ClosedInterval: time.Minute,
		SymbolTimeout:  5 * time.Second,
		Workers:        4,
	}
}

// Scheduler is the periodic broadcast driver. Each tick it sweeps
// every symbol with at least one subscriber, builds that symbol's view
// through the ViewSource, and fans the encoded message out through the
// registry. Ticks are serial: a sweep that overruns the interval
// delays the next tick instead of overlapping it.
type Scheduler struct {
	cfg      SchedulerConfig
	registry *Registry
	source   ViewSource
	encode   Encoder
	pool     *performance.WorkerPool
	log      zerolog.Logger

	// marketStatus is injectable for tests.
	marketStatus func(time.Time) models.MarketStatus

	ticks      atomic.Uint64
	buildFails atomic.Uint64
	delivered  atomic.Uint64
}

// NewScheduler creates a broadcast scheduler.
func NewScheduler(cfg SchedulerConfig, registry *Registry, source ViewSource, encode Encoder, log zerolog.Logger) *Scheduler {
	def := DefaultSchedulerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.ClosedInterval <= 0 {
		cfg.ClosedInterval = def.ClosedInterval
	}
	if cfg.SymbolTimeout <= 0 {
		cfg.SymbolTimeout = def.SymbolTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}

	return &Scheduler{
		cfg:          cfg,
		registry:     registry,
		source:       source,
		encode:       encode,
		pool:         performance.NewWorkerPool(cfg.Workers),
		log:          log.With().Str("component", "scheduler").Logger(),
		marketStatus: utils.GetMarketStatus,
	}
}

// Run drives the broadcast loop until ctx is cancelled. It blocks;
// callers run it in a goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	s.pool.Start()
	defer s.pool.Stop()

	timer := time.NewTimer(s.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.Tick(ctx)
			timer.Reset(s.interval())
		}
	}
}

// interval picks the broadcast period for the current market status.
func (s *Scheduler) interval() time.Duration {
	if s.marketStatus(time.Now()) == models.MarketClosed {
		return s.cfg.ClosedInterval
	}
	return s.cfg.Interval
}

// Tick runs one full sweep synchronously: every subscribed symbol is
// built and broadcast, with symbol-level parallelism across the worker
// pool. One symbol's failure is logged and isolated.
func (s *Scheduler) Tick(ctx context.Context) {
	s.ticks.Add(1)
	symbols := s.registry.SymbolsWithSubscribers()
	if len(symbols) == 0 {
		return
	}

	start := time.Now()
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		symbol := symbol
		wg.Add(1)
		task := func() {
			defer wg.Done()
			s.broadcastSymbol(ctx, symbol)
		}
		// Run inline when the pool queue is full so the sweep always
		// covers every symbol.
		if !s.pool.Submit(task) {
			task()
		}
	}
	wg.Wait()

	s.log.Debug().
		Int("symbols", len(symbols)).
		Dur("elapsed", time.Since(start)).
		Msg("broadcast tick complete")
}

func (s *Scheduler) broadcastSymbol(ctx context.Context, symbol string) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SymbolTimeout)
	defer cancel()

	view, err := s.source.BuildView(ctx, symbol)
	if err != nil {
		s.buildFails.Add(1)
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("view build failed, skipping symbol this tick")
		return
	}

	msg, err := s.encode(view)
	if err != nil {
		s.buildFails.Add(1)
		s.log.Error().Err(err).Str("symbol", symbol).Msg("view encode failed")
		return
	}

	n := s.registry.Broadcast(symbol, msg)
	s.delivered.Add(uint64(n))
}

// SchedulerStats holds broadcast counters.
type SchedulerStats struct {
	Ticks      uint64 `json:"ticks"`
	BuildFails uint64 `json:"build_fails"`
	Delivered  uint64 `json:"delivered"`
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Ticks:      s.ticks.Load(),
		BuildFails: s.buildFails.Load(),
		Delivered:  s.delivered.Load(),
	}
}
