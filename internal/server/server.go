package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"optionstream/internal/analytics"
	"optionstream/internal/cache"
	"optionstream/internal/config"
	"optionstream/internal/errors"
	"optionstream/internal/models"
	"optionstream/internal/quotes"
	"optionstream/internal/signals"
	"optionstream/internal/store"
	"optionstream/internal/stream"
)

// Server ties the chain service, registry, broadcast scheduler and the
// HTTP/WebSocket surface into one runnable unit.
type Server struct {
	cfg       *config.Config
	engine    *gin.Engine
	http      *http.Server
	registry  *stream.Registry
	scheduler *stream.Scheduler
	service   *ChainService
	store     store.Store
	journal   *store.Journal
	log       zerolog.Logger
}

// New builds a fully wired server from config. source is the quote
// backend (Kite or mock); st may be nil to disable persistence.
func New(cfg *config.Config, source quotes.QuoteSource, st store.Store, log zerolog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.ErrConfigInvalid
	}

	engine := analytics.NewEngine(cfg.Analytics.RiskFreeRate)
	snapCache := cache.New(cache.Config{
		TTL:                cfg.Cache.TTL,
		StaleGraceMultiple: cfg.Cache.StaleGraceMultiple,
	})

	var journal *store.Journal
	if st != nil && cfg.Store.JournalEnabled {
		journal = store.NewJournal(st, 32, log)
	}

	service := NewChainService(source, engine, snapCache, journal, log)
	registry := stream.NewRegistry()

	scheduler := stream.NewScheduler(stream.SchedulerConfig{
		Interval:       cfg.Broadcast.Interval,
		ClosedInterval: cfg.Broadcast.ClosedInterval,
		SymbolTimeout:  cfg.Broadcast.SymbolTimeout,
		Workers:        cfg.Broadcast.Workers,
	}, registry, service, encodeUpdate, log)

	connCfg := stream.ConnConfig{
		QueueSize:     cfg.Connection.QueueSize,
		Policy:        stream.DropPolicy(cfg.Connection.DropPolicy),
		DropThreshold: cfg.Connection.DropThreshold,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	ws := NewWSHandler(registry, service, connCfg, log)
	router.GET("/ws", ws.Handle)

	rest := NewRESTHandler(service, st, registry, scheduler, log)
	if us, ok := source.(upstreamStats); ok {
		rest.upstream = us
	}
	rest.Register(router)

	return &Server{
		cfg:       cfg,
		engine:    router,
		registry:  registry,
		scheduler: scheduler,
		service:   service,
		store:     st,
		journal:   journal,
		log:       log.With().Str("component", "server").Logger(),
		http: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}, nil
}

// encodeUpdate wraps a view and its derived signal into the periodic
// symbol_update frame.
func encodeUpdate(view *models.OptionChainView) ([]byte, error) {
	return encodeOutbound(EventSymbolUpdate, view.Symbol, SymbolUpdatePayload{
		Chain:  view,
		Signal: signals.Evaluate(view),
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully:
// scheduler stops, journal flushes, client connections close.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.scheduler.Run(runCtx)
	if s.journal != nil {
		go s.journal.Run(runCtx, 30*time.Second)
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Server.Addr).Msg("listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("shutdown incomplete")
	}

	if s.journal != nil {
		s.journal.Flush()
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// requestLogger logs one line per HTTP request.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	}
}
