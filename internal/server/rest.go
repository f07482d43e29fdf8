package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"optionstream/internal/errors"
	"optionstream/internal/models"
	"optionstream/internal/performance"
	"optionstream/internal/resilience"
	"optionstream/internal/signals"
	"optionstream/internal/store"
	"optionstream/internal/stream"
	"optionstream/pkg/utils"
)

// apiResponse is the uniform REST envelope.
type apiResponse struct {
	Success bool          `json:"success"`
	Data    interface{}   `json:"data,omitempty"`
	Error   *ErrorPayload `json:"error,omitempty"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, apiResponse{Success: true, Data: data})
}

func respondErr(c *gin.Context, err error) {
	code := errors.Code(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeInvalidSymbol, errors.CodeInvalidExpiry, errors.CodeInvalidRequest:
		status = http.StatusBadRequest
	case errors.CodeInsufficientData:
		status = http.StatusNotFound
	case errors.CodeUpstreamUnavailable:
		status = http.StatusBadGateway
	}
	c.JSON(status, apiResponse{Success: false, Error: &ErrorPayload{Code: code, Message: err.Error()}})
}

// upstreamStats is implemented by quote sources that track breaker
// state.
type upstreamStats interface {
	BreakerStats() resilience.BreakerStats
}

// RESTHandler serves the JSON API.
type RESTHandler struct {
	service   *ChainService
	store     store.Store
	registry  *stream.Registry
	scheduler *stream.Scheduler
	upstream  upstreamStats
	log       zerolog.Logger
	startedAt time.Time
}

// NewRESTHandler creates the REST handler. store and scheduler may be
// nil; the dependent endpoints degrade gracefully.
func NewRESTHandler(service *ChainService, st store.Store, registry *stream.Registry, sched *stream.Scheduler, log zerolog.Logger) *RESTHandler {
	return &RESTHandler{
		service:   service,
		store:     st,
		registry:  registry,
		scheduler: sched,
		log:       log.With().Str("component", "rest").Logger(),
		startedAt: time.Now(),
	}
}

// Register mounts the routes on the gin engine.
func (h *RESTHandler) Register(r *gin.Engine) {
	r.GET("/health", h.health)

	api := r.Group("/api")
	api.GET("/symbols", h.symbols)
	api.GET("/expiries/:symbol", h.expiries)
	api.GET("/option-chain/:symbol", h.optionChain)
	api.GET("/analytics/:symbol", h.analytics)
	api.GET("/journal/:symbol", h.journal)
	api.GET("/stats", h.stats)
}

func (h *RESTHandler) health(c *gin.Context) {
	respondOK(c, gin.H{
		"status":        "ok",
		"market_status": utils.GetMarketStatus(time.Now()),
		"uptime":        time.Since(h.startedAt).Round(time.Second).String(),
	})
}

func (h *RESTHandler) symbols(c *gin.Context) {
	type symbolInfo struct {
		Name     string `json:"name"`
		Exchange string `json:"exchange"`
		Segment  string `json:"segment"`
		LotSize  int    `json:"lot_size"`
	}
	out := make([]symbolInfo, 0)
	for _, s := range models.AllSymbols() {
		out = append(out, symbolInfo{
			Name:     s.Name,
			Exchange: string(s.Exchange),
			Segment:  string(s.Segment),
			LotSize:  s.LotSize,
		})
	}
	respondOK(c, out)
}

func (h *RESTHandler) expiries(c *gin.Context) {
	symbol := c.Param("symbol")
	expiries, err := h.service.ListExpiries(c.Request.Context(), symbol)
	if err != nil {
		respondErr(c, err)
		return
	}
	out := make([]string, 0, len(expiries))
	for _, e := range expiries {
		out = append(out, e.Format("2006-01-02"))
	}
	respondOK(c, gin.H{"symbol": symbol, "expiries": out})
}

// optionChain serves the full chain. ?expiry=YYYY-MM-DD selects a
// series; absent it resolves to the nearest expiry. On upstream
// failure a stale cached view is served with a stale marker rather
// than an error.
func (h *RESTHandler) optionChain(c *gin.Context) {
	view, sig, stale, err := h.buildChain(c)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, SymbolUpdatePayload{Chain: view, Signal: sig, Stale: stale})
}

func (h *RESTHandler) analytics(c *gin.Context) {
	view, sig, stale, err := h.buildChain(c)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{
		"summary": view.Summarize(),
		"signal":  sig,
		"stale":   stale,
	})
}

func (h *RESTHandler) buildChain(c *gin.Context) (*models.OptionChainView, signals.Signal, bool, error) {
	ctx := c.Request.Context()
	symbol := c.Param("symbol")

	var requested time.Time
	if raw := c.Query("expiry"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, signals.Signal{}, false, errors.NewValidationError("expiry", raw, "expected YYYY-MM-DD")
		}
		requested = t
	}

	expiry, err := h.service.ResolveExpiry(ctx, symbol, requested)
	if err != nil {
		return nil, signals.Signal{}, false, err
	}

	view, err := h.service.BuildViewAt(ctx, symbol, expiry)
	if err != nil {
		if stale, ok := h.service.StaleView(symbol, expiry); ok {
			return stale, h.service.Evaluate(stale), true, nil
		}
		return nil, signals.Signal{}, false, err
	}
	return view, h.service.Evaluate(view), false, nil
}

func (h *RESTHandler) journal(c *gin.Context) {
	if h.store == nil {
		respondErr(c, errors.NewDataError("journal", c.Param("symbol"), "persistence disabled", errors.ErrInsufficientData))
		return
	}
	symbol := c.Param("symbol")
	if !models.IsKnownSymbol(symbol) {
		respondErr(c, errors.ErrUnknownSymbol)
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			respondErr(c, errors.NewValidationError("limit", raw, "expected integer in [1,1000]"))
			return
		}
		limit = n
	}

	entries, err := h.store.GetSnapshots(c.Request.Context(), store.SnapshotFilter{
		Symbol: symbol,
		Limit:  limit,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"symbol": symbol, "entries": entries})
}

func (h *RESTHandler) stats(c *gin.Context) {
	out := gin.H{
		"connections":   h.registry.ConnectionCount(),
		"subscriptions": h.registry.SubscriptionCount(),
		"cache":         h.service.CacheStats(),
		"memory":        performance.MemoryStats(),
		"uptime":        time.Since(h.startedAt).Round(time.Second).String(),
	}
	if h.scheduler != nil {
		out["scheduler"] = h.scheduler.Stats()
	}
	if h.upstream != nil {
		out["upstream"] = h.upstream.BreakerStats()
	}
	respondOK(c, out)
}
