package stream

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"optionstream/internal/errors"
	"optionstream/internal/models"
)

// fakeSource serves canned views and records build calls.
type fakeSource struct {
	mu    sync.Mutex
	views map[string]*models.OptionChainView
	fail  map[string]error
	calls map[string]int
	delay time.Duration
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		views: make(map[string]*models.OptionChainView),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeSource) BuildView(ctx context.Context, symbol string) (*models.OptionChainView, error) {
	f.mu.Lock()
	f.calls[symbol]++
	err := f.fail[symbol]
	view := f.views[symbol]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (f *fakeSource) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func encodeSymbol(view *models.OptionChainView) ([]byte, error) {
	return json.Marshal(map[string]string{"symbol": view.Symbol})
}

func schedulerFixture(t *testing.T, source ViewSource) (*Scheduler, *Registry) {
	t.Helper()
	registry := NewRegistry()
	cfg := SchedulerConfig{
		Interval:      10 * time.Second,
		SymbolTimeout: 200 * time.Millisecond,
		Workers:       2,
	}
	sched := NewScheduler(cfg, registry, source, encodeSymbol, zerolog.Nop())
	sched.pool.Start()
	t.Cleanup(sched.pool.Stop)
	return sched, registry
}

func subscribe(t *testing.T, r *Registry, symbols ...string) *ClientConn {
	t.Helper()
	conn := NewClientConn("127.0.0.1:0", ConnConfig{QueueSize: 16}, zerolog.Nop())
	r.Register(conn)
	for _, s := range symbols {
		r.Subscribe(conn.ID, s)
	}
	return conn
}

func TestTickBroadcastsSubscribedSymbols(t *testing.T) {
	source := newFakeSource()
	source.views["NIFTY"] = &models.OptionChainView{Symbol: "NIFTY"}
	source.views["BANKNIFTY"] = &models.OptionChainView{Symbol: "BANKNIFTY"}

	sched, registry := schedulerFixture(t, source)
	conn := subscribe(t, registry, "NIFTY", "BANKNIFTY")

	sched.Tick(context.Background())

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		var msg map[string]string
		if err := json.Unmarshal(<-conn.Outbound(), &msg); err != nil {
			t.Fatal(err)
		}
		got[msg["symbol"]] = true
	}
	if !got["NIFTY"] || !got["BANKNIFTY"] {
		t.Errorf("received symbols = %v, want both", got)
	}

	if stats := sched.Stats(); stats.Delivered != 2 || stats.Ticks != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestTickSkipsSymbolsWithoutSubscribers(t *testing.T) {
	source := newFakeSource()
	source.views["NIFTY"] = &models.OptionChainView{Symbol: "NIFTY"}

	sched, registry := schedulerFixture(t, source)
	subscribe(t, registry, "NIFTY")

	sched.Tick(context.Background())

	if source.callCount("NIFTY") != 1 {
		t.Errorf("NIFTY builds = %d, want 1", source.callCount("NIFTY"))
	}
	if source.callCount("BANKNIFTY") != 0 {
		t.Errorf("BANKNIFTY builds = %d, want 0", source.callCount("BANKNIFTY"))
	}
}

func TestTickIsolatesFailingSymbol(t *testing.T) {
	source := newFakeSource()
	source.views["NIFTY"] = &models.OptionChainView{Symbol: "NIFTY"}
	source.fail["BANKNIFTY"] = errors.NewUpstreamError("quote", "BANKNIFTY", true,
		stderrors.New("timeout"))

	sched, registry := schedulerFixture(t, source)
	conn := subscribe(t, registry, "NIFTY", "BANKNIFTY")

	sched.Tick(context.Background())

	var msg map[string]string
	if err := json.Unmarshal(<-conn.Outbound(), &msg); err != nil {
		t.Fatal(err)
	}
	if msg["symbol"] != "NIFTY" {
		t.Errorf("symbol = %q, want NIFTY", msg["symbol"])
	}

	select {
	case extra := <-conn.Outbound():
		t.Errorf("unexpected extra message %q", extra)
	default:
	}

	if stats := sched.Stats(); stats.BuildFails != 1 {
		t.Errorf("build fails = %d, want 1", stats.BuildFails)
	}
}

func TestTickEnforcesSymbolTimeout(t *testing.T) {
	source := newFakeSource()
	source.views["NIFTY"] = &models.OptionChainView{Symbol: "NIFTY"}
	source.delay = time.Second // beyond the 200ms fixture timeout

	sched, registry := schedulerFixture(t, source)
	subscribe(t, registry, "NIFTY")

	start := time.Now()
	sched.Tick(context.Background())
	elapsed := time.Since(start)

	if elapsed > 800*time.Millisecond {
		t.Errorf("tick took %v, symbol timeout did not bound the build", elapsed)
	}
	if stats := sched.Stats(); stats.BuildFails != 1 {
		t.Errorf("build fails = %d, want 1", stats.BuildFails)
	}
}

func TestTickEmptyRegistry(t *testing.T) {
	sched, _ := schedulerFixture(t, newFakeSource())
	sched.Tick(context.Background())

	if stats := sched.Stats(); stats.Delivered != 0 {
		t.Errorf("delivered = %d, want 0", stats.Delivered)
	}
}

func TestIntervalStretchesWhenMarketClosed(t *testing.T) {
	sched, _ := schedulerFixture(t, newFakeSource())
	sched.cfg.ClosedInterval = time.Minute

	sched.marketStatus = func(time.Time) models.MarketStatus { return models.MarketOpen }
	if got := sched.interval(); got != 10*time.Second {
		t.Errorf("open interval = %v, want 10s", got)
	}

	sched.marketStatus = func(time.Time) models.MarketStatus { return models.MarketClosed }
	if got := sched.interval(); got != time.Minute {
		t.Errorf("closed interval = %v, want 1m", got)
	}
}
