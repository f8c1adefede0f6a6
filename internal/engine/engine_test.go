package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wxdesk/zeus-dynamic/internal/broker"
	"github.com/wxdesk/zeus-dynamic/internal/config"
	"github.com/wxdesk/zeus-dynamic/internal/domain"
	"github.com/wxdesk/zeus-dynamic/internal/eventbus"
	"github.com/wxdesk/zeus-dynamic/internal/snapshot"
)

type fakeForecast struct {
	forecast domain.Forecast
	err      error
}

func (f fakeForecast) Fetch(ctx context.Context, stationCode string, lat, lon float64, start time.Time, hours int) (domain.Forecast, error) {
	return f.forecast, f.err
}

type fakeVenue struct {
	brackets []domain.Bracket
	prices   []domain.BracketPrice
	err      error
}

func (f fakeVenue) ListBrackets(ctx context.Context, city, eventDay string) ([]domain.Bracket, error) {
	return f.brackets, f.err
}
func (f fakeVenue) Prices(ctx context.Context, marketIDs []string) ([]domain.BracketPrice, error) {
	return f.prices, f.err
}
func (f fakeVenue) ResolvesOnWholeDegrees() bool { return false }

func testStation() domain.Station {
	return domain.Station{Code: "EGLC", City: "London", Latitude: 51.5, Longitude: 0.05, IANAZone: "Europe/London", VenueTag: "freetext"}
}

func kelvinForF(f float64) float64 {
	c := (f - 32) * 5 / 9
	return c + 273.15
}

func freshForecast(now time.Time) domain.Forecast {
	return domain.Forecast{
		StationCode:  "EGLC",
		EventDay:     "2025-11-19",
		FetchedAtUTC: now,
		Points: []domain.TemperaturePoint{
			{TimeUTC: now, TempKelvin: kelvinForF(45.4)},
			{TimeUTC: now.Add(time.Hour), TempKelvin: kelvinForF(44.0)},
		},
	}
}

func freshPrices(now time.Time) []domain.BracketPrice {
	return []domain.BracketPrice{
		{MarketID: "m1", MidProb: 0.30, BestBid: 0.28, BestAsk: 0.32, AvailableUSDAtTopOfBook: 5000, FetchedAtUTC: now},
	}
}

func newTestEngine(t *testing.T, forecast ForecastSource, venue fakeVenue) *Engine {
	t.Helper()
	dir := t.TempDir()
	cfg := config.EngineConfig{
		TickInterval:   time.Minute,
		LookaheadDays:  1,
		ExecutionMode:  config.ExecutionPaper,
		MaxInputAge:    30 * time.Minute,
		WorkerPoolSize: 2,
		RegistryPath:   "x",
	}
	store := snapshot.New(dir + "/snapshots")
	brokerC := broker.New(dir + "/trades")
	bus := eventbus.New(8)

	cfgFull := cfg
	cfgFull.Probability.SigmaDefault = 2.0
	cfgFull.Probability.SigmaMin = 1.0
	cfgFull.Probability.SigmaMax = 5.0
	cfgFull.Sizing.DailyBankrollCapUSD = 1000
	cfgFull.Sizing.BankrollUSD = 10000
	cfgFull.Sizing.PerMarketCapUSD = 500
	cfgFull.Sizing.LiquidityMinUSD = 10
	cfgFull.Sizing.KellyCap = 0.25
	cfgFull.Sizing.EdgeMinBp = 50
	cfgFull.Sizing.DustFloorUSD = 1

	return New(cfgFull, []domain.Station{testStation()}, forecast, venue, store, brokerC, bus, nil)
}

func TestRunCycle_PublishesAcceptedDecision(t *testing.T) {
	now := time.Now()
	forecast := fakeForecast{forecast: freshForecast(now)}
	venue := fakeVenue{
		brackets: []domain.Bracket{{MarketID: "m1", LowerF: 45, UpperF: 46}},
		prices:   freshPrices(now),
	}
	e := newTestEngine(t, forecast, venue)

	rec := e.runCycle(context.Background(), Task{StationCode: "EGLC", City: "London", EventDay: "2025-11-19"})
	if rec.State != StatePublished {
		t.Fatalf("state = %v, want published (reason: %s)", rec.State, rec.FailReason)
	}
}

func TestRunCycle_StaleInputFails(t *testing.T) {
	old := time.Now().Add(-2 * time.Hour)
	forecast := fakeForecast{forecast: freshForecast(old)}
	venue := fakeVenue{
		brackets: []domain.Bracket{{MarketID: "m1", LowerF: 45, UpperF: 46}},
		prices:   freshPrices(old),
	}
	e := newTestEngine(t, forecast, venue)

	rec := e.runCycle(context.Background(), Task{StationCode: "EGLC", City: "London", EventDay: "2025-11-19"})
	if rec.State != StateFailed {
		t.Fatalf("state = %v, want failed", rec.State)
	}
}

func TestRunCycle_UnknownStationFails(t *testing.T) {
	now := time.Now()
	forecast := fakeForecast{forecast: freshForecast(now)}
	venue := fakeVenue{prices: freshPrices(now)}
	e := newTestEngine(t, forecast, venue)

	rec := e.runCycle(context.Background(), Task{StationCode: "NOPE", City: "Nowhere", EventDay: "2025-11-19"})
	if rec.State != StateFailed {
		t.Fatalf("state = %v, want failed for unknown station", rec.State)
	}
}

func TestSwapConfig_DoesNotMutateOldSnapshot(t *testing.T) {
	now := time.Now()
	e := newTestEngine(t, fakeForecast{forecast: freshForecast(now)}, fakeVenue{prices: freshPrices(now)})

	before := e.Config()
	updated := before.Clone()
	updated.Sizing.DailyBankrollCapUSD = 5000
	e.SwapConfig(updated)

	if before.Sizing.DailyBankrollCapUSD == 5000 {
		t.Fatal("old snapshot was mutated by SwapConfig")
	}
	if e.Config().Sizing.DailyBankrollCapUSD != 5000 {
		t.Fatal("SwapConfig did not take effect")
	}
}

func TestBuildTasks_EnumeratesLookaheadDaysAndActiveStations(t *testing.T) {
	now := time.Now()
	e := newTestEngine(t, fakeForecast{forecast: freshForecast(now)}, fakeVenue{prices: freshPrices(now)})
	e.stations = []domain.Station{
		testStation(),
		{Code: "KLAX", City: "Los Angeles", IANAZone: "America/Los_Angeles", VenueTag: "freetext"},
	}

	cfg := e.Config()
	cfg.LookaheadDays = 3
	cfg.ActiveStations = []string{"EGLC"}
	e.SwapConfig(cfg)

	tasks := e.buildTasks()
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3 (1 active station x 3 lookahead days), tasks=%+v", len(tasks), tasks)
	}
	for _, task := range tasks {
		if task.StationCode != "EGLC" {
			t.Errorf("task for inactive station leaked through: %+v", task)
		}
	}
	if tasks[0].EventDay == tasks[1].EventDay || tasks[1].EventDay == tasks[2].EventDay {
		t.Errorf("expected distinct event days across the lookahead window, got %+v", tasks)
	}
}

// blockingForecast holds Fetch open until told to proceed, so a test can
// observe a Task mid-cycle.
type blockingForecast struct {
	forecast   domain.Forecast
	started    chan struct{}
	proceed    chan struct{}
	fetchCount atomic.Int32
}

func (b *blockingForecast) Fetch(ctx context.Context, stationCode string, lat, lon float64, start time.Time, hours int) (domain.Forecast, error) {
	b.fetchCount.Add(1)
	close(b.started)
	<-b.proceed
	return b.forecast, nil
}

func TestRunTaskWithOverlapGuard_SkipsStillRunningTask(t *testing.T) {
	now := time.Now()
	bf := &blockingForecast{forecast: freshForecast(now), started: make(chan struct{}), proceed: make(chan struct{})}
	venue := fakeVenue{
		brackets: []domain.Bracket{{MarketID: "m1", LowerF: 45, UpperF: 46}},
		prices:   freshPrices(now),
	}
	e := newTestEngine(t, bf, venue)
	task := Task{StationCode: "EGLC", City: "London", EventDay: "2025-11-19"}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runTaskWithOverlapGuard(context.Background(), task)
	}()

	<-bf.started // first cycle is now mid-fetch, holding the per-task guard

	// A second tick's enqueue of the same still-running task must be a
	// no-op (skip_overlap), not a second concurrent cycle.
	e.runTaskWithOverlapGuard(context.Background(), task)

	close(bf.proceed)
	wg.Wait()

	if got := bf.fetchCount.Load(); got != 1 {
		t.Fatalf("forecast fetched %d times, want 1 (second enqueue should have been skipped)", got)
	}
	e.mu.Lock()
	stillTracked := e.running[task]
	e.mu.Unlock()
	if stillTracked {
		t.Fatal("task still marked running after its cycle completed")
	}
}
