package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wxdesk/zeus-dynamic/internal/broker"
	"github.com/wxdesk/zeus-dynamic/internal/config"
	"github.com/wxdesk/zeus-dynamic/internal/domain"
	"github.com/wxdesk/zeus-dynamic/internal/eventbus"
	"github.com/wxdesk/zeus-dynamic/internal/ledger"
	"github.com/wxdesk/zeus-dynamic/internal/snapshot"
	"github.com/wxdesk/zeus-dynamic/internal/units"
	"github.com/wxdesk/zeus-dynamic/pkg/marketclient"
)

// ErrStaleInput names the condition of a fetched forecast or market read
// being older than the configured freshness window. runCycle does not
// return it: a stale Task fails with a "stale_input: ..." reason string
// on its CycleRecord.
var ErrStaleInput = fmt.Errorf("engine: input older than max_input_age")

// ForecastSource is the subset of forecastclient.Client the engine
// depends on, so tests can substitute a fake.
type ForecastSource interface {
	Fetch(ctx context.Context, stationCode string, lat, lon float64, start time.Time, hours int) (domain.Forecast, error)
}

// Engine runs the scheduling loop described in §4.7/§5: a single
// scheduler selects tasks, a bounded worker pool runs them
// concurrently, and each task fetches its forecast and market state in
// parallel before mapping, sizing, snapshotting, and brokering.
type Engine struct {
	cfg atomic.Pointer[config.EngineConfig]

	forecast ForecastSource
	venue    marketclient.Venue
	store    *snapshot.Store
	brokerC  *broker.Broker
	bus      *eventbus.Bus
	ledger   *ledger.Ledger

	stations []domain.Station

	mu      sync.Mutex
	running map[Task]bool // tasks currently mid-cycle, for skip_overlap
}

// New creates an Engine. cfg is cloned into the engine's live config
// slot; callers can later call SwapConfig with a new snapshot.
func New(cfg config.EngineConfig, stations []domain.Station, forecast ForecastSource, venue marketclient.Venue, store *snapshot.Store, brokerC *broker.Broker, bus *eventbus.Bus, led *ledger.Ledger) *Engine {
	e := &Engine{
		forecast: forecast,
		venue:    venue,
		store:    store,
		brokerC:  brokerC,
		bus:      bus,
		ledger:   led,
		stations: stations,
		running:  make(map[Task]bool),
	}
	snap := cfg.Clone()
	e.cfg.Store(&snap)
	return e
}

// Config returns the currently active configuration snapshot. The
// returned value is immutable; callers must not mutate its maps.
func (e *Engine) Config() config.EngineConfig {
	return *e.cfg.Load()
}

// SwapConfig atomically replaces the live configuration. In-flight
// cycles keep running against the snapshot they started with; only
// cycles starting after the swap observe the new values (§4.7
// copy-on-read semantics).
func (e *Engine) SwapConfig(cfg config.EngineConfig) {
	snap := cfg.Clone()
	e.cfg.Store(&snap)
}

// Run drives the scheduling loop until ctx is canceled. Every tick it
// enqueues the full task list (one per active station x each of its
// lookahead event days) regardless of whether the previous tick's tasks
// have finished draining: a cycle enqueues every active Task exactly
// once (§4.6). Staleness from a slow cycle is bounded per-Task, not
// per-tick — runTaskWithOverlapGuard skips only the specific Task that
// is still mid-cycle (skip_overlap) and still runs every other Task of
// the new cycle normally.
func (e *Engine) Run(ctx context.Context) error {
	cfg := e.Config()
	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := e.RunTick(ctx); err != nil && ctx.Err() == nil {
					log.Printf("[Engine] tick failed: %v", err)
				}
			}()
		}
	}
}

// RunTick runs one full pass over all stations' current tasks.
func (e *Engine) RunTick(ctx context.Context) error {
	tasks := e.buildTasks()
	cfg := e.Config()

	sem := semaphore.NewWeighted(int64(cfg.WorkerPoolSize))
	g, gctx := errgroup.WithContext(ctx)

	for _, task := range tasks {
		task := task
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			e.runTaskWithOverlapGuard(gctx, task)
			return nil
		})
	}

	return g.Wait()
}

// buildTasks enumerates every active Task: for each active station, for
// each event_day in {today_local, ..., today_local+lookahead_days-1} in
// that station's own local zone (§4.6).
func (e *Engine) buildTasks() []Task {
	cfg := e.Config()
	stations := activeStations(e.stations, cfg.ActiveStations)

	tasks := make([]Task, 0, len(stations)*cfg.LookaheadDays)
	for _, st := range stations {
		today, err := currentEventDay(st)
		if err != nil {
			log.Printf("[Engine] skipping station %s: %v", st.Code, err)
			continue
		}
		for offset := 0; offset < cfg.LookaheadDays; offset++ {
			day := today
			if offset > 0 {
				day, err = units.AddEventDays(today, st.IANAZone, offset)
				if err != nil {
					log.Printf("[Engine] skipping %s+%dd: %v", st.Code, offset, err)
					continue
				}
			}
			tasks = append(tasks, Task{StationCode: st.Code, City: st.City, EventDay: day})
		}
	}
	return tasks
}

// activeStations filters the full registry down to the configured
// active set. An empty active list means every registered station is
// active.
func activeStations(all []domain.Station, active []string) []domain.Station {
	if len(active) == 0 {
		return all
	}
	want := make(map[string]bool, len(active))
	for _, code := range active {
		want[code] = true
	}
	out := make([]domain.Station, 0, len(active))
	for _, st := range all {
		if want[st.Code] {
			out = append(out, st)
		}
	}
	return out
}

// runTaskWithOverlapGuard is the sole overlap guard (§4.6): if task is
// still mid-cycle from an earlier tick, this enqueue is dropped and
// logged as skip_overlap, while every other Task of the current tick
// proceeds unaffected.
func (e *Engine) runTaskWithOverlapGuard(ctx context.Context, task Task) {
	e.mu.Lock()
	if e.running[task] {
		e.mu.Unlock()
		log.Printf("[Engine] skip_overlap: %s/%s still mid-cycle, skipping this tick's enqueue", task.StationCode, task.EventDay)
		return
	}
	e.running[task] = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.running, task)
		e.mu.Unlock()
	}()

	record := e.runCycle(ctx, task)
	if e.ledger != nil {
		if err := e.ledger.RecordCycle(task.StationCode, task.EventDay, string(record.State), cycleError(record)); err != nil {
			log.Printf("[Engine] failed to record cycle state for %s/%s: %v", task.StationCode, task.EventDay, err)
		}
	}
}

func cycleError(r CycleRecord) error {
	if r.State != StateFailed {
		return nil
	}
	return fmt.Errorf("%s", r.FailReason)
}

func currentEventDay(st domain.Station) (string, error) {
	// The event day rolls at local midnight in the station's own zone.
	return units.LocalEventDay(time.Now(), st.IANAZone)
}
