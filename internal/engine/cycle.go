package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wxdesk/zeus-dynamic/internal/domain"
	"github.com/wxdesk/zeus-dynamic/internal/eventbus"
	"github.com/wxdesk/zeus-dynamic/internal/probability"
	"github.com/wxdesk/zeus-dynamic/internal/sizing"
	"github.com/wxdesk/zeus-dynamic/internal/snapshot"
	"github.com/wxdesk/zeus-dynamic/internal/units"
)

// runCycle drives one Task through the full state machine:
// selected -> fetching -> mapping -> deciding -> snapshotting ->
// brokering -> published, or failed(reason) at any step (§5).
func (e *Engine) runCycle(ctx context.Context, task Task) CycleRecord {
	rec := CycleRecord{CycleID: newCycleID(), Task: task, State: StateSelected, StartedAt: time.Now()}
	e.publish(eventbus.KindCycleStarted, &eventbus.CyclePayload{CycleID: rec.CycleID, StationCode: task.StationCode, EventDay: task.EventDay})

	cfg := e.Config()
	station, ok := stationByCode(e.stations, task.StationCode)
	if !ok {
		return e.fail(rec, fmt.Sprintf("unknown station %s", task.StationCode))
	}

	rec.State = StateFetching
	forecast, prices, brackets, err := e.fetchInputs(ctx, station, task)
	if err != nil {
		return e.fail(rec, err.Error())
	}
	if stale, reason := isStale(forecast.FetchedAtUTC, prices, cfg.MaxInputAge); stale {
		return e.fail(rec, reason)
	}

	rec.State = StateMapping
	mapper := probability.New(cfg.Probability)
	probs, err := mapper.Map(forecast, brackets, station.ResolvesOnWholeDegrees())
	if err != nil {
		return e.fail(rec, err.Error())
	}

	rec.State = StateDeciding
	dayLedger := ledgerView(e.ledger, task.EventDay)
	sizer := sizing.New(cfg.Sizing, dayLedger)
	decisions := e.decideAll(probs, prices, sizer, task)
	rec.DecisionsMade = len(decisions)
	e.publish(eventbus.KindEdgesUpdated, decisions)

	rec.State = StateSnapshotting
	res := e.store.WriteCycle(snapshot.CycleArtifacts{
		StationCode: task.StationCode,
		City:        task.City,
		EventDay:    task.EventDay,
		Forecast:    forecast,
		MarketRead:  prices,
		Decisions:   decisions,
	})
	if res.AnyFailed() {
		log.Printf("[Engine] partial snapshot failure for %s/%s: forecastErr=%v marketErr=%v decisionsErr=%v",
			task.StationCode, task.EventDay, res.ForecastErr, res.MarketErr, res.DecisionsErr)
	}

	rec.State = StateBrokering
	placed := e.brokerAccepted(decisions, station.VenueTag)
	rec.TradesPlaced = placed

	rec.State = StatePublished
	rec.FinishedAt = time.Now()
	e.publish(eventbus.KindCycleComplete, &eventbus.CyclePayload{CycleID: rec.CycleID, StationCode: task.StationCode, EventDay: task.EventDay})
	return rec
}

func (e *Engine) fail(rec CycleRecord, reason string) CycleRecord {
	rec.State = StateFailed
	rec.FailReason = reason
	rec.FinishedAt = time.Now()
	e.publish(eventbus.KindCycleFailed, &eventbus.CyclePayload{CycleID: rec.CycleID, StationCode: rec.Task.StationCode, EventDay: rec.Task.EventDay, Reason: reason})
	log.Printf("[Engine] %s/%s failed: %s", rec.Task.StationCode, rec.Task.EventDay, reason)
	return rec
}

func (e *Engine) publish(kind eventbus.Kind, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Kind: kind, Payload: payload})
}

// fetchInputs runs the forecast fetch and the market bracket/price
// fetch concurrently, per §4.7's "fetch in parallel" requirement.
func (e *Engine) fetchInputs(ctx context.Context, station domain.Station, task Task) (domain.Forecast, []domain.BracketPrice, []domain.Bracket, error) {
	g, gctx := errgroup.WithContext(ctx)

	var forecast domain.Forecast
	var brackets []domain.Bracket
	var prices []domain.BracketPrice

	g.Go(func() error {
		start, err := units.LocalMidnightUTC(task.EventDay, station.IANAZone)
		if err != nil {
			return err
		}
		f, err := e.forecast.Fetch(gctx, station.Code, station.Latitude, station.Longitude, start, 24)
		if err != nil {
			return fmt.Errorf("forecast fetch: %w", err)
		}
		forecast = f
		return nil
	})

	g.Go(func() error {
		bs, err := e.venue.ListBrackets(gctx, task.City, task.EventDay)
		if err != nil {
			return fmt.Errorf("list brackets: %w", err)
		}
		brackets = bs

		ids := make([]string, len(bs))
		for i, b := range bs {
			ids[i] = b.MarketID
		}
		ps, err := e.venue.Prices(gctx, ids)
		if err != nil {
			return fmt.Errorf("fetch prices: %w", err)
		}
		prices = ps
		return nil
	})

	if err := g.Wait(); err != nil {
		return domain.Forecast{}, nil, nil, err
	}
	return forecast, prices, brackets, nil
}

func isStale(forecastFetchedAt time.Time, prices []domain.BracketPrice, maxAge time.Duration) (bool, string) {
	now := time.Now()
	if now.Sub(forecastFetchedAt) > maxAge {
		return true, "stale_input: forecast older than max_input_age"
	}
	for _, p := range prices {
		if now.Sub(p.FetchedAtUTC) > maxAge {
			return true, "stale_input: market read older than max_input_age"
		}
	}
	return false, ""
}

func (e *Engine) decideAll(probs []domain.BracketProb, prices []domain.BracketPrice, sizer *sizing.Sizer, task Task) []domain.Decision {
	priceByMarket := make(map[string]domain.BracketPrice, len(prices))
	for _, p := range prices {
		priceByMarket[p.MarketID] = p
	}

	decisions := make([]domain.Decision, 0, len(probs))
	for _, bp := range probs {
		price, ok := priceByMarket[bp.Bracket.MarketID]
		if !ok {
			continue
		}
		decisions = append(decisions, sizer.Evaluate(bp, price, task.StationCode, task.EventDay))
	}
	return decisions
}

func (e *Engine) brokerAccepted(decisions []domain.Decision, venueTag string) int {
	placed := 0
	for _, d := range decisions {
		if !d.Accepted() {
			continue
		}
		trade := domain.Trade{Decision: d, Venue: venueTag, Outcome: domain.OutcomePending}
		if err := e.brokerC.Record(trade); err != nil {
			log.Printf("[Engine] failed to record trade for %s: %v", d.Bracket.MarketID, err)
			continue
		}
		if e.ledger != nil {
			if err := e.ledger.AddCommitted(d.EventDay, d.SizeUSD); err != nil {
				log.Printf("[Engine] failed to update committed ledger for %s: %v", d.EventDay, err)
			}
		}
		e.publish(eventbus.KindTradePlaced, trade)
		placed++
	}
	return placed
}

func stationByCode(stations []domain.Station, code string) (domain.Station, bool) {
	for _, s := range stations {
		if s.Code == code {
			return s, true
		}
	}
	return domain.Station{}, false
}
