// Package sizing is the Edge & Sizer (C7): it turns a BracketProb plus a
// current market price into a Decision, applying the edge threshold,
// Kelly sizing, and the cap chain from spec.md §4.2.
package sizing

import (
	"math"
	"time"

	"github.com/wxdesk/zeus-dynamic/internal/domain"
)

// Config holds the sizer's tunable risk parameters (§4.2, §6
// sizing_model).
type Config struct {
	EdgeMinBp           float64 // minimum edge, in basis points, to act at all
	FeeBp               float64
	SlippageBp          float64
	KellyCap            float64 // upper bound on the Kelly fraction of bankroll, e.g. 0.25
	PerMarketCapUSD     float64
	LiquidityMinUSD     float64
	DailyBankrollCapUSD float64
	DustFloorUSD        float64 // sizes below this are rejected, not clamped
	BankrollUSD         float64 // total bankroll used as the Kelly base
}

// DefaultConfig returns typical conservative sizing parameters.
func DefaultConfig() Config {
	return Config{
		EdgeMinBp:           200,
		FeeBp:               50,
		SlippageBp:          25,
		KellyCap:            0.25,
		PerMarketCapUSD:     250,
		LiquidityMinUSD:     100,
		DailyBankrollCapUSD: 2000,
		DustFloorUSD:        1,
		BankrollUSD:         10000,
	}
}

// Ledger tracks running state the Sizer needs across a process-wide
// trading day: the running total of dollars already committed today
// (§9 decision: daily_bankroll_cap is process-wide, not per-station).
type Ledger interface {
	CommittedTodayUSD() float64
}

// Sizer evaluates BracketProbs against current prices and produces
// Decisions.
type Sizer struct {
	cfg    Config
	ledger Ledger
	now    func() time.Time
}

// New creates a Sizer bound to the given running-total ledger.
func New(cfg Config, ledger Ledger) *Sizer {
	return &Sizer{cfg: cfg, ledger: ledger, now: time.Now}
}

// Evaluate computes a Decision for a single bracket given its current
// market price. It never errors: a rejected trade is a Decision with a
// non-empty ReasonTags and zero SizeUSD, per §7 (sizing failures are
// modeled as rejection reasons, not errors).
func (s *Sizer) Evaluate(bp domain.BracketProb, price domain.BracketPrice, stationCode, eventDay string) domain.Decision {
	d := domain.Decision{
		Bracket:         bp.Bracket,
		PZeus:           bp.PZeus,
		PMarket:         price.MidProb,
		SigmaUsed:       bp.SigmaUsed,
		DecisionTimeUTC: s.now().UTC(),
		StationCode:     stationCode,
		EventDay:        eventDay,
	}

	if price.MidProb <= 0 || price.MidProb >= 1 {
		d.ReasonTags = append(d.ReasonTags, domain.ReasonDegeneratePrice)
		return d
	}

	costBp := s.cfg.FeeBp + s.cfg.SlippageBp
	edge := bp.PZeus - price.MidProb - costBp*1e-4
	d.Edge = edge

	if edge*1e4 < s.cfg.EdgeMinBp {
		d.ReasonTags = append(d.ReasonTags, domain.ReasonBelowEdgeMin)
		return d
	}

	d.ReasonTags = append(d.ReasonTags, domain.ReasonStrongEdge)

	fKelly := kellyFraction(edge, price.MidProb)
	if fKelly > s.cfg.KellyCap {
		fKelly = s.cfg.KellyCap
		d.ReasonTags = append(d.ReasonTags, domain.ReasonKellyCapped)
	}
	d.FKelly = fKelly

	sizeUSD := fKelly * s.cfg.BankrollUSD

	if sizeUSD > s.cfg.PerMarketCapUSD {
		sizeUSD = s.cfg.PerMarketCapUSD
		d.ReasonTags = append(d.ReasonTags, domain.ReasonPerMarketCapped)
	}

	if price.AvailableUSDAtTopOfBook < s.cfg.LiquidityMinUSD {
		d.ReasonTags = append(d.ReasonTags, domain.ReasonInsufficientLiquidity)
		d.SizeUSD = 0
		return d
	}
	if sizeUSD > price.AvailableUSDAtTopOfBook {
		sizeUSD = price.AvailableUSDAtTopOfBook
		d.ReasonTags = append(d.ReasonTags, domain.ReasonLiquidityCapped)
	}

	committed := 0.0
	if s.ledger != nil {
		committed = s.ledger.CommittedTodayUSD()
	}
	remaining := s.cfg.DailyBankrollCapUSD - committed
	if remaining <= 0 {
		d.ReasonTags = append(d.ReasonTags, domain.ReasonDailyCapExhausted)
		d.SizeUSD = 0
		return d
	}
	if sizeUSD > remaining {
		sizeUSD = remaining
		d.ReasonTags = append(d.ReasonTags, domain.ReasonDailyCapExhausted)
	}

	sizeUSD = roundDownCents(sizeUSD)
	if sizeUSD < s.cfg.DustFloorUSD {
		d.ReasonTags = append(d.ReasonTags, domain.ReasonDustFloor)
		d.SizeUSD = 0
		return d
	}

	d.SizeUSD = sizeUSD
	return d
}

// kellyFraction computes the uncapped edge-based Kelly fraction (§4.2):
// f_kelly(b) = edge(b) / (1 - p_market(b)). price is assumed already
// validated to lie strictly inside (0, 1) by the degenerate-price check
// above. Negative edge never reaches here (below_edge_min rejects
// first), but the floor is kept for safety against NaN/Inf.
func kellyFraction(edge, price float64) float64 {
	f := edge / (1 - price)
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// roundDownCents truncates to whole cents (never rounds up past what
// was actually sized).
func roundDownCents(usd float64) float64 {
	return math.Floor(usd*100) / 100
}
