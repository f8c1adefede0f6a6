// Package domain holds the shared data model described in spec.md §3:
// stations, forecasts, brackets, prices, decisions, and trades. These
// types are passed by value between components; nothing here owns I/O.
package domain

import "time"

// Station is the immutable catalog entry for one weather/market station
// (C2). Loaded once at startup from the registry.
type Station struct {
	Code      string // e.g. "EGLC"
	City      string // e.g. "London"
	Latitude  float64
	Longitude float64
	IANAZone  string // e.g. "Europe/London"
	VenueTag  string // e.g. "polymarket"
}

// ResolvesOnWholeDegrees reports whether this station's venue resolves
// against whole-degree METAR readings, triggering the double-rounding
// chain in §4.1.
func (s Station) ResolvesOnWholeDegrees() bool {
	return s.VenueTag == "polymarket"
}

// TemperaturePoint is one hourly forecast sample.
type TemperaturePoint struct {
	TimeUTC    time.Time
	TempKelvin float64
}

// Forecast is one fetched hourly temperature timeseries for a station's
// event day (§3). Two forecasts for the same (station, event_day) with
// different FetchedAtUTC are both valid and both retained.
type Forecast struct {
	StationCode  string
	EventDay     string // YYYY-MM-DD, local to the station's zone
	StartUTC     time.Time
	Hours        int
	FetchedAtUTC time.Time
	Points       []TemperaturePoint
}

// Bracket is one disjoint outcome interval of a daily high/low market.
type Bracket struct {
	MarketID string
	LowerF   float64
	UpperF   float64
	IsUnder  bool
	IsOver   bool
}

// Width returns the bracket's span in Fahrenheit degrees. Under/over
// brackets have no finite width and return 0.
func (b Bracket) Width() float64 {
	if b.IsUnder || b.IsOver {
		return 0
	}
	return b.UpperF - b.LowerF
}

// Label renders the bracket the way spec.md §4.3 names it in free text.
func (b Bracket) Label() string {
	switch {
	case b.IsUnder:
		return formatTail("<", b.UpperF)
	case b.IsOver:
		return formatTail("≥", b.LowerF)
	default:
		return formatRange(b.LowerF, b.UpperF)
	}
}

// BracketPrice is the market-observed mid/top-of-book state for one
// bracket at a point in time.
type BracketPrice struct {
	MarketID                string
	MidProb                 float64
	BestBid                 float64
	BestAsk                 float64
	AvailableUSDAtTopOfBook float64
	FetchedAtUTC            time.Time
}

// BracketProb is the Probability Mapper's output for one bracket (C6).
type BracketProb struct {
	Bracket   Bracket
	PZeus     float64
	SigmaUsed float64
}

// RejectReason enumerates the non-exclusive reason tags a Decision may
// carry (§4.2, §7). Acceptance reasons and rejection reasons share the
// same tag space; a Decision can carry more than one.
type RejectReason string

const (
	ReasonStrongEdge            RejectReason = "strong_edge"
	ReasonKellyCapped           RejectReason = "kelly_capped"
	ReasonPerMarketCapped       RejectReason = "per_market_capped"
	ReasonLiquidityCapped       RejectReason = "liquidity_capped"
	ReasonDailyCapExhausted     RejectReason = "daily_cap_exhausted"
	ReasonBelowEdgeMin          RejectReason = "below_edge_min"
	ReasonDegeneratePrice       RejectReason = "degenerate_price"
	ReasonInsufficientLiquidity RejectReason = "insufficient_liquidity"
	ReasonDustFloor             RejectReason = "dust_floor"
)

// Decision is the Edge & Sizer's output for one bracket in one cycle
// (§3). Accepted decisions have SizeUSD > 0; rejected ones carry
// SizeUSD == 0 and at least one reject reason.
type Decision struct {
	Bracket         Bracket
	PZeus           float64
	PMarket         float64
	SigmaUsed       float64
	Edge            float64
	FKelly          float64
	SizeUSD         float64
	ReasonTags      []RejectReason
	DecisionTimeUTC time.Time
	StationCode     string
	EventDay        string
}

// Accepted reports whether the decision resulted in a sized position.
func (d Decision) Accepted() bool {
	return d.SizeUSD > 0
}

// TradeOutcome is the lifecycle state of a persisted Trade.
type TradeOutcome string

const (
	OutcomePending TradeOutcome = "pending"
	OutcomeWin     TradeOutcome = "win"
	OutcomeLoss    TradeOutcome = "loss"
)

// Trade is a superset of Decision persisted by the Paper Broker (C9).
type Trade struct {
	Decision
	Venue         string
	Outcome       TradeOutcome
	RealizedPnL   float64
	ResolvedAt    *time.Time
	WinnerBracket string
}

func formatRange(lower, upper float64) string {
	return ftoa(lower) + "-" + ftoa(upper) + "°F"
}

func formatTail(op string, bound float64) string {
	return op + " " + ftoa(bound) + "°F"
}

func ftoa(f float64) string {
	if f == float64(int64(f)) {
		return itoa(int64(f))
	}
	return itoaFloat(f)
}

func itoa(i int64) string {
	if i < 0 {
		return "-" + itoa(-i)
	}
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}

func itoaFloat(f float64) string {
	whole := int64(f)
	frac := int64((f - float64(whole)) * 10)
	if frac < 0 {
		frac = -frac
	}
	return itoa(whole) + "." + itoa(frac)
}
