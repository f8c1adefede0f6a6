package marketclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wxdesk/zeus-dynamic/internal/domain"
	"github.com/wxdesk/zeus-dynamic/internal/httpx"
)

// DefaultBaseURL is the live market source's base URL.
const DefaultBaseURL = "https://api.polymarket-style-venue.example/v1"

// marketListing is the wire shape of one bracket returned by the
// "list markets by (city, event_day)" endpoint (§6).
type marketListing struct {
	MarketID string `json:"market_id"`
	Ticker   string `json:"ticker"`
	Title    string `json:"title"`
	Label    string `json:"label"`
}

type listResponse struct {
	Markets []marketListing `json:"markets"`
}

type priceEntry struct {
	MarketID   string  `json:"market_id"`
	MidProb    float64 `json:"mid_prob"`
	BestBid    float64 `json:"best_bid"`
	BestAsk    float64 `json:"best_ask"`
	DepthUSD   float64 `json:"available_usd_at_top_of_book"`
}

type pricesResponse struct {
	Prices []priceEntry `json:"prices"`
}

// Client implements Venue against an HTTP bracket-market source whose
// markets resolve against whole-degree METAR readings (the Polymarket
// tag named in spec.md §4.1).
type Client struct {
	baseURL string
	retrier *httpx.Retrier
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the default market source URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.retrier.HTTPClient = hc }
}

// WithRateLimiter overrides the default outbound request rate limit.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.retrier.Limiter = l }
}

// New creates a market Client. Reads are unauthenticated per §6.
func New(opts ...Option) *Client {
	retrier := httpx.NewRetrier(
		&http.Client{Timeout: 10 * time.Second},
		rate.NewLimiter(rate.Limit(10), 20),
		4,
	)
	c := &Client{baseURL: DefaultBaseURL, retrier: retrier, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Venue = (*Client)(nil)

// ResolvesOnWholeDegrees is always true for this venue implementation.
func (c *Client) ResolvesOnWholeDegrees() bool { return true }

// ListBrackets fetches and parses the bracket set for one city's event
// day, deduplicating by market_id (last write wins) and validating the
// result forms a partition.
func (c *Client) ListBrackets(ctx context.Context, city, eventDay string) ([]domain.Bracket, error) {
	u := fmt.Sprintf("%s/markets?city=%s&event_day=%s", c.baseURL, url.QueryEscape(city), url.QueryEscape(eventDay))

	body, err := c.retrier.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("marketclient: decode list response: %w", err)
	}

	dedup := make(map[string]domain.Bracket, len(resp.Markets))
	order := make([]string, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		b, err := parseListing(m)
		if err != nil {
			continue // unparsable entries are skipped, not fatal
		}
		if _, seen := dedup[b.MarketID]; !seen {
			order = append(order, b.MarketID)
		}
		dedup[b.MarketID] = b // last write wins
	}

	brackets := make([]domain.Bracket, 0, len(order))
	for _, id := range order {
		brackets = append(brackets, dedup[id])
	}

	if err := ValidatePartition(brackets); err != nil {
		return nil, err
	}

	return brackets, nil
}

func parseListing(m marketListing) (domain.Bracket, error) {
	if m.Label != "" {
		if b, err := ParseBracketLabel(m.MarketID, m.Label); err == nil {
			return b, nil
		}
	}
	if m.Ticker != "" && strings.Contains(m.Ticker, "-") {
		if b, err := ParseBracketTicker(m.MarketID, m.Ticker, m.Title); err == nil {
			return b, nil
		}
	}
	return domain.Bracket{}, fmt.Errorf("marketclient: could not parse listing %+v", m)
}

// Prices fetches current mid/top-of-book state for the given market ids.
func (c *Client) Prices(ctx context.Context, marketIDs []string) ([]domain.BracketPrice, error) {
	ids := strings.Join(marketIDs, ",")
	u := fmt.Sprintf("%s/prices?market_ids=%s", c.baseURL, url.QueryEscape(ids))

	body, err := c.retrier.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}

	var resp pricesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("marketclient: decode prices response: %w", err)
	}

	fetchedAt := c.now().UTC()
	out := make([]domain.BracketPrice, 0, len(resp.Prices))
	for _, p := range resp.Prices {
		out = append(out, domain.BracketPrice{
			MarketID:                p.MarketID,
			MidProb:                 p.MidProb,
			BestBid:                 p.BestBid,
			BestAsk:                 p.BestAsk,
			AvailableUSDAtTopOfBook: p.DepthUSD,
			FetchedAtUTC:            fetchedAt,
		})
	}
	return out, nil
}
