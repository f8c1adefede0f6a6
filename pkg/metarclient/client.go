// Package metarclient is the METAR Client collaborator (C5): it fetches
// observed temperatures per station/event-day for snapshot enrichment.
// Ground-truth resolution itself is out of scope (spec.md §1); this
// client only supplies the reading.
package metarclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wxdesk/zeus-dynamic/internal/units"
)

// Observation is one parsed METAR temperature reading, converted to
// Fahrenheit per §6 (°C is the wire unit).
type Observation struct {
	TimeUTC time.Time
	TempF   float64
}

// DailyMax is the maximum observed temperature for a station's event day,
// used only for snapshot enrichment (§3, C5).
type DailyMax struct {
	ICAOCode     string
	EventDay     string
	MaxTempF     float64
	MaxTempAtUTC time.Time
	Observations []Observation
}

const historyURLTemplate = "https://mesonet.agron.iastate.edu/cgi-bin/request/asos.py?" +
	"station=%s&data=tmpc&year1=%d&month1=%d&day1=%d&year2=%d&month2=%d&day2=%d" +
	"&tz=%s&format=onlycomma&latlon=no&elev=no&missing=M&trace=T&direct=no&report_type=3"

// Client fetches historical METAR observations keyed by ICAO code.
type Client struct {
	httpClient *http.Client
}

// New creates a METAR Client with the given HTTP timeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// FetchDailyMax fetches the observed daily-high for one station's event
// day, in the station's own IANA zone.
func (c *Client) FetchDailyMax(ctx context.Context, icaoCode, eventDay, zone string) (DailyMax, error) {
	stationCode := strings.TrimPrefix(icaoCode, "K")

	day, err := time.ParseInLocation("2006-01-02", eventDay, time.UTC)
	if err != nil {
		return DailyMax{}, fmt.Errorf("metarclient: bad event day %q: %w", eventDay, err)
	}

	url := fmt.Sprintf(historyURLTemplate, stationCode,
		day.Year(), int(day.Month()), day.Day(),
		day.Year(), int(day.Month()), day.Day()+1,
		zone,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DailyMax{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return DailyMax{}, fmt.Errorf("metarclient: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return DailyMax{}, fmt.Errorf("metarclient: read response: %w", err)
	}

	return parseDailyMax(stationCode, eventDay, string(body))
}

func parseDailyMax(stationCode, eventDay, body string) (DailyMax, error) {
	result := DailyMax{ICAOCode: stationCode, EventDay: eventDay}

	var maxF float64
	haveMax := false

	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, stationCode+",") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 3 || parts[2] == "M" {
			continue
		}

		t, err := time.Parse("2006-01-02 15:04", parts[1])
		if err != nil {
			continue
		}
		tempC, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			continue
		}
		tempF := units.CelsiusToFahrenheit(tempC)

		result.Observations = append(result.Observations, Observation{TimeUTC: t.UTC(), TempF: tempF})
		if !haveMax || tempF > maxF {
			maxF = tempF
			haveMax = true
			result.MaxTempAtUTC = t.UTC()
		}
	}

	if !haveMax {
		return DailyMax{}, fmt.Errorf("metarclient: no observations for %s on %s", stationCode, eventDay)
	}

	result.MaxTempF = units.RoundHalfUp(maxF)
	return result, nil
}
