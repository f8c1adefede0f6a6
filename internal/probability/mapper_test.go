package probability

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxdesk/zeus-dynamic/internal/domain"
)

func kelvinForF(f float64) float64 {
	c := (f - 32) * 5 / 9
	return c + 273.15
}

func forecastWithMaxF(maxF float64) domain.Forecast {
	base := time.Date(2025, 11, 19, 0, 0, 0, 0, time.UTC)
	points := []domain.TemperaturePoint{
		{TimeUTC: base, TempKelvin: kelvinForF(maxF - 4)},
		{TimeUTC: base.Add(6 * time.Hour), TempKelvin: kelvinForF(maxF)},
		{TimeUTC: base.Add(12 * time.Hour), TempKelvin: kelvinForF(maxF - 2)},
	}
	return domain.Forecast{StationCode: "EGLC", EventDay: "2025-11-19", Points: points}
}

// TestMap_AcceptanceSeed mirrors the spec.md §8 seed scenario: station
// EGLC, μ=45.4°F, bracket 45-46°F, σ=2.0 spread model -> p_zeus ≈ 0.420.
func TestMap_AcceptanceSeed(t *testing.T) {
	f := forecastWithMaxF(45.4)
	brackets := []domain.Bracket{
		{MarketID: "under", UpperF: 45, IsUnder: true},
		{MarketID: "mid", LowerF: 45, UpperF: 46},
		{MarketID: "over", LowerF: 46, IsOver: true},
	}

	cfg := DefaultConfig()
	cfg.SigmaDefault = 2.0
	m := New(cfg)

	probs, err := m.Map(f, brackets, false)
	require.NoError(t, err)
	require.Len(t, probs, 3)

	var mid float64
	for _, p := range probs {
		if p.Bracket.MarketID == "mid" {
			mid = p.PZeus
		}
	}
	assert.InDelta(t, 0.420, mid, 0.02)
}

func TestMap_PartitionSumsToOne(t *testing.T) {
	f := forecastWithMaxF(62.1)
	brackets := []domain.Bracket{
		{MarketID: "u", UpperF: 60, IsUnder: true},
		{MarketID: "1", LowerF: 60, UpperF: 61},
		{MarketID: "2", LowerF: 61, UpperF: 62},
		{MarketID: "3", LowerF: 62, UpperF: 63},
		{MarketID: "o", LowerF: 63, IsOver: true},
	}
	m := New(DefaultConfig())
	probs, err := m.Map(f, brackets, false)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, Sum(probs), 1e-6)
}

func TestMap_MonotoneAroundMean(t *testing.T) {
	f := forecastWithMaxF(50.0)
	brackets := []domain.Bracket{
		{MarketID: "under", UpperF: 48, IsUnder: true},
		{MarketID: "far-low", LowerF: 48, UpperF: 49},
		{MarketID: "low", LowerF: 49, UpperF: 50},
		{MarketID: "near", LowerF: 50, UpperF: 51},
		{MarketID: "high", LowerF: 51, UpperF: 52},
		{MarketID: "far-high", LowerF: 52, UpperF: 53},
		{MarketID: "over", LowerF: 53, IsOver: true},
	}
	m := New(DefaultConfig())
	probs, err := m.Map(f, brackets, false)
	require.NoError(t, err)

	byID := map[string]float64{}
	for _, p := range probs {
		byID[p.Bracket.MarketID] = p.PZeus
	}
	assert.Greater(t, byID["near"], byID["far-low"])
	assert.Greater(t, byID["near"], byID["far-high"])
}

func TestMap_EmptyForecast(t *testing.T) {
	m := New(DefaultConfig())
	_, err := m.Map(domain.Forecast{}, []domain.Bracket{{MarketID: "x", LowerF: 1, UpperF: 2}}, false)
	assert.ErrorIs(t, err, ErrEmptyForecast)
}

func TestMap_InvalidBrackets(t *testing.T) {
	f := forecastWithMaxF(50.0)
	m := New(DefaultConfig())
	_, err := m.Map(f, nil, false)
	assert.ErrorIs(t, err, ErrInvalidBrackets)
}

func TestMap_PolymarketDoubleRounding(t *testing.T) {
	base := time.Date(2025, 11, 19, 0, 0, 0, 0, time.UTC)
	f := domain.Forecast{
		StationCode: "NYCM",
		EventDay:    "2025-11-19",
		Points: []domain.TemperaturePoint{
			{TimeUTC: base, TempKelvin: kelvinForF(45.428)},
			{TimeUTC: base.Add(time.Hour), TempKelvin: kelvinForF(45.50)},
			{TimeUTC: base.Add(2 * time.Hour), TempKelvin: kelvinForF(45.32)},
		},
	}
	cfg := DefaultConfig()
	cfg.PolymarketDoubleRounding = true
	m := New(cfg)

	brackets := []domain.Bracket{
		{MarketID: "1", LowerF: 45, UpperF: 46},
		{MarketID: "2", LowerF: 46, UpperF: 47},
	}
	probs, err := m.Map(f, brackets, true)
	require.NoError(t, err)

	mu, err := m.computeMu(f, true)
	require.NoError(t, err)
	assert.Equal(t, 46.0, mu)
	assert.NotEmpty(t, probs)
}

func TestComputeSigma_ClampStrict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SigmaDefault = 100
	cfg.ClampPolicy = ClampStrict
	m := New(cfg)
	_, err := m.computeSigma(0)
	assert.ErrorIs(t, err, ErrNumeric)
}

func TestComputeSigma_ClampSilently(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SigmaDefault = 100
	cfg.ClampPolicy = ClampSilently
	m := New(cfg)
	sigma, err := m.computeSigma(0)
	require.NoError(t, err)
	assert.Equal(t, cfg.SigmaMax, sigma)
}

func TestNormalCDF_Symmetry(t *testing.T) {
	assert.InDelta(t, 0.5, normalCDF(10, 10, 2), 1e-9)
	assert.True(t, math.Abs(normalCDF(12, 10, 2)-(1-normalCDF(8, 10, 2))) < 1e-9)
}
