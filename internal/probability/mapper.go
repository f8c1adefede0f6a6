// Package probability is the Probability Mapper (C6): it converts a
// Forecast into a BracketProb for every bracket in a partitioning set,
// per spec.md §4.1.
package probability

import (
	"errors"
	"math"

	"github.com/wxdesk/zeus-dynamic/internal/domain"
	"github.com/wxdesk/zeus-dynamic/internal/units"
)

// Errors mirror the §4.1/§7 taxonomy.
var (
	ErrEmptyForecast   = errors.New("probability: forecast has no points")
	ErrInvalidBrackets = errors.New("probability: bracket set is not a valid partition")
	ErrNumeric         = errors.New("probability: sigma outside clamp under strict policy")
)

// ModelMode selects which spread model is used to turn μ into bracket
// probabilities (§4.1).
type ModelMode string

const (
	ModelSpread ModelMode = "spread"
	ModelBands  ModelMode = "bands"
)

// ClampPolicy controls what happens when σ would fall outside
// [SigmaMin, SigmaMax].
type ClampPolicy string

const (
	// ClampSilently clamps σ into range without error.
	ClampSilently ClampPolicy = "clamp"
	// ClampStrict fails with ErrNumeric instead of clamping.
	ClampStrict ClampPolicy = "strict"
)

// Config holds the mapper's tunable parameters (§4.1, §6
// probability_model).
type Config struct {
	Model       ModelMode
	SigmaDefault float64
	SigmaMin     float64
	SigmaMax     float64
	ClampPolicy  ClampPolicy

	// Bands model parameters (0.5 < LikelyPct < PossiblePct < 1).
	LikelyPct   float64
	PossiblePct float64

	// PolymarketDoubleRounding enables the two-step rounding chain in
	// §4.1 for venues that resolve on whole-degree METAR readings.
	PolymarketDoubleRounding bool

	// Calibration, if non-nil, is applied before computing μ and σ.
	Calibration *Calibration
}

// DefaultConfig returns the spread model with typical defaults.
func DefaultConfig() Config {
	return Config{
		Model:        ModelSpread,
		SigmaDefault: 2.0,
		SigmaMin:     1.0,
		SigmaMax:     5.0,
		ClampPolicy:  ClampSilently,
		LikelyPct:    0.6,
		PossiblePct:  0.85,
	}
}

// Calibration is a per-station bias table (§4.1): a 12x24 bias matrix in
// °C (month-1 x hour) plus a scalar elevation offset in °C.
type Calibration struct {
	BiasC           [12][24]float64
	ElevationOffsetC float64
}

// Mapper computes BracketProb sets from forecasts.
type Mapper struct {
	cfg Config
}

// New creates a Mapper with the given configuration.
func New(cfg Config) *Mapper {
	return &Mapper{cfg: cfg}
}

// Map converts f into a BracketProb for every bracket in brackets, for a
// station that resolves on whole degrees or not (resolvesWhole).
func (m *Mapper) Map(f domain.Forecast, brackets []domain.Bracket, resolvesWhole bool) ([]domain.BracketProb, error) {
	if len(f.Points) == 0 {
		return nil, ErrEmptyForecast
	}
	if err := validatePartition(brackets); err != nil {
		return nil, err
	}

	mu, err := m.computeMu(f, resolvesWhole)
	if err != nil {
		return nil, err
	}

	sigma, err := m.computeSigma(mu)
	if err != nil {
		return nil, err
	}

	probs := make([]domain.BracketProb, len(brackets))
	var total float64
	for i, b := range brackets {
		p := bracketProbability(b, mu, sigma)
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, ErrNumeric
		}
		probs[i] = domain.BracketProb{Bracket: b, PZeus: p, SigmaUsed: sigma}
		total += p
	}

	if total <= 0 {
		return nil, ErrNumeric
	}
	for i := range probs {
		probs[i].PZeus /= total
	}

	return probs, nil
}

// computeMu computes the daily-high mean in Fahrenheit, applying
// calibration (if configured) and the Polymarket double-rounding chain
// (if resolvesWhole and enabled).
func (m *Mapper) computeMu(f domain.Forecast, resolvesWhole bool) (float64, error) {
	hourlyF := m.hourlyFahrenheit(f)
	if len(hourlyF) == 0 {
		return 0, ErrEmptyForecast
	}

	if resolvesWhole && m.cfg.PolymarketDoubleRounding {
		var maxOneDP float64
		for i, v := range hourlyF {
			r := units.RoundTo(v, 1)
			if i == 0 || r > maxOneDP {
				maxOneDP = r
			}
		}
		return units.RoundHalfUp(maxOneDP), nil
	}

	var maxF float64
	for i, v := range hourlyF {
		if i == 0 || v > maxF {
			maxF = v
		}
	}
	return maxF, nil
}

// hourlyFahrenheit converts every point to Fahrenheit, applying
// calibration additively in °C before conversion when configured.
func (m *Mapper) hourlyFahrenheit(f domain.Forecast) []float64 {
	out := make([]float64, len(f.Points))
	for i, p := range f.Points {
		k := p.TempKelvin
		if m.cfg.Calibration != nil {
			k = applyCalibrationKelvin(k, p, m.cfg.Calibration)
		}
		out[i] = units.KelvinToFahrenheit(k)
	}
	return out
}

// applyCalibrationKelvin adds the station's monthly/hourly bias plus
// elevation offset (both °C) to a Kelvin reading. Calibration is a pure
// additive transform in °C (Testable Property 12): applying it twice is
// equivalent to doubling the correction, since Kelvin and Celsius share
// the same unit scale (ΔK == ΔC).
func applyCalibrationKelvin(k float64, p domain.TemperaturePoint, cal *Calibration) float64 {
	month := int(p.TimeUTC.Month()) - 1
	hour := p.TimeUTC.Hour()
	deltaC := cal.BiasC[month][hour] + cal.ElevationOffsetC
	return k + deltaC
}

func (m *Mapper) computeSigma(mu float64) (float64, error) {
	sigma := m.cfg.SigmaDefault

	if m.cfg.Model == ModelBands {
		sigma = m.bandsSigma()
	}

	if sigma < m.cfg.SigmaMin || sigma > m.cfg.SigmaMax {
		if m.cfg.ClampPolicy == ClampStrict {
			return 0, ErrNumeric
		}
		sigma = clamp(sigma, m.cfg.SigmaMin, m.cfg.SigmaMax)
	}

	return sigma, nil
}

// bandsSigma derives σ from the likely/possible coverage parameters
// (§4.1). The likely band is defined to be the μ±1°F bracket
// neighborhood; σ is solved so that Φ(z)-Φ(-z) == LikelyPct for
// z = 1/σ, i.e. σ = 1 / Φ^-1((1+LikelyPct)/2).
func (m *Mapper) bandsSigma() float64 {
	z := probit((1 + m.cfg.LikelyPct) / 2)
	if z <= 0 {
		return m.cfg.SigmaDefault
	}
	return 1.0 / z
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// bracketProbability computes Φ((U-μ)/σ) − Φ((L-μ)/σ) for an interior
// bracket, or the corresponding one-sided tail for under/over brackets.
func bracketProbability(b domain.Bracket, mu, sigma float64) float64 {
	switch {
	case b.IsUnder:
		return normalCDF(b.UpperF, mu, sigma)
	case b.IsOver:
		return 1 - normalCDF(b.LowerF, mu, sigma)
	default:
		return normalCDF(b.UpperF, mu, sigma) - normalCDF(b.LowerF, mu, sigma)
	}
}

// normalCDF is the standard Normal CDF centered at mean with the given
// standard deviation.
func normalCDF(x, mean, sigma float64) float64 {
	return 0.5 * (1 + math.Erf((x-mean)/(sigma*math.Sqrt2)))
}

// probit is the inverse standard Normal CDF, computed via Erfinv.
func probit(p float64) float64 {
	return math.Sqrt2 * math.Erfinv(2*p-1)
}

func validatePartition(brackets []domain.Bracket) error {
	if len(brackets) == 0 {
		return ErrInvalidBrackets
	}
	var interior []domain.Bracket
	underCount, overCount := 0, 0
	for _, b := range brackets {
		switch {
		case b.IsUnder:
			underCount++
		case b.IsOver:
			overCount++
		default:
			if b.UpperF <= b.LowerF {
				return ErrInvalidBrackets
			}
			interior = append(interior, b)
		}
	}
	if underCount > 1 || overCount > 1 {
		return ErrInvalidBrackets
	}
	for i := 1; i < len(interior); i++ {
		for j := i; j > 0 && interior[j].LowerF < interior[j-1].LowerF; j-- {
			interior[j], interior[j-1] = interior[j-1], interior[j]
		}
	}
	for i, b := range interior {
		if b.Width() != 1 {
			return ErrInvalidBrackets
		}
		if i > 0 && interior[i-1].UpperF != b.LowerF {
			return ErrInvalidBrackets
		}
	}
	return nil
}

// Sum returns the total probability mass across probs, for diagnostics
// and the partition-sum test property.
func Sum(probs []domain.BracketProb) float64 {
	var total float64
	for _, p := range probs {
		total += p.PZeus
	}
	return total
}
