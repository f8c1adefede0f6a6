// Package config loads and validates the Dynamic Engine's
// configuration: environment variables via godotenv, with an optional
// YAML bootstrap file for the parts that are awkward to express as flat
// env vars (active stations, feature toggles, probability model overrides).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/wxdesk/zeus-dynamic/internal/probability"
	"github.com/wxdesk/zeus-dynamic/internal/sizing"
)

// ErrConfigInvalid wraps every validation failure, per the taxonomy in
// spec.md §7 (CONFIG_INVALID).
var ErrConfigInvalid = errors.New("config: invalid configuration")

// ExecutionMode selects whether the engine only papers decisions or
// would route them live (§6 control surface). Only paper is wired;
// live is accepted and validated so the restart-required contract
// around it is honest, but the broker only ever papers trades.
type ExecutionMode string

const (
	ExecutionPaper ExecutionMode = "paper"
	ExecutionLive  ExecutionMode = "live"
)

// RestartRequiredFields names the EngineConfig fields that change the
// Task set or cadence and therefore require a stop/start rather than a
// live swap, per spec.md §4.6/§6.
var RestartRequiredFields = []string{"active_stations", "interval_seconds", "lookahead_days", "execution_mode"}

// EngineConfig is the immutable, copy-on-read snapshot the Dynamic
// Engine (C10) and Lifecycle Controller (C12) pass around. A live
// config swap replaces the whole value; nothing mutates it in place.
type EngineConfig struct {
	RegistryPath   string
	ActiveStations []string // station codes; empty means every registered station
	TickInterval   time.Duration
	LookaheadDays  int
	ExecutionMode  ExecutionMode
	MaxInputAge    time.Duration
	WorkerPoolSize int

	ForecastBaseURL string
	ForecastToken   string
	MarketBaseURL   string
	MetarTimeout    time.Duration

	Probability probability.Config
	Sizing      sizing.Config

	SnapshotDir string
	TradesDir   string
	LedgerPath  string

	FeatureToggles map[string]bool
}

// bootstrapFile is the optional YAML shape for settings that don't fit
// comfortably as flat env vars.
type bootstrapFile struct {
	Stations       []string        `yaml:"stations"`
	FeatureToggles map[string]bool `yaml:"feature_toggles"`
	Probability    *struct {
		Model        string  `yaml:"model"`
		SigmaDefault float64 `yaml:"sigma_default"`
	} `yaml:"probability"`
}

// Load reads .env (if present) and a bootstrap YAML file (if the
// ZEUS_BOOTSTRAP_PATH env var points at one), then assembles an
// EngineConfig. Missing optional files are not errors.
func Load() (EngineConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return EngineConfig{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := defaults()

	if v := os.Getenv("ZEUS_REGISTRY_PATH"); v != "" {
		cfg.RegistryPath = v
	}
	if v := os.Getenv("ZEUS_ACTIVE_STATIONS"); v != "" {
		cfg.ActiveStations = splitCSVList(v)
	}
	if v := os.Getenv("ZEUS_TICK_INTERVAL_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return EngineConfig{}, fmt.Errorf("%w: ZEUS_TICK_INTERVAL_SECONDS: %v", ErrConfigInvalid, err)
		}
		cfg.TickInterval = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("ZEUS_LOOKAHEAD_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return EngineConfig{}, fmt.Errorf("%w: ZEUS_LOOKAHEAD_DAYS: %v", ErrConfigInvalid, err)
		}
		cfg.LookaheadDays = n
	}
	if v := os.Getenv("ZEUS_EXECUTION_MODE"); v != "" {
		cfg.ExecutionMode = ExecutionMode(v)
	}
	if v := os.Getenv("ZEUS_MAX_INPUT_AGE_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return EngineConfig{}, fmt.Errorf("%w: ZEUS_MAX_INPUT_AGE_SECONDS: %v", ErrConfigInvalid, err)
		}
		cfg.MaxInputAge = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("ZEUS_WORKER_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return EngineConfig{}, fmt.Errorf("%w: ZEUS_WORKER_POOL_SIZE: %v", ErrConfigInvalid, err)
		}
		cfg.WorkerPoolSize = n
	}
	if v := os.Getenv("ZEUS_FORECAST_BASE_URL"); v != "" {
		cfg.ForecastBaseURL = v
	}
	if v := os.Getenv("ZEUS_FORECAST_TOKEN"); v != "" {
		cfg.ForecastToken = v
	}
	if v := os.Getenv("ZEUS_MARKET_BASE_URL"); v != "" {
		cfg.MarketBaseURL = v
	}
	if v := os.Getenv("ZEUS_SNAPSHOT_DIR"); v != "" {
		cfg.SnapshotDir = v
	}
	if v := os.Getenv("ZEUS_TRADES_DIR"); v != "" {
		cfg.TradesDir = v
	}
	if v := os.Getenv("ZEUS_LEDGER_PATH"); v != "" {
		cfg.LedgerPath = v
	}
	if v := os.Getenv("ZEUS_DAILY_BANKROLL_CAP_USD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return EngineConfig{}, fmt.Errorf("%w: ZEUS_DAILY_BANKROLL_CAP_USD: %v", ErrConfigInvalid, err)
		}
		cfg.Sizing.DailyBankrollCapUSD = f
	}

	if bp := os.Getenv("ZEUS_BOOTSTRAP_PATH"); bp != "" {
		if err := applyBootstrap(bp, &cfg); err != nil {
			return EngineConfig{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

func defaults() EngineConfig {
	return EngineConfig{
		RegistryPath:   "stations.csv",
		TickInterval:   5 * time.Minute,
		LookaheadDays:  1,
		ExecutionMode:  ExecutionPaper,
		MaxInputAge:    30 * time.Minute,
		WorkerPoolSize: 4,
		MetarTimeout:   10 * time.Second,
		Probability:    probability.DefaultConfig(),
		Sizing:         sizing.DefaultConfig(),
		SnapshotDir:    "snapshots",
		TradesDir:      "trades",
		LedgerPath:     "ledger.db",
		FeatureToggles: map[string]bool{},
	}
}

func splitCSVList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyBootstrap(path string, cfg *EngineConfig) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read bootstrap file: %v", ErrConfigInvalid, err)
	}
	var bf bootstrapFile
	if err := yaml.Unmarshal(body, &bf); err != nil {
		return fmt.Errorf("%w: parse bootstrap file: %v", ErrConfigInvalid, err)
	}
	if len(bf.Stations) > 0 {
		cfg.ActiveStations = bf.Stations
	}
	for k, v := range bf.FeatureToggles {
		cfg.FeatureToggles[k] = v
	}
	if bf.Probability != nil {
		if bf.Probability.Model != "" {
			cfg.Probability.Model = probability.ModelMode(bf.Probability.Model)
		}
		if bf.Probability.SigmaDefault > 0 {
			cfg.Probability.SigmaDefault = bf.Probability.SigmaDefault
		}
	}
	return nil
}

// Validate checks invariants that must hold before the engine starts.
func (c EngineConfig) Validate() error {
	if c.RegistryPath == "" {
		return fmt.Errorf("%w: registry path is required", ErrConfigInvalid)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive", ErrConfigInvalid)
	}
	if c.MaxInputAge <= 0 {
		return fmt.Errorf("%w: max input age must be positive", ErrConfigInvalid)
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("%w: worker pool size must be positive", ErrConfigInvalid)
	}
	if c.LookaheadDays <= 0 {
		return fmt.Errorf("%w: lookahead days must be positive", ErrConfigInvalid)
	}
	if c.ExecutionMode != ExecutionPaper && c.ExecutionMode != ExecutionLive {
		return fmt.Errorf("%w: execution mode must be paper or live, got %q", ErrConfigInvalid, c.ExecutionMode)
	}
	if c.Sizing.DailyBankrollCapUSD <= 0 {
		return fmt.Errorf("%w: daily bankroll cap must be positive", ErrConfigInvalid)
	}
	return nil
}

// Clone returns a deep-enough copy for a live config swap: the
// FeatureToggles map and ActiveStations slice are copied so a caller
// mutating the old snapshot never touches the new one (§4.7
// copy-on-read semantics).
func (c EngineConfig) Clone() EngineConfig {
	out := c
	out.FeatureToggles = make(map[string]bool, len(c.FeatureToggles))
	for k, v := range c.FeatureToggles {
		out.FeatureToggles[k] = v
	}
	out.ActiveStations = append([]string(nil), c.ActiveStations...)
	return out
}

// RequiresRestart reports whether next, applied over c, touches any of
// the fields that change the Task set or cadence (§4.6): active
// stations, interval, lookahead, or execution mode. Everything else
// (edge_min, fee_bp, slippage_bp, kelly_cap, per_market_cap,
// liquidity_min_usd, daily_bankroll_cap, probability model params) is
// safe to apply with a live swap.
func (c EngineConfig) RequiresRestart(next EngineConfig) bool {
	if c.TickInterval != next.TickInterval {
		return true
	}
	if c.LookaheadDays != next.LookaheadDays {
		return true
	}
	if c.ExecutionMode != next.ExecutionMode {
		return true
	}
	if len(c.ActiveStations) != len(next.ActiveStations) {
		return true
	}
	for i, code := range c.ActiveStations {
		if next.ActiveStations[i] != code {
			return true
		}
	}
	return false
}
