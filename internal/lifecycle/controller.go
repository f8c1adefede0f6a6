// Package lifecycle is the Lifecycle Controller (C12): it owns
// starting, stopping, and restarting the Dynamic Engine as a managed
// process, persisting a PID file and the active EngineConfig so a
// restart can detect whether it's already running or recovering from a
// crash, per spec.md §4.8. Grounded on the graceful-shutdown idiom of
// cmd/dualside-bot/production/main.go.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"github.com/wxdesk/zeus-dynamic/internal/config"
)

// ErrAlreadyRunning is returned by Start when a live PID file points at
// a still-running process.
var ErrAlreadyRunning = errors.New("lifecycle: engine already running")

// ErrNotRunning is returned by Stop, GetEngineConfig,
// UpdateFeatureToggles and UpdateConfig when no engine is active.
// Restart does not return it: with no engine active it just starts one.
var ErrNotRunning = errors.New("lifecycle: engine not running")

// Runnable is the subset of engine.Engine the controller depends on.
type Runnable interface {
	Run(ctx context.Context) error
	SwapConfig(cfg config.EngineConfig)
	Config() config.EngineConfig
}

// Controller manages one Runnable's process lifecycle.
type Controller struct {
	stateDir string
	factory  func(config.EngineConfig) (Runnable, error)

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	engine  Runnable
	wg      sync.WaitGroup
}

// New creates a Controller that persists its PID file and config under
// stateDir, building engines with factory.
func New(stateDir string, factory func(config.EngineConfig) (Runnable, error)) *Controller {
	return &Controller{stateDir: stateDir, factory: factory}
}

func (c *Controller) pidPath() string    { return filepath.Join(c.stateDir, "engine.pid") }
func (c *Controller) configPath() string { return filepath.Join(c.stateDir, "engine_config.json") }

// Start boots a new engine with cfg. If a PID file exists and names a
// still-alive process, Start refuses with ErrAlreadyRunning rather than
// starting a second instance against the same state directory.
func (c *Controller) Start(cfg config.EngineConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrAlreadyRunning
	}
	if pid, ok := c.readLivePID(); ok {
		return fmt.Errorf("%w: pid %d", ErrAlreadyRunning, pid)
	}

	if err := os.MkdirAll(c.stateDir, 0o755); err != nil {
		return fmt.Errorf("lifecycle: mkdir state dir: %w", err)
	}

	eng, err := c.factory(cfg)
	if err != nil {
		return fmt.Errorf("lifecycle: build engine: %w", err)
	}

	if err := c.writePID(); err != nil {
		return err
	}
	if err := c.writeConfig(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.engine = eng
	c.running = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[Lifecycle] engine exited with error: %v", err)
		}
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		c.removePID()
	}()

	log.Printf("[Lifecycle] engine started (pid %d)", os.Getpid())
	return nil
}

// Stop cancels the running engine's context and waits for it to exit.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	c.removePID()
	log.Println("[Lifecycle] engine stopped")
	return nil
}

// Restart stops the current engine (if any) and starts a new one with
// cfg, so a config change takes full effect rather than relying on a
// live swap.
func (c *Controller) Restart(cfg config.EngineConfig) error {
	if c.IsRunning() {
		if err := c.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
			return err
		}
	}
	return c.Start(cfg)
}

// IsRunning reports whether this controller currently owns a running
// engine.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// GetEngineConfig returns the active engine's current configuration
// snapshot.
func (c *Controller) GetEngineConfig() (config.EngineConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return config.EngineConfig{}, ErrNotRunning
	}
	return c.engine.Config(), nil
}

// UpdateFeatureToggles performs a live config swap on the running
// engine rather than a full restart.
func (c *Controller) UpdateFeatureToggles(toggles map[string]bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return ErrNotRunning
	}
	cfg := c.engine.Config().Clone()
	for k, v := range toggles {
		cfg.FeatureToggles[k] = v
	}
	c.engine.SwapConfig(cfg)
	return c.writeConfig(cfg)
}

// UpdateConfig applies next as a live config change, per spec.md §4.6's
// live-config endpoint: trading and probability-model fields (edge_min,
// fee_bp, slippage_bp, kelly_cap, per_market_cap, liquidity_min_usd,
// daily_bankroll_cap, model params) take effect starting with the next
// cycle via a live swap. If next differs from the running config in any
// field that changes the Task set or cadence
// (config.RestartRequiredFields), the swap is refused and
// requiresRestart is reported true; the caller must call Restart(next)
// itself to apply those fields.
func (c *Controller) UpdateConfig(next config.EngineConfig) (requiresRestart bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false, ErrNotRunning
	}

	current := c.engine.Config()
	if current.RequiresRestart(next) {
		return true, nil
	}

	cfg := next.Clone()
	c.engine.SwapConfig(cfg)
	if err := c.writeConfig(cfg); err != nil {
		return false, err
	}
	return false, nil
}

func (c *Controller) writePID() error {
	return os.WriteFile(c.pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func (c *Controller) removePID() {
	if err := os.Remove(c.pidPath()); err != nil && !os.IsNotExist(err) {
		log.Printf("[Lifecycle] failed to remove pid file: %v", err)
	}
}

func (c *Controller) writeConfig(cfg config.EngineConfig) error {
	body, err := json.MarshalIndent(summarize(cfg), "", "  ")
	if err != nil {
		return fmt.Errorf("lifecycle: marshal engine config: %w", err)
	}
	return os.WriteFile(c.configPath(), body, 0o644)
}

// summarize strips the config down to JSON-friendly fields for the
// persisted engine_config.json (time.Duration marshals as nanoseconds,
// which is deliberately left as-is since it's a debug artifact, not a
// config source of truth).
func summarize(cfg config.EngineConfig) map[string]any {
	return map[string]any{
		"registry_path":    cfg.RegistryPath,
		"tick_interval_ns": cfg.TickInterval,
		"max_input_age_ns": cfg.MaxInputAge,
		"worker_pool_size": cfg.WorkerPoolSize,
		"feature_toggles":  cfg.FeatureToggles,
	}
}

// readLivePID reads the PID file, if any, and reports whether the
// named process appears to still be alive. On Unix, signaling with 0
// checks existence without affecting the process.
func (c *Controller) readLivePID() (int, bool) {
	body, err := os.ReadFile(c.pidPath())
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(string(body))
	if err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}
	return pid, true
}
