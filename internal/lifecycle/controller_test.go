package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/wxdesk/zeus-dynamic/internal/config"
)

type fakeEngine struct {
	mu  sync.Mutex
	cfg config.EngineConfig
}

func (f *fakeEngine) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (f *fakeEngine) SwapConfig(cfg config.EngineConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
}
func (f *fakeEngine) Config() config.EngineConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func testConfig() config.EngineConfig {
	cfg := config.EngineConfig{FeatureToggles: map[string]bool{}}
	return cfg
}

func TestStartStop(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, func(cfg config.EngineConfig) (Runnable, error) {
		return &fakeEngine{cfg: cfg}, nil
	})

	if err := c.Start(testConfig()); err != nil {
		t.Fatal(err)
	}
	if !c.IsRunning() {
		t.Fatal("expected controller to report running")
	}
	if _, err := os.Stat(filepath.Join(dir, "engine.pid")); err != nil {
		t.Errorf("expected pid file to exist: %v", err)
	}

	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if c.IsRunning() {
		t.Fatal("expected controller to report stopped")
	}
	if _, err := os.Stat(filepath.Join(dir, "engine.pid")); !os.IsNotExist(err) {
		t.Errorf("expected pid file to be removed, err=%v", err)
	}
}

func TestStart_AlreadyRunningIsRejected(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, func(cfg config.EngineConfig) (Runnable, error) {
		return &fakeEngine{cfg: cfg}, nil
	})

	if err := c.Start(testConfig()); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	if err := c.Start(testConfig()); err != ErrAlreadyRunning {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestStart_DetectsStalePIDFromDeadProcess(t *testing.T) {
	dir := t.TempDir()
	// a pid that is vanishingly unlikely to be alive
	os.WriteFile(filepath.Join(dir, "engine.pid"), []byte(strconv.Itoa(1<<30)), 0o644)

	c := New(dir, func(cfg config.EngineConfig) (Runnable, error) {
		return &fakeEngine{cfg: cfg}, nil
	})
	if err := c.Start(testConfig()); err != nil {
		t.Fatalf("expected stale pid to be treated as not running, got %v", err)
	}
	c.Stop()
}

func TestUpdateFeatureToggles_SwapsLiveConfig(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, func(cfg config.EngineConfig) (Runnable, error) {
		return &fakeEngine{cfg: cfg}, nil
	})
	if err := c.Start(testConfig()); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	if err := c.UpdateFeatureToggles(map[string]bool{"websocket_bridge": true}); err != nil {
		t.Fatal(err)
	}

	cfg, err := c.GetEngineConfig()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.FeatureToggles["websocket_bridge"] {
		t.Error("expected toggle to be applied to the running engine")
	}
}

func TestUpdateConfig_LiveFieldAppliesWithoutRestart(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, func(cfg config.EngineConfig) (Runnable, error) {
		return &fakeEngine{cfg: cfg}, nil
	})
	start := testConfig()
	start.TickInterval = time.Minute
	start.LookaheadDays = 1
	if err := c.Start(start); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	next := start
	next.Sizing.EdgeMinBp = 500
	requiresRestart, err := c.UpdateConfig(next)
	if err != nil {
		t.Fatal(err)
	}
	if requiresRestart {
		t.Fatal("expected edge_min change to apply live, not require a restart")
	}

	cfg, err := c.GetEngineConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sizing.EdgeMinBp != 500 {
		t.Errorf("edge_min_bp = %v, want 500 applied live", cfg.Sizing.EdgeMinBp)
	}
}

func TestUpdateConfig_CadenceFieldRequiresRestart(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, func(cfg config.EngineConfig) (Runnable, error) {
		return &fakeEngine{cfg: cfg}, nil
	})
	start := testConfig()
	start.TickInterval = time.Minute
	start.LookaheadDays = 1
	if err := c.Start(start); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	next := start
	next.LookaheadDays = 3
	requiresRestart, err := c.UpdateConfig(next)
	if err != nil {
		t.Fatal(err)
	}
	if !requiresRestart {
		t.Fatal("expected lookahead_days change to report requires_restart")
	}

	cfg, err := c.GetEngineConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LookaheadDays != 1 {
		t.Errorf("lookahead_days = %v, want unchanged (1) since it was not restarted", cfg.LookaheadDays)
	}
}

func TestStop_WithoutStartReturnsErrNotRunning(t *testing.T) {
	c := New(t.TempDir(), func(cfg config.EngineConfig) (Runnable, error) {
		return &fakeEngine{cfg: cfg}, nil
	})
	if err := c.Stop(); err != ErrNotRunning {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
}

func TestRestart_ReplacesRunningEngine(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, func(cfg config.EngineConfig) (Runnable, error) {
		return &fakeEngine{cfg: cfg}, nil
	})
	if err := c.Start(testConfig()); err != nil {
		t.Fatal(err)
	}

	newCfg := testConfig()
	newCfg.FeatureToggles["restarted"] = true
	if err := c.Restart(newCfg); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	time.Sleep(10 * time.Millisecond)
	cfg, err := c.GetEngineConfig()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.FeatureToggles["restarted"] {
		t.Error("expected restart to apply the new config")
	}
}
