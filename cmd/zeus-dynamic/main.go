// Command zeus-dynamic runs the Dynamic Evaluation Engine: it loads
// configuration and the station registry, wires the forecast and
// market clients, the probability mapper, sizer, snapshot store, paper
// broker, and event bus, then hands the assembled engine to the
// lifecycle controller until it receives a shutdown signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wxdesk/zeus-dynamic/internal/broker"
	"github.com/wxdesk/zeus-dynamic/internal/config"
	"github.com/wxdesk/zeus-dynamic/internal/domain"
	"github.com/wxdesk/zeus-dynamic/internal/engine"
	"github.com/wxdesk/zeus-dynamic/internal/eventbus"
	"github.com/wxdesk/zeus-dynamic/internal/ledger"
	"github.com/wxdesk/zeus-dynamic/internal/lifecycle"
	"github.com/wxdesk/zeus-dynamic/internal/registry"
	"github.com/wxdesk/zeus-dynamic/internal/snapshot"
	"github.com/wxdesk/zeus-dynamic/pkg/forecastclient"
	"github.com/wxdesk/zeus-dynamic/pkg/marketclient"
)

var (
	httpPort int
	stateDir string
)

func init() {
	flag.IntVar(&httpPort, "http-port", 8090, "port for health checks and the websocket event bridge")
	flag.StringVar(&stateDir, "state-dir", "state", "directory for the pid file and engine_config.json")
}

func main() {
	flag.Parse()
	printBanner()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Main] failed to load configuration: %v", err)
	}

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		log.Fatalf("[Main] failed to load station registry: %v", err)
	}
	log.Printf("[Main] loaded %d stations from %s", len(reg.All()), cfg.RegistryPath)

	bus := eventbus.New(256)
	bridge := eventbus.NewWebSocketBridge(bus)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { fmt.Fprintln(w, "ok") })
	mux.Handle("/events", bridge)
	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", httpPort), Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Main] http server error: %v", err)
		}
	}()

	ctrl := lifecycle.New(stateDir, func(ec config.EngineConfig) (lifecycle.Runnable, error) {
		return buildEngine(ec, reg.All(), bus)
	})

	if err := ctrl.Start(cfg); err != nil {
		log.Fatalf("[Main] failed to start engine: %v", err)
	}
	log.Println("[Main] engine running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("[Main] shutdown signal received")
	if err := ctrl.Stop(); err != nil {
		log.Printf("[Main] error stopping engine: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Main] http server shutdown error: %v", err)
	}

	log.Println("[Main] goodbye")
}

func buildEngine(cfg config.EngineConfig, stations []domain.Station, bus *eventbus.Bus) (lifecycle.Runnable, error) {
	forecastC := forecastclient.New(cfg.ForecastToken, forecastclient.WithBaseURL(cfg.ForecastBaseURL))
	venue := marketclient.New(marketclient.WithBaseURL(cfg.MarketBaseURL))

	store := snapshot.New(cfg.SnapshotDir)
	brokerC := broker.New(cfg.TradesDir)

	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	return engine.New(cfg, stations, forecastC, venue, store, brokerC, bus, led), nil
}

func printBanner() {
	fmt.Println()
	fmt.Println("================================================================")
	fmt.Println(" ZEUS DYNAMIC EVALUATION ENGINE")
	fmt.Println(" Forecast-vs-market edge scanning for daily temperature brackets")
	fmt.Println("================================================================")
	fmt.Println()
}
