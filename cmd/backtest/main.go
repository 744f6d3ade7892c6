// Command backtest replays weekly decision cycles against a deterministic
// snapshot provider and writes every decision, fill, and closed trade to the
// JSON ledger. An optional dashboard serves the results while it runs.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/revred/odte/internal/config"
	"github.com/revred/odte/internal/dashboard"
	"github.com/revred/odte/internal/engine"
	"github.com/revred/odte/internal/gating"
	"github.com/revred/odte/internal/ledger"
	"github.com/revred/odte/internal/marketdata"
	"github.com/revred/odte/internal/mock"
)

func main() {
	var (
		configPath string
		start      string
		weeks      int
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&start, "start", "2024-01-08", "First cycle Monday (YYYY-MM-DD)")
	flag.IntVar(&weeks, "weeks", 12, "Number of weekly cycles to run")
	flag.Parse()

	logger := log.New(os.Stdout, "[BACKTEST] ", log.LstdFlags)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	policy, err := gating.LoadPolicy(cfg.Policy.Path)
	if err != nil {
		log.Fatalf("Failed to load gating policy: %v", err)
	}

	firstMonday, err := time.Parse("2006-01-02", start)
	if err != nil {
		log.Fatalf("Invalid -start date: %v", err)
	}
	if firstMonday.Weekday() != time.Monday {
		log.Fatalf("-start %s is a %s, cycles anchor on a Monday", start, firstMonday.Weekday())
	}
	if weeks <= 0 {
		log.Fatalf("-weeks must be positive, got %d", weeks)
	}

	mockCfg := mock.DefaultConfig()
	mockCfg.Symbol = cfg.Strategy.Symbol
	base, err := mock.NewProvider(mockCfg)
	if err != nil {
		log.Fatalf("Failed to create snapshot provider: %v", err)
	}
	provider := marketdata.NewCircuitBreakerProvider(base)

	led, err := ledger.NewLedger(cfg.Ledger.Path)
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}

	eng, err := engine.New(cfg, provider, policy, led, logger)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("Shutdown signal received, stopping backtest...")
		cancel()
	}()

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		dashLogger := logrus.New()
		dash = dashboard.NewServer(dashboard.Config{Addr: cfg.Dashboard.Addr}, led, dashLogger)
		go func() {
			if err := dash.Start(); err != nil && err != http.ErrServerClosed {
				dashLogger.WithError(err).Error("Dashboard server stopped")
			}
		}()
	}

	mondays := make([]time.Time, 0, weeks)
	for i := 0; i < weeks; i++ {
		mondays = append(mondays, firstMonday.AddDate(0, 0, 7*i))
	}

	logger.Printf("Running %d weekly cycles on %s from %s", weeks, cfg.Strategy.Symbol, start)
	results, err := eng.RunCycles(ctx, mondays)
	if err != nil {
		logger.Fatalf("Backtest failed: %v", err)
	}

	total := 0.0
	for _, res := range results {
		logger.Printf("week of %s: state=%s pnl=%.0f",
			res.Monday.Format("2006-01-02"), res.State, res.RealizedPnL)
		total += res.RealizedPnL
	}

	stats := led.Statistics()
	logger.Printf("Done: %d trades, win rate %.0f%%, total pnl $%.0f, max drawdown $%.0f",
		stats.TotalTrades, stats.WinRate*100, total, stats.MaxDrawdown)
	logger.Printf("Fill quality: %d fills, %.0f%% at mid or better",
		stats.FillCount, stats.MidOrBetterRate*100)
	logger.Printf("Ladder finished at cap $%.0f (level %d)", eng.Ladder().Cap(), eng.Ladder().Level())

	if err := led.Save(); err != nil {
		logger.Fatalf("Failed to save ledger: %v", err)
	}
	logger.Printf("Ledger written to %s", cfg.Ledger.Path)

	if dash != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := dash.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Dashboard shutdown: %v", err)
		}
	}
}
