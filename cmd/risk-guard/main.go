package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ducminhle1904/risk-guard/internal/breaker"
	"github.com/ducminhle1904/risk-guard/internal/config"
	guarderrors "github.com/ducminhle1904/risk-guard/internal/errors"
	"github.com/ducminhle1904/risk-guard/internal/estimator"
	"github.com/ducminhle1904/risk-guard/internal/exchange"
	"github.com/ducminhle1904/risk-guard/internal/executor"
	"github.com/ducminhle1904/risk-guard/internal/guard"
	"github.com/ducminhle1904/risk-guard/internal/logger"
	"github.com/ducminhle1904/risk-guard/internal/monitoring"
	"github.com/ducminhle1904/risk-guard/internal/notifications"
	"github.com/ducminhle1904/risk-guard/internal/portfolio"
	"github.com/ducminhle1904/risk-guard/pkg/reporting"
)

func main() {
	var (
		envFile      = flag.String("env", ".env", "Environment file path (default: .env)")
		balance      = flag.Float64("balance", 10000, "Starting paper account balance")
		statusEvery  = flag.Duration("status-interval", time.Minute, "Console status table interval (0 disables)")
		reportOnExit = flag.Bool("report", true, "Write the breaker history workbook on shutdown")
	)
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("Warning: Could not load .env file (%v), checking environment variables...", err)
	}

	fmt.Println("🚀 Risk Guard Starting...")

	cfg := config.Load()

	guardLog, err := logger.NewLogger(cfg.Account)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer guardLog.Close()

	// The loop runs against the paper exchange; live connectivity plugs in
	// behind the same interface.
	exch := exchange.NewPaperExchange(*balance)
	signals := exchange.NewStaticSignalSource(0.5, 0.5, 0.5)

	store := portfolio.NewStore(exch, cfg.Sizing.VolatilityBaseline)

	est := estimator.New(estimator.Config{
		ConfidenceLevel:    cfg.Estimator.ConfidenceLevel,
		MinVolatility:      cfg.Estimator.MinVolatility,
		EntropyFactorMin:   cfg.Estimator.EntropyFactorMin,
		EntropyFactorMax:   cfg.Estimator.EntropyFactorMax,
		CoherenceFactorMin: cfg.Estimator.CoherenceFactorMin,
		CoherenceFactorMax: cfg.Estimator.CoherenceFactorMax,
	})

	brk := breaker.New(breaker.Config{
		CoolingPeriods: map[breaker.Level]time.Duration{
			breaker.Level1Warning:   cfg.Breaker.CoolingL1,
			breaker.Level2Caution:   cfg.Breaker.CoolingL2,
			breaker.Level3Emergency: cfg.Breaker.CoolingL3,
		},
		EventCapacity:  cfg.Breaker.EventCapacity,
		ActionCapacity: cfg.Breaker.ActionCapacity,
	}, breaker.Limits{
		LossThresholdL1:     cfg.Breaker.LossThresholdL1,
		LossThresholdL2:     cfg.Breaker.LossThresholdL2,
		LossThresholdL3:     cfg.Breaker.LossThresholdL3,
		MaxDrawdown:         cfg.Breaker.MaxDrawdown,
		MaxLeverage:         cfg.Breaker.MaxLeverage,
		MaxDailyTrades:      cfg.Breaker.MaxDailyTrades,
		MaxPositionNotional: cfg.Breaker.MaxPositionNotional,
		RapidLossThreshold:  cfg.Breaker.RapidLossThreshold,
		RapidLossWindow:     cfg.Breaker.RapidLossWindow,
	})

	var notifier notifications.Notifier = notifications.NopNotifier{}
	if cfg.Notifications.TelegramToken != "" && cfg.Notifications.TelegramChatID != "" {
		notifier = notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID)
		guardLog.Info("telegram notifications enabled")
	}

	stats := guarderrors.NewStats(100)

	exec := executor.New(exch, brk, guardLog, notifier, stats, executor.Config{
		ReductionL1:   cfg.Executor.ReductionL1,
		ReductionL2:   cfg.Executor.ReductionL2,
		StopTighten:   cfg.Executor.StopTighten,
		CallTimeout:   cfg.Loop.ExchangeTimeout,
		RatePerSecond: cfg.Executor.RatePerSecond,
		RateBurst:     cfg.Executor.RateBurst,
	})

	health := monitoring.NewHealthChecker(3 * cfg.Loop.MonitorInterval)
	observer := monitoring.NewObserver(health)

	g := guard.New(cfg, store, est, brk, exec, signals, guardLog, notifier, stats, observer)
	g.PrintStartupInfo(os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startMetricsServer(cfg.Monitoring.PrometheusPort, guardLog)
	startAdminServer(cfg.Monitoring.HealthPort, g, health, guardLog)

	go func() {
		if err := g.Run(ctx); err != nil && err != context.Canceled {
			guardLog.LogError("guard.run", err)
		}
	}()

	if *statusEvery > 0 {
		go func() {
			ticker := time.NewTicker(*statusEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					g.PrintStatus(os.Stdout)
					monitoring.UpdateDailyMaxRisk(g.Status().DailyMaxRisk)
				}
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	fmt.Println("\n🛑 Shutdown signal received...")
	cancel()

	if *reportOnExit {
		path := filepath.Join(cfg.Reporting.OutputDir, fmt.Sprintf("breaker_history_%s.xlsx", time.Now().Format("2006-01-02_150405")))
		reporter := reporting.NewExcelReporter()
		if err := reporter.WriteHistoryXLSX(brk.Events(), brk.Actions(), path); err != nil {
			guardLog.LogError("reporting.xlsx", err)
		} else {
			fmt.Printf("📊 Breaker history written to %s\n", path)
		}
	}

	fmt.Println("✅ Risk guard stopped successfully")
}

func startMetricsServer(port int, guardLog *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	go func() {
		addr := fmt.Sprintf(":%d", port)
		guardLog.Info("prometheus metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			guardLog.LogError("metrics.server", err)
		}
	}()
}

func startAdminServer(port int, g *guard.Guard, health *monitoring.HealthChecker, guardLog *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/health", health)
	monitoring.NewAdminHandler(g).Register(mux)
	go func() {
		addr := fmt.Sprintf(":%d", port)
		guardLog.Info("admin surface listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			guardLog.LogError("admin.server", err)
		}
	}()
}

// loadEnvFile loads environment variables from a file
func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}
