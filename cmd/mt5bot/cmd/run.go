package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glockyhere/mt5bot/broker"
	"github.com/glockyhere/mt5bot/config"
	"github.com/glockyhere/mt5bot/engine"
	"github.com/glockyhere/mt5bot/journal"
	"github.com/glockyhere/mt5bot/market"
	"github.com/glockyhere/mt5bot/risk"
	"github.com/glockyhere/mt5bot/sim"
	"github.com/glockyhere/mt5bot/strategies"
	"github.com/glockyhere/mt5bot/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot against the simulated venue",
	Long: `Run the trading bot using settings from a configuration file.

The bot evaluates the configured strategy on every tick, sizes entries
against the risk limits, trails stops per the configured policy and hedges
losing positions when enabled. The control endpoint accepts open/close-all
requests while running.

Example:
  mt5bot run --config bot.yaml`,
	RunE: runRun,
}

var (
	runConfigPath string
	runVerbose    bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "debug-level logging")
	runCmd.MarkFlagRequired("config")
}

// controlRequest is one queued command from the HTTP control endpoint,
// executed by the tick loop between ticks.
type controlRequest struct {
	kind string // "open" or "close-all"
	side broker.Side
}

func runRun(cmd *cobra.Command, args []string) error {
	// .env overrides are optional; a missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyEnvOverrides(cfg)

	log, err := buildLogger(runVerbose)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	j, err := buildJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.New()
	}

	venue := buildSim(cfg)
	strat, err := strategies.ByName(cfg.Strategy.Type, cfg.Strategy.Parameters)
	if err != nil {
		return fmt.Errorf("build strategy: %w", err)
	}

	guard := risk.NewGuard(cfg.Risk.Limits(), nil, log)
	eng, err := engine.New(engine.Config{
		Symbol:             cfg.Trading.Symbol,
		Magic:              cfg.Trading.Magic,
		LotSize:            cfg.Trading.LotSize,
		StopPips:           cfg.Trading.StopPips,
		TakeProfitPips:     cfg.Trading.TakeProfitPips,
		InitialStopDollars: cfg.Trading.InitialStopDollars,
		Hedge: engine.HedgeConfig{
			Enabled:     cfg.Hedge.Enabled,
			LossTrigger: cfg.Hedge.LossTrigger,
			MaxLegs:     cfg.Hedge.MaxLegs,
		},
	}, venue, guard, cfg.Trailing.Policy(), j, metrics, log, nil)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	interval, err := cfg.Trading.ParseTickInterval()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	control := make(chan controlRequest, 8)
	if cfg.Telemetry.Enabled {
		go serveControl(cfg.Telemetry.Listen, eng, metrics, control, log)
	}

	fmt.Printf("Starting bot: %s (session %s)\n", cfg.Trading.Symbol, eng.Session())
	fmt.Printf("  Strategy: %s, trailing: %s, tick: %s\n",
		strat.Name(), cfg.Trailing.Mode, interval)

	log.Info("bot started",
		zap.String("session", eng.Session()),
		zap.String("symbol", cfg.Trading.Symbol),
		zap.String("strategy", strat.Name()),
		zap.String("trailing_mode", cfg.Trailing.Mode),
	)

	runLoop(ctx, eng, venue, strat, cfg, interval, control, log)

	printFinal(eng, venue)
	return nil
}

// runLoop drives the engine: scripted price steps feed the sim venue, each
// tick grows the candle series, the strategy votes and the engine acts. The
// engine is only ever touched from this goroutine.
func runLoop(ctx context.Context, eng *engine.Engine, venue *sim.Engine,
	strat strategies.Strategy, cfg *config.Config, interval time.Duration,
	control <-chan controlRequest, log *zap.Logger) {

	steps := cfg.Simulation.PriceSteps
	nextStep := time.Now()
	candles := make(market.Candles, 0, 512)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return

		case req := <-control:
			switch req.kind {
			case "open":
				if _, err := eng.OpenManual(ctx, req.side); err != nil {
					log.Error("control open failed", zap.Error(err))
				}
			case "close-all":
				if err := eng.CloseAll(ctx); err != nil {
					log.Error("control close-all failed", zap.Error(err))
				}
			}

		case now := <-ticker.C:
			if len(steps) > 0 && !now.Before(nextStep) {
				step := steps[0]
				steps = steps[1:]
				q, err := venue.GetQuote(ctx, cfg.Trading.Symbol)
				if err == nil {
					q.Bid, q.Ask, q.Time = step.Bid, step.Ask, now
					venue.SetQuote(q)
				}
				if d, err := step.ParseDuration(); err == nil {
					nextStep = now.Add(d)
				}
			}

			q, err := venue.GetQuote(ctx, cfg.Trading.Symbol)
			if err != nil {
				log.Warn("quote unavailable", zap.Error(err))
				continue
			}

			mid := (q.Bid + q.Ask) / 2
			candles = append(candles, market.Candle{
				Time: now, Open: mid, High: mid, Low: mid, Close: mid,
			})
			if len(candles) > 512 {
				candles = candles[len(candles)-512:]
			}

			if sig := strat.OnBar(candles); sig != strategies.Hold {
				eng.SubmitSignal(sig)
			}

			if err := eng.Tick(ctx); err != nil {
				log.Warn("tick failed", zap.Error(err))
			}
		}
	}
}

// serveControl exposes /metrics, /status and the control endpoints. Control
// actions are queued for the tick loop rather than executed in-handler.
func serveControl(listen string, eng *engine.Engine, metrics *telemetry.Metrics,
	control chan<- controlRequest, log *zap.Logger) {

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Session string          `json:"session"`
			Summary engine.Summary  `json:"summary"`
			Daily   risk.DailyStats `json:"daily"`
		}{eng.Session(), eng.Summary(), eng.DailyStats()})
	})

	mux.HandleFunc("/control/open", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		side := broker.Side(strings.ToUpper(r.URL.Query().Get("side")))
		if side != broker.Buy && side != broker.Sell {
			http.Error(w, "side must be BUY or SELL", http.StatusBadRequest)
			return
		}
		control <- controlRequest{kind: "open", side: side}
		fmt.Fprintln(w, "queued")
	})

	mux.HandleFunc("/control/close-all", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		control <- controlRequest{kind: "close-all"}
		fmt.Fprintln(w, "queued")
	})

	log.Info("control endpoint listening", zap.String("addr", listen))
	if err := http.ListenAndServe(listen, mux); err != nil {
		log.Error("control endpoint failed", zap.Error(err))
	}
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func buildJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "csv":
		return journal.NewCSV(jc.TradesFile, jc.EquityFile)
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	default:
		return journal.Nop{}, nil
	}
}

// buildSim seeds the in-memory venue with the configured balance and quote.
func buildSim(cfg *config.Config) *sim.Engine {
	venue := sim.NewEngine(broker.Account{
		Balance: cfg.Simulation.Balance,
		Equity:  cfg.Simulation.Balance,
	})
	venue.SetQuote(broker.Quote{
		Symbol:       cfg.Trading.Symbol,
		Bid:          cfg.Simulation.InitialBid,
		Ask:          cfg.Simulation.InitialAsk,
		Point:        0.0001,
		Digits:       5,
		ContractSize: 100000,
		VolumeMin:    0.01,
		VolumeMax:    100,
		VolumeStep:   0.01,
		Time:         time.Now(),
	})
	return venue
}

// applyEnvOverrides lets .env or the process environment override the
// deploy-varying fields without editing the config file.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("BOT_SYMBOL"); v != "" {
		cfg.Trading.Symbol = v
	}
	if v := os.Getenv("BOT_MAGIC"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Trading.Magic = n
		}
	}
	if v := os.Getenv("BOT_LISTEN"); v != "" {
		cfg.Telemetry.Listen = v
	}
	if v := os.Getenv("BOT_JOURNAL_DB"); v != "" {
		cfg.Journal.DBPath = v
	}
}

func printFinal(eng *engine.Engine, venue *sim.Engine) {
	s := eng.Summary()
	d := eng.DailyStats()

	fmt.Println()
	fmt.Println("=== Session Summary ===")
	fmt.Printf("  Open positions: %d (P/L $%.2f)\n", s.OpenCount, s.TotalProfit)
	fmt.Printf("  Closed today:   %d trades, win rate %.1f%%\n", d.TotalTrades, d.WinRate*100)
	fmt.Printf("  Realized today: $%.2f\n", d.TotalProfit)

	closed := venue.ClosedTrades()
	if len(closed) > 0 {
		fmt.Println()
		fmt.Println("  Closed trades:")
		for _, t := range closed {
			fmt.Printf("    #%d %s %.2f @ %.5f  $%+.2f (%s)\n",
				t.Position.Ticket, t.Position.Side, t.Position.Volume,
				t.Position.OpenPrice, t.Profit, t.Reason)
		}
	}
}
