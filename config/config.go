// Package config loads and validates the bot's configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glockyhere/mt5bot/risk"
	"github.com/glockyhere/mt5bot/trailing"
)

// Config represents the complete bot configuration.
type Config struct {
	Trading    TradingConfig    `json:"trading" yaml:"trading"`
	Risk       RiskConfig       `json:"risk" yaml:"risk"`
	Trailing   TrailingConfig   `json:"trailing" yaml:"trailing"`
	Hedge      HedgeConfig      `json:"hedge" yaml:"hedge"`
	Strategy   StrategyConfig   `json:"strategy" yaml:"strategy"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Telemetry  TelemetryConfig  `json:"telemetry" yaml:"telemetry"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
}

// TradingConfig contains the instrument and order parameters.
type TradingConfig struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Magic  int64  `json:"magic" yaml:"magic"`

	// LotSize of 0 enables risk-based sizing.
	LotSize float64 `json:"lot_size" yaml:"lot_size"`

	StopPips       float64 `json:"stop_pips,omitempty" yaml:"stop_pips,omitempty"`
	TakeProfitPips float64 `json:"take_profit_pips,omitempty" yaml:"take_profit_pips,omitempty"`

	// InitialStopDollars caps the loss on manually opened positions,
	// expressed as a negative dollar amount.
	InitialStopDollars float64 `json:"initial_stop_dollars,omitempty" yaml:"initial_stop_dollars,omitempty"`

	// TickInterval is the management loop period, e.g. "1s", "500ms".
	TickInterval string `json:"tick_interval" yaml:"tick_interval"`
}

// ParseTickInterval converts the interval string to a time.Duration.
func (t TradingConfig) ParseTickInterval() (time.Duration, error) {
	if t.TickInterval == "" {
		return time.Second, nil
	}
	return time.ParseDuration(t.TickInterval)
}

// RiskConfig contains the exposure limits.
type RiskConfig struct {
	MaxPositions     int     `json:"max_positions" yaml:"max_positions"`
	MaxSameDirection int     `json:"max_same_direction,omitempty" yaml:"max_same_direction,omitempty"`
	MaxRiskPerTrade  float64 `json:"max_risk_per_trade" yaml:"max_risk_per_trade"`
	MaxDailyLoss     float64 `json:"max_daily_loss" yaml:"max_daily_loss"`
	MinMarginLevel   float64 `json:"min_margin_level" yaml:"min_margin_level"`
}

// Limits converts the section to the guard's limit set.
func (r RiskConfig) Limits() risk.Limits {
	return risk.Limits{
		MaxPositions:     r.MaxPositions,
		MaxSameDirection: r.MaxSameDirection,
		MaxRiskPerTrade:  r.MaxRiskPerTrade,
		MaxDailyLoss:     r.MaxDailyLoss,
		MinMarginLevel:   r.MinMarginLevel,
	}
}

// TrailingConfig selects and parameterizes the trailing-stop policy.
type TrailingConfig struct {
	Mode string `json:"mode" yaml:"mode"`

	// Fixed mode.
	StopPips float64 `json:"stop_pips,omitempty" yaml:"stop_pips,omitempty"`

	// Ladder mode. Empty uses the stock ladder.
	Ladder trailing.Ladder `json:"ladder,omitempty" yaml:"ladder,omitempty"`

	// Step mode.
	StepSize  float64 `json:"step_size,omitempty" yaml:"step_size,omitempty"`
	FirstLock float64 `json:"first_lock,omitempty" yaml:"first_lock,omitempty"`

	// Breakeven mode.
	Breakeven float64 `json:"breakeven,omitempty" yaml:"breakeven,omitempty"`
	TrailStep float64 `json:"trail_step,omitempty" yaml:"trail_step,omitempty"`
}

// Policy converts the section to a trailing policy.
func (t TrailingConfig) Policy() trailing.Policy {
	p := trailing.Policy{
		Mode:      trailing.Mode(t.Mode),
		StopPips:  t.StopPips,
		Ladder:    t.Ladder,
		StepSize:  t.StepSize,
		FirstLock: t.FirstLock,
		Breakeven: t.Breakeven,
		TrailStep: t.TrailStep,
	}
	if p.Mode == trailing.ModeLadder && len(p.Ladder) == 0 {
		p.Ladder = trailing.DefaultLadder()
	}
	return p
}

// HedgeConfig contains the loss-triggered hedging parameters.
type HedgeConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	LossTrigger float64 `json:"loss_trigger" yaml:"loss_trigger"`
	MaxLegs     int     `json:"max_legs,omitempty" yaml:"max_legs,omitempty"`
}

// StrategyConfig selects the indicator strategy driving entries.
type StrategyConfig struct {
	Type       string             `json:"type" yaml:"type"`
	Parameters map[string]float64 `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// JournalConfig contains journaling parameters.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// TelemetryConfig controls the metrics endpoint.
type TelemetryConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Listen  string `json:"listen,omitempty" yaml:"listen,omitempty"`
}

// SimulationConfig parameterizes the in-memory broker used by sim runs.
type SimulationConfig struct {
	Balance    float64     `json:"balance" yaml:"balance"`
	InitialBid float64     `json:"initial_bid" yaml:"initial_bid"`
	InitialAsk float64     `json:"initial_ask" yaml:"initial_ask"`
	PriceSteps []PriceStep `json:"price_steps,omitempty" yaml:"price_steps,omitempty"`
}

// PriceStep is one scripted price update in a sim run.
type PriceStep struct {
	Bid   float64 `json:"bid" yaml:"bid"`
	Ask   float64 `json:"ask" yaml:"ask"`
	Delay string  `json:"delay,omitempty" yaml:"delay,omitempty"` // e.g. "1s", "500ms"
}

// ParseDuration converts the delay string to a time.Duration.
func (ps PriceStep) ParseDuration() (time.Duration, error) {
	if ps.Delay == "" {
		return 0, nil
	}
	return time.ParseDuration(ps.Delay)
}

// LoadFromFile loads configuration from a file, YAML or JSON by content.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile writes the configuration out, format chosen by extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Trading.Symbol == "" {
		return fmt.Errorf("trading.symbol is required")
	}
	if c.Trading.LotSize < 0 {
		return fmt.Errorf("trading.lot_size must not be negative")
	}
	if c.Trading.InitialStopDollars > 0 {
		return fmt.Errorf("trading.initial_stop_dollars must be negative or zero")
	}
	if _, err := c.Trading.ParseTickInterval(); err != nil {
		return fmt.Errorf("trading.tick_interval: %w", err)
	}

	if c.Risk.MaxPositions <= 0 {
		return fmt.Errorf("risk.max_positions must be positive")
	}
	if c.Risk.MaxRiskPerTrade <= 0 || c.Risk.MaxRiskPerTrade > 1 {
		return fmt.Errorf("risk.max_risk_per_trade must be between 0 and 1")
	}
	if c.Risk.MaxDailyLoss <= 0 || c.Risk.MaxDailyLoss > 1 {
		return fmt.Errorf("risk.max_daily_loss must be between 0 and 1")
	}
	if c.Risk.MinMarginLevel < 0 {
		return fmt.Errorf("risk.min_margin_level must not be negative")
	}

	if err := c.Trailing.Policy().Validate(); err != nil {
		return fmt.Errorf("trailing: %w", err)
	}

	if c.Hedge.Enabled {
		if c.Hedge.LossTrigger <= 0 {
			return fmt.Errorf("hedge.loss_trigger must be positive")
		}
		if c.Hedge.MaxLegs < 0 {
			return fmt.Errorf("hedge.max_legs must not be negative")
		}
	}

	if c.Strategy.Type == "" {
		return fmt.Errorf("strategy.type is required")
	}

	switch c.Journal.Type {
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "none":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}

	if c.Telemetry.Enabled && c.Telemetry.Listen == "" {
		return fmt.Errorf("telemetry.listen required when telemetry is enabled")
	}

	if c.Simulation.Balance < 0 {
		return fmt.Errorf("simulation.balance must not be negative")
	}
	if c.Simulation.InitialAsk != 0 && c.Simulation.InitialAsk < c.Simulation.InitialBid {
		return fmt.Errorf("simulation initial_ask must not be less than initial_bid")
	}
	for i, ps := range c.Simulation.PriceSteps {
		if _, err := ps.ParseDuration(); err != nil {
			return fmt.Errorf("simulation.price_steps[%d].delay: %w", i, err)
		}
	}

	return nil
}

// Default returns a configuration with working defaults for a sim run.
func Default() *Config {
	return &Config{
		Trading: TradingConfig{
			Symbol:       "EURUSD",
			Magic:        234000,
			LotSize:      0.1,
			TickInterval: "1s",
		},
		Risk: RiskConfig{
			MaxPositions:    3,
			MaxRiskPerTrade: 0.02,
			MaxDailyLoss:    0.05,
			MinMarginLevel:  150,
		},
		Trailing: TrailingConfig{
			Mode: string(trailing.ModeLadder),
		},
		Hedge: HedgeConfig{
			Enabled:     false,
			LossTrigger: 30,
			MaxLegs:     2,
		},
		Strategy: StrategyConfig{
			Type: "moving_average_crossover",
		},
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "./trades.csv",
			EquityFile: "./equity.csv",
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			Listen:  ":9090",
		},
		Simulation: SimulationConfig{
			Balance:    10000,
			InitialBid: 1.0849,
			InitialAsk: 1.0851,
		},
	}
}
