// Package strategies contains the indicator-driven signal sources. A
// strategy inspects closed bars and emits one directional decision per
// evaluation; acting on it is the engine's job.
package strategies

import (
	"fmt"
	"strings"

	"github.com/glockyhere/mt5bot/market"
)

// Signal is a directional decision for the executor.
type Signal string

const (
	Buy   Signal = "BUY"
	Sell  Signal = "SELL"
	Hold  Signal = "HOLD"
	Close Signal = "CLOSE"
)

// Strategy evaluates a bar series and emits a signal. OnBar is called once
// per newly closed bar with the full lookback window, oldest first.
type Strategy interface {
	Name() string
	OnBar(candles market.Candles) Signal
}

// Params is the free-form parameter bag strategies are configured from.
type Params map[string]float64

// Get returns the parameter or its default.
func (p Params) Get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// ByName constructs a strategy from its configuration name.
func ByName(name string, params Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "moving_average_crossover", "ma-cross":
		return NewMACrossover(params), nil
	case "rsi":
		return NewRSI(params), nil
	case "bollinger_bands", "bollinger":
		return NewBollinger(params), nil
	case "macd":
		return NewMACDStrategy(params), nil
	case "none", "noop":
		return noop{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

type noop struct{}

func (noop) Name() string                { return "Noop" }
func (noop) OnBar(market.Candles) Signal { return Hold }
