package strategies

import (
	"fmt"

	"github.com/glockyhere/mt5bot/indicators"
	"github.com/glockyhere/mt5bot/market"
)

// Bollinger signals mean-reversion bounces: a close back above the lower
// band after touching it is a buy, the mirror move at the upper band a sell.
type Bollinger struct {
	Period int
	StdDev float64
}

func NewBollinger(p Params) *Bollinger {
	return &Bollinger{
		Period: int(p.Get("period", 20)),
		StdDev: p.Get("std_dev", 2),
	}
}

func (s *Bollinger) Name() string { return fmt.Sprintf("Bollinger(%d,%.1f)", s.Period, s.StdDev) }

func (s *Bollinger) OnBar(candles market.Candles) Signal {
	if len(candles) < s.Period+1 {
		return Hold
	}

	closes := candles.Closes()
	_, upper, lower := indicators.Bollinger(closes, s.Period, s.StdDev)

	n := len(closes)
	cur, prev := n-1, n-2
	if anyNaN(upper[cur], lower[cur], upper[prev], lower[prev]) {
		return Hold
	}

	switch {
	case closes[prev] <= lower[prev] && closes[cur] > lower[cur]:
		return Buy
	case closes[prev] >= upper[prev] && closes[cur] < upper[cur]:
		return Sell
	default:
		return Hold
	}
}
