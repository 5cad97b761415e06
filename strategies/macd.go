package strategies

import (
	"fmt"

	"github.com/glockyhere/mt5bot/indicators"
	"github.com/glockyhere/mt5bot/market"
)

// MACDStrategy signals on the MACD line crossing its signal line.
type MACDStrategy struct {
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
}

func NewMACDStrategy(p Params) *MACDStrategy {
	return &MACDStrategy{
		FastPeriod:   int(p.Get("fast_period", 12)),
		SlowPeriod:   int(p.Get("slow_period", 26)),
		SignalPeriod: int(p.Get("signal_period", 9)),
	}
}

func (s *MACDStrategy) Name() string {
	return fmt.Sprintf("MACD(%d,%d,%d)", s.FastPeriod, s.SlowPeriod, s.SignalPeriod)
}

func (s *MACDStrategy) OnBar(candles market.Candles) Signal {
	if len(candles) < s.SlowPeriod+s.SignalPeriod {
		return Hold
	}

	macd, signalLine, _ := indicators.MACD(candles.Closes(), s.FastPeriod, s.SlowPeriod, s.SignalPeriod)

	n := len(macd)
	cur, prev := n-1, n-2
	if anyNaN(macd[cur], signalLine[cur], macd[prev], signalLine[prev]) {
		return Hold
	}

	switch {
	case macd[prev] <= signalLine[prev] && macd[cur] > signalLine[cur]:
		return Buy
	case macd[prev] >= signalLine[prev] && macd[cur] < signalLine[cur]:
		return Sell
	default:
		return Hold
	}
}
