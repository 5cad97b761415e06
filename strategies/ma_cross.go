package strategies

import (
	"fmt"
	"math"

	"github.com/glockyhere/mt5bot/indicators"
	"github.com/glockyhere/mt5bot/market"
)

// MACrossover signals on fast/slow SMA crossovers, confirmed by the
// difference running ahead of its own signal-line average.
type MACrossover struct {
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
}

// NewMACrossover builds the strategy from a parameter bag.
func NewMACrossover(p Params) *MACrossover {
	return &MACrossover{
		FastPeriod:   int(p.Get("fast_period", 20)),
		SlowPeriod:   int(p.Get("slow_period", 50)),
		SignalPeriod: int(p.Get("signal_period", 9)),
	}
}

func (s *MACrossover) Name() string {
	return fmt.Sprintf("MACrossover(%d/%d)", s.FastPeriod, s.SlowPeriod)
}

func (s *MACrossover) OnBar(candles market.Candles) Signal {
	if len(candles) < s.SlowPeriod+s.SignalPeriod {
		return Hold
	}

	closes := candles.Closes()
	fast := indicators.SMA(closes, s.FastPeriod)
	slow := indicators.SMA(closes, s.SlowPeriod)

	n := len(closes)
	diff := make([]float64, n)
	for i := range closes {
		diff[i] = fast[i] - slow[i]
	}
	signalLine := indicators.SMA(diff, s.SignalPeriod)

	cur, prev := n-1, n-2
	if anyNaN(fast[cur], slow[cur], fast[prev], slow[prev], signalLine[cur]) {
		return Hold
	}

	crossedUp := fast[prev] <= slow[prev] && fast[cur] > slow[cur]
	crossedDown := fast[prev] >= slow[prev] && fast[cur] < slow[cur]

	switch {
	case crossedUp && diff[cur] > signalLine[cur]:
		return Buy
	case crossedDown && diff[cur] < signalLine[cur]:
		return Sell
	default:
		return Hold
	}
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
