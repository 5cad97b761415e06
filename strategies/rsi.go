package strategies

import (
	"fmt"

	"github.com/glockyhere/mt5bot/indicators"
	"github.com/glockyhere/mt5bot/market"
)

// RSI signals when the index crosses back out of its extreme zones: up
// through oversold means buy, down through overbought means sell.
type RSI struct {
	Period     int
	Oversold   float64
	Overbought float64
}

func NewRSI(p Params) *RSI {
	return &RSI{
		Period:     int(p.Get("rsi_period", 14)),
		Oversold:   p.Get("oversold", 30),
		Overbought: p.Get("overbought", 70),
	}
}

func (s *RSI) Name() string { return fmt.Sprintf("RSI(%d)", s.Period) }

func (s *RSI) OnBar(candles market.Candles) Signal {
	if len(candles) < s.Period+2 {
		return Hold
	}

	rsi := indicators.RSI(candles.Closes(), s.Period)
	cur, prev := rsi[len(rsi)-1], rsi[len(rsi)-2]
	if anyNaN(cur, prev) {
		return Hold
	}

	switch {
	case prev <= s.Oversold && cur > s.Oversold:
		return Buy
	case prev >= s.Overbought && cur < s.Overbought:
		return Sell
	default:
		return Hold
	}
}
