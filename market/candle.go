package market

import (
	"context"
	"time"
)

// Candle represents one closed OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Candles is a chronologically ascending series of closed bars.
type Candles []Candle

// Closes returns the close prices of the series, oldest first.
func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

// Last returns the most recent candle. ok is false for an empty series.
func (cs Candles) Last() (Candle, bool) {
	if len(cs) == 0 {
		return Candle{}, false
	}
	return cs[len(cs)-1], true
}

// CandleSource retrieves historical bars for a symbol. Timeframe uses the
// terminal's notation ("M1", "M15", "H1", ...).
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, timeframe string, count int) (Candles, error)
}
