package broker

import (
	"context"
	"time"
)

// Side is the direction of a position or order, in the terminal's own
// vocabulary.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the hedging direction for s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Position is the venue's view of one open trade. The engine treats it as a
// read-mostly mirror: prices, profit and stops are authoritative on the venue
// side and refreshed every tick.
type Position struct {
	Ticket     int64
	Symbol     string
	Side       Side
	Volume     float64
	OpenPrice  float64
	StopLoss   float64 // 0 = none
	TakeProfit float64 // 0 = none
	Profit     float64 // unrealized, account currency
	Magic      int64
	Comment    string
	OpenTime   time.Time
}

// Quote is a symbol snapshot: current prices plus the trading constraints
// needed for sizing and stop placement.
type Quote struct {
	Symbol       string
	Bid          float64
	Ask          float64
	Point        float64
	Digits       int
	ContractSize float64
	VolumeMin    float64
	VolumeMax    float64
	VolumeStep   float64
	Time         time.Time
}

// EntryPrice returns the fill side for opening in the given direction.
func (q Quote) EntryPrice(s Side) float64 {
	if s == Buy {
		return q.Ask
	}
	return q.Bid
}

// ClosePrice returns the side a position in direction s marks (and closes) at.
func (q Quote) ClosePrice(s Side) float64 {
	if s == Buy {
		return q.Bid
	}
	return q.Ask
}

// PipSize returns one pip in price units. The terminal reports Point as a
// tenth of a pip on 5- and 3-digit symbols.
func (q Quote) PipSize() float64 {
	point := q.Point
	if point <= 0 {
		point = 0.0001
	}
	if q.Digits == 5 || q.Digits == 3 {
		return point * 10
	}
	return point
}

// Account is the terminal-reported account state.
type Account struct {
	Balance     float64
	Equity      float64
	Margin      float64
	FreeMargin  float64
	MarginLevel float64 // percent; 0 = no open exposure
	Profit      float64
}

// OrderRequest is a market order. StopLoss/TakeProfit of 0 mean "none".
type OrderRequest struct {
	Symbol     string
	Side       Side
	Volume     float64
	StopLoss   float64
	TakeProfit float64
	Magic      int64
	Comment    string
}

// OrderResult reports a filled order.
type OrderResult struct {
	Ticket int64
	Volume float64
	Price  float64
}

// Broker is the terminal capability the engine runs against. All calls are
// synchronous; a slow call delays the next tick rather than corrupting state.
type Broker interface {
	GetAccount(ctx context.Context) (Account, error)
	GetQuote(ctx context.Context, symbol string) (Quote, error)

	// GetPositions returns open positions for symbol carrying the given
	// magic tag. magic 0 means no tag filter.
	GetPositions(ctx context.Context, symbol string, magic int64) ([]Position, error)

	SendOrder(ctx context.Context, req OrderRequest) (OrderResult, error)

	// ModifyPosition replaces the stop-loss and take-profit of an open
	// position. 0 removes the level.
	ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error

	ClosePosition(ctx context.Context, ticket int64) error
}
