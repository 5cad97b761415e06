// Package journal persists the engine's realized trades and periodic account
// snapshots. The engine records a trade once, at the tick a position is first
// observed closed.
package journal

import (
	"time"

	"github.com/glockyhere/mt5bot/broker"
)

// TradeRecord is one realized close as the engine observed it.
type TradeRecord struct {
	RecordID  string // engine-assigned, unique per record
	Session   string // engine session the close was observed in
	Ticket    int64
	Symbol    string
	Side      broker.Side
	Volume    float64
	OpenPrice float64
	Profit    float64
	Hedged    bool
	Comment   string
	ClosedAt  time.Time
}

// EquitySnapshot is a per-tick account reading.
type EquitySnapshot struct {
	Session       string
	Time          time.Time
	Balance       float64
	Equity        float64
	MarginLevel   float64
	OpenPositions int
	DayProfit     float64
}

// Journal is the persistence capability. Implementations: CSV, SQLite, Nop.
type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop discards everything. Useful for tests and dry runs.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }
