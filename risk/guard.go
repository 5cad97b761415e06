package risk

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/glockyhere/mt5bot/broker"
)

// Limits is the immutable exposure configuration.
type Limits struct {
	MaxPositions     int     // total concurrent positions
	MaxSameDirection int     // per-direction cap; 0 disables the check
	MaxRiskPerTrade  float64 // fraction of equity risked per trade
	MaxDailyLoss     float64 // fraction of equity; daily circuit breaker
	MinMarginLevel   float64 // percent; reported level of 0 passes
}

// DefaultLimits mirrors the stock configuration.
func DefaultLimits() Limits {
	return Limits{
		MaxPositions:    3,
		MaxRiskPerTrade: 0.02,
		MaxDailyLoss:    0.05,
		MinMarginLevel:  150,
	}
}

// Guard answers "may a new position be opened now" and owns the day's
// realized-loss counter. Business rejections come back as (false, reason);
// only capability failures are errors, and the Guard itself makes no broker
// calls so it never returns one.
type Guard struct {
	limits  Limits
	counter *DayCounter
	log     *zap.Logger
}

// NewGuard builds a Guard. A nil now uses the wall clock; a nil logger is
// replaced with a no-op one.
func NewGuard(limits Limits, now func() time.Time, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{
		limits:  limits,
		counter: NewDayCounter(now),
		log:     log,
	}
}

// Limits returns the configured exposure limits.
func (g *Guard) Limits() Limits { return g.limits }

// CanOpen runs the exposure checks in order, short-circuiting on the first
// failure. side is the direction of the prospective position; the
// per-direction cap is skipped when unset.
func (g *Guard) CanOpen(acct broker.Account, open []broker.Position, side broker.Side) (bool, string) {
	g.counter.Rollover()

	if len(open) >= g.limits.MaxPositions {
		return false, fmt.Sprintf("maximum positions reached (%d)", g.limits.MaxPositions)
	}

	if g.limits.MaxSameDirection > 0 {
		same := 0
		for _, p := range open {
			if p.Side == side {
				same++
			}
		}
		if same >= g.limits.MaxSameDirection {
			return false, fmt.Sprintf("maximum %s positions reached (%d)", side, g.limits.MaxSameDirection)
		}
	}

	if g.counter.Value() <= -(acct.Equity * g.limits.MaxDailyLoss) {
		return false, fmt.Sprintf("daily loss limit reached (%.1f%%)", g.limits.MaxDailyLoss*100)
	}

	if acct.Equity <= 0 {
		return false, "no equity available"
	}

	// A reported margin level of exactly 0 means no open exposure.
	if acct.MarginLevel > 0 && acct.MarginLevel < g.limits.MinMarginLevel {
		return false, fmt.Sprintf("insufficient margin (level %.2f%%)", acct.MarginLevel)
	}

	return true, "OK"
}

// RecordClose folds one realized close into the daily counter.
func (g *Guard) RecordClose(profit float64) {
	g.counter.Add(profit)
	g.log.Debug("daily profit updated",
		zap.Float64("profit", profit),
		zap.Float64("day_total", g.counter.Value()),
	)
}

// DailyProfit returns today's realized total.
func (g *Guard) DailyProfit() float64 { return g.counter.Value() }

// DailyStats returns today's trade statistics.
func (g *Guard) DailyStats() DailyStats { return g.counter.Stats() }
