package risk

import "time"

type closedTrade struct {
	at     time.Time
	profit float64
}

// DayCounter accumulates realized profit attributed to this engine since the
// last local-calendar rollover. It is owned by the Guard and mutated only by
// realized closes; the reset is lazy, happening on the first access after the
// wall-clock date advances, and fires at most once per day regardless of how
// long the process was idle.
type DayCounter struct {
	trades    []closedTrade
	realized  float64
	lastReset time.Time // date component only
	now       func() time.Time
}

// NewDayCounter returns a counter anchored at now's current date. A nil now
// defaults to time.Now.
func NewDayCounter(now func() time.Time) *DayCounter {
	if now == nil {
		now = time.Now
	}
	return &DayCounter{
		lastReset: dateOf(now()),
		now:       now,
	}
}

// Rollover resets the counter if the calendar date has advanced since the
// last reset. It reports whether a reset happened.
func (c *DayCounter) Rollover() bool {
	today := dateOf(c.now())
	if !today.After(c.lastReset) {
		return false
	}
	c.trades = nil
	c.realized = 0
	c.lastReset = today
	return true
}

// Add folds one realized close into the day's total.
func (c *DayCounter) Add(profit float64) {
	c.Rollover()
	c.realized += profit
	c.trades = append(c.trades, closedTrade{at: c.now(), profit: profit})
}

// Value returns the realized profit accumulated today.
func (c *DayCounter) Value() float64 {
	c.Rollover()
	return c.realized
}

// DailyStats summarizes the current day's closed trades.
type DailyStats struct {
	Date          string  `json:"date"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalProfit   float64 `json:"total_profit"`
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
}

// Stats computes the day's statistics.
func (c *DayCounter) Stats() DailyStats {
	c.Rollover()

	s := DailyStats{
		Date:        c.lastReset.Format("2006-01-02"),
		TotalTrades: len(c.trades),
		TotalProfit: c.realized,
	}

	var winSum, lossSum float64
	for _, t := range c.trades {
		switch {
		case t.profit > 0:
			s.WinningTrades++
			winSum += t.profit
		case t.profit < 0:
			s.LosingTrades++
			lossSum += t.profit
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	}
	if s.WinningTrades > 0 {
		s.AverageWin = winSum / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = lossSum / float64(s.LosingTrades)
	}
	return s
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
