package trailing

import "fmt"

// Rung is one step of a profit ladder: when unrealized profit reaches
// Trigger dollars, the stop moves to protect Lock dollars.
type Rung struct {
	Trigger float64 `yaml:"trigger" json:"trigger"`
	Lock    float64 `yaml:"lock" json:"lock"`
}

// Ladder is an ordered, ascending sequence of rungs. Loaded once; never
// mutated after Validate.
type Ladder []Rung

// DefaultLadder is the stock $20-spaced ladder: $20→$5, $40→$20, $60→$40
// and so on up to $200.
func DefaultLadder() Ladder {
	return Ladder{
		{Trigger: 20, Lock: 5},
		{Trigger: 40, Lock: 20},
		{Trigger: 60, Lock: 40},
		{Trigger: 80, Lock: 60},
		{Trigger: 100, Lock: 80},
		{Trigger: 120, Lock: 100},
		{Trigger: 140, Lock: 120},
		{Trigger: 160, Lock: 140},
		{Trigger: 180, Lock: 160},
		{Trigger: 200, Lock: 180},
	}
}

// Validate checks that both fields ascend strictly and every lock is below
// its trigger.
func (l Ladder) Validate() error {
	for i, r := range l {
		if r.Lock >= r.Trigger {
			return fmt.Errorf("ladder rung %d: lock %.2f must be below trigger %.2f", i, r.Lock, r.Trigger)
		}
		if i == 0 {
			continue
		}
		prev := l[i-1]
		if r.Trigger <= prev.Trigger || r.Lock <= prev.Lock {
			return fmt.Errorf("ladder rung %d: triggers and locks must strictly ascend", i)
		}
	}
	return nil
}

// HighestIndex returns the highest rung index whose trigger is reached by
// profit, or -1 when none is.
func (l Ladder) HighestIndex(profit float64) int {
	idx := -1
	for i, r := range l {
		if profit >= r.Trigger {
			idx = i
		}
	}
	return idx
}
