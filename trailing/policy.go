// Package trailing implements the stop-loss policies the engine drives. One
// tagged Policy value covers every variant; the engine selects a mode at
// configuration time and never mixes modes for one position.
package trailing

import (
	"fmt"
	"math"

	"github.com/glockyhere/mt5bot/broker"
)

// Mode selects the trailing variant.
type Mode string

const (
	// ModeNone leaves stops alone entirely.
	ModeNone Mode = "none"

	// ModeFixed sets a pip-distance stop once at order placement and never
	// moves it afterwards.
	ModeFixed Mode = "fixed"

	// ModeLadder walks an ordered (trigger, lock) dollar ladder, advancing
	// the position's rung index as profit crosses triggers.
	ModeLadder Mode = "ladder"

	// ModeStep locks uniform dollar increments: the first crossed step
	// locks FirstLock, every later one (steps-1)*StepSize.
	ModeStep Mode = "step"

	// ModeBreakeven is the hedge variant's trail: breakeven at the first
	// TrailStep, then one TrailStep of protection per additional step.
	ModeBreakeven Mode = "breakeven"
)

// Policy is the tagged-variant trailing configuration. Only the fields of
// the selected Mode are consulted.
type Policy struct {
	Mode Mode

	// ModeFixed
	StopPips float64

	// ModeLadder
	Ladder Ladder

	// ModeStep
	StepSize  float64
	FirstLock float64

	// ModeBreakeven
	Breakeven float64
	TrailStep float64
}

// Validate rejects configurations Evaluate cannot act on.
func (p Policy) Validate() error {
	switch p.Mode {
	case ModeNone:
		return nil
	case ModeFixed:
		if p.StopPips <= 0 {
			return fmt.Errorf("trailing: fixed mode needs positive stop_pips")
		}
	case ModeLadder:
		if len(p.Ladder) == 0 {
			return fmt.Errorf("trailing: ladder mode needs at least one rung")
		}
		return p.Ladder.Validate()
	case ModeStep:
		if p.StepSize <= 0 {
			return fmt.Errorf("trailing: step mode needs positive step_size")
		}
		if p.FirstLock <= 0 || p.FirstLock >= p.StepSize {
			return fmt.Errorf("trailing: first_lock must be inside (0, step_size)")
		}
	case ModeBreakeven:
		if p.TrailStep <= 0 {
			return fmt.Errorf("trailing: breakeven mode needs positive trail_step")
		}
	default:
		return fmt.Errorf("trailing: unknown mode %q", p.Mode)
	}
	return nil
}

// Decision is the outcome of one evaluation. Update false means "no change";
// Level carries the rung index the caller should record once the broker
// confirms the modification (ladder mode only, -1 otherwise).
type Decision struct {
	Update  bool
	NewStop float64
	Level   int
}

// Evaluate inspects one tracked open position and decides whether its stop
// should move. level is the position's recorded ladder rung (-1 = none yet).
// The current broker-reported stop acts as a floor: no variant ever proposes
// a stop that protects no more than what is already set, so a restart that
// forgot trailing state can never regress an existing stop.
func (p Policy) Evaluate(pos broker.Position, quote broker.Quote, level int) Decision {
	none := Decision{Level: level}

	switch p.Mode {
	case ModeLadder:
		idx := p.Ladder.HighestIndex(pos.Profit)
		if idx <= level || idx < 0 {
			return none
		}
		stop, ok := StopForLockedProfit(pos, quote, p.Ladder[idx].Lock)
		if !ok || !improves(pos, stop) {
			return none
		}
		return Decision{Update: true, NewStop: stop, Level: idx}

	case ModeStep:
		steps := int(math.Floor(pos.Profit / p.StepSize))
		if steps < 1 {
			return none
		}
		lock := p.FirstLock
		if steps > 1 {
			lock = float64(steps-1) * p.StepSize
		}
		if cur, ok := LockedProfit(pos, quote); ok && lock <= cur {
			return none
		}
		stop, ok := StopForLockedProfit(pos, quote, lock)
		if !ok || !improves(pos, stop) {
			return none
		}
		return Decision{Update: true, NewStop: stop, Level: level}

	case ModeBreakeven:
		if pos.Profit < p.Breakeven {
			return none
		}
		steps := int(math.Floor(pos.Profit / p.TrailStep))
		if steps < 1 {
			return none
		}
		// First step is breakeven: zero dollars of locked profit.
		lock := float64(steps-1) * p.TrailStep
		stop, ok := StopForLockedProfit(pos, quote, lock)
		if !ok || !improves(pos, stop) {
			return none
		}
		return Decision{Update: true, NewStop: stop, Level: level}

	default:
		// ModeNone and ModeFixed never move a stop after entry.
		return none
	}
}

// InitialStop returns the stop to attach at order placement, or 0 when the
// variant opens positions bare.
func (p Policy) InitialStop(side broker.Side, entry float64, quote broker.Quote) float64 {
	if p.Mode != ModeFixed || p.StopPips <= 0 {
		return 0
	}
	dist := p.StopPips * quote.PipSize()
	if side == broker.Buy {
		return entry - dist
	}
	return entry + dist
}

// StopForLockedProfit converts a dollar amount of protected profit into a
// stop price for pos: above entry for longs, below for shorts. The
// conversion is 1/(volume*contractSize) price units per dollar.
func StopForLockedProfit(pos broker.Position, quote broker.Quote, lock float64) (float64, bool) {
	denom := pos.Volume * quote.ContractSize
	if denom <= 0 {
		return 0, false
	}
	dist := lock / denom
	if pos.Side == broker.Buy {
		return pos.OpenPrice + dist, true
	}
	return pos.OpenPrice - dist, true
}

// LockedProfit is the inverse conversion: the dollars of profit the current
// stop protects. ok is false when no stop is set or the volume is unusable.
func LockedProfit(pos broker.Position, quote broker.Quote) (float64, bool) {
	if pos.StopLoss == 0 {
		return 0, false
	}
	denom := pos.Volume * quote.ContractSize
	if denom <= 0 {
		return 0, false
	}
	if pos.Side == broker.Buy {
		return (pos.StopLoss - pos.OpenPrice) * denom, true
	}
	return (pos.OpenPrice - pos.StopLoss) * denom, true
}

// improves applies the shared tie-break: a candidate is taken only when it
// strictly raises the protected level versus the recorded stop. Ties are
// "no change" to avoid redundant modify calls.
func improves(pos broker.Position, candidate float64) bool {
	if pos.StopLoss == 0 {
		return true
	}
	if pos.Side == broker.Buy {
		return candidate > pos.StopLoss
	}
	return candidate < pos.StopLoss
}
