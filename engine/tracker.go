package engine

import (
	"github.com/glockyhere/mt5bot/broker"
)

// State is the lifecycle of a tracked position. CLOSED is terminal and
// implicit: the record is discarded the tick its ticket leaves the live
// snapshot.
type State int

const (
	StateAdopted State = iota
	StateMonitored
)

// Record is the engine-local tracking state for one open position. The
// venue owns price and profit; the record owns only the derived fields.
type Record struct {
	Ticket int64
	State  State

	// Level is the highest confirmed trailing rung, -1 before any trailing
	// has been applied. It only ever advances after the broker confirms a
	// stop modification.
	Level int

	// Hedged marks that the loss trigger already fired for this ticket.
	Hedged bool

	// Mirror is the last live snapshot of the position, kept so a close can
	// be journaled after the venue stops reporting it.
	Mirror broker.Position
}

// tracker is the ticket-keyed arena of tracking records. Reconciliation is
// its garbage collector: entries are pruned exactly when their ticket
// disappears from the live snapshot, so the arena cannot grow across a
// long-running session.
type tracker struct {
	records map[int64]*Record
}

func newTracker() *tracker {
	return &tracker{records: make(map[int64]*Record)}
}

func (t *tracker) get(ticket int64) (*Record, bool) {
	r, ok := t.records[ticket]
	return r, ok
}

func (t *tracker) len() int { return len(t.records) }

// reconcile aligns the arena with the live snapshot. Unknown live tickets
// are adopted at level -1 and unhedged; this is the restart-recovery path,
// as the engine never assumes it authored every open position. Tracked tickets
// missing from the snapshot are pruned and returned so the caller can fold
// their realized profit exactly once.
func (t *tracker) reconcile(live []broker.Position) (adopted []*Record, closed []Record) {
	seen := make(map[int64]struct{}, len(live))

	for _, p := range live {
		seen[p.Ticket] = struct{}{}

		r, ok := t.records[p.Ticket]
		if !ok {
			r = &Record{
				Ticket: p.Ticket,
				State:  StateAdopted,
				Level:  -1,
			}
			t.records[p.Ticket] = r
			adopted = append(adopted, r)
		}
		r.Mirror = p
		r.State = StateMonitored
	}

	for ticket, r := range t.records {
		if _, ok := seen[ticket]; ok {
			continue
		}
		closed = append(closed, *r)
		delete(t.records, ticket)
	}

	return adopted, closed
}
