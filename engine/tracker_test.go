package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glockyhere/mt5bot/broker"
)

func livePosition(ticket int64, profit float64) broker.Position {
	return broker.Position{
		Ticket:    ticket,
		Symbol:    "EURUSD",
		Side:      broker.Buy,
		Volume:    0.1,
		OpenPrice: 1.1000,
		Profit:    profit,
	}
}

func TestReconcileAdoptsUnknownTickets(t *testing.T) {
	t.Parallel()

	tr := newTracker()
	adopted, closed := tr.reconcile([]broker.Position{livePosition(1001, 5)})

	require.Len(t, adopted, 1)
	assert.Empty(t, closed)
	assert.Equal(t, int64(1001), adopted[0].Ticket)
	assert.Equal(t, -1, adopted[0].Level)
	assert.False(t, adopted[0].Hedged)
	assert.Equal(t, StateMonitored, adopted[0].State)
	assert.Equal(t, 1, tr.len())
}

func TestReconcileRefreshesMirror(t *testing.T) {
	t.Parallel()

	tr := newTracker()
	tr.reconcile([]broker.Position{livePosition(1001, 5)})

	rec, ok := tr.get(1001)
	require.True(t, ok)
	rec.Level = 2
	rec.Hedged = true

	adopted, closed := tr.reconcile([]broker.Position{livePosition(1001, 42)})

	assert.Empty(t, adopted)
	assert.Empty(t, closed)

	rec, _ = tr.get(1001)
	assert.InDelta(t, 42, rec.Mirror.Profit, 1e-9)
	// Engine-owned fields survive the refresh.
	assert.Equal(t, 2, rec.Level)
	assert.True(t, rec.Hedged)
}

func TestReconcilePrunesClosedTickets(t *testing.T) {
	t.Parallel()

	tr := newTracker()
	tr.reconcile([]broker.Position{livePosition(1001, 5), livePosition(1002, -3)})

	_, closed := tr.reconcile([]broker.Position{livePosition(1002, -4)})

	require.Len(t, closed, 1)
	assert.Equal(t, int64(1001), closed[0].Ticket)
	assert.Equal(t, 1, tr.len())

	// The closed record carries the last mirrored snapshot for accounting.
	assert.InDelta(t, 5, closed[0].Mirror.Profit, 1e-9)
}

func TestReconcileTicketReuseStartsFresh(t *testing.T) {
	t.Parallel()

	tr := newTracker()
	tr.reconcile([]broker.Position{livePosition(1001, -25)})
	rec, _ := tr.get(1001)
	rec.Hedged = true
	rec.Level = 3

	// Ticket leaves the snapshot, then a venue reuses the number.
	tr.reconcile(nil)
	adopted, _ := tr.reconcile([]broker.Position{livePosition(1001, 0)})

	require.Len(t, adopted, 1)
	assert.False(t, adopted[0].Hedged)
	assert.Equal(t, -1, adopted[0].Level)
}

func TestReconcileEmptyBothWays(t *testing.T) {
	t.Parallel()

	tr := newTracker()
	adopted, closed := tr.reconcile(nil)
	assert.Empty(t, adopted)
	assert.Empty(t, closed)
	assert.Zero(t, tr.len())
}
