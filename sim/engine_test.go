package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glockyhere/mt5bot/broker"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(broker.Account{Balance: 10000})
	setQuote(t, e, 1.1000, 1.1002)
	return e
}

func setQuote(t *testing.T, e *Engine, bid, ask float64) {
	t.Helper()
	e.SetQuote(broker.Quote{
		Symbol:       "EURUSD",
		Bid:          bid,
		Ask:          ask,
		Point:        0.0001,
		Digits:       5,
		ContractSize: 100000,
		VolumeMin:    0.01,
		VolumeMax:    100,
		VolumeStep:   0.01,
		Time:         time.Now(),
	})
}

func openBuy(t *testing.T, e *Engine, volume, sl, tp float64) broker.OrderResult {
	t.Helper()
	res, err := e.SendOrder(context.Background(), broker.OrderRequest{
		Symbol:     "EURUSD",
		Side:       broker.Buy,
		Volume:     volume,
		StopLoss:   sl,
		TakeProfit: tp,
		Magic:      42,
	})
	require.NoError(t, err)
	return res
}

func TestSendOrderFillsAtMarket(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEngine(t)
	res := openBuy(t, e, 0.1, 0, 0)

	assert.NotZero(t, res.Ticket)
	assert.InDelta(t, 1.1002, res.Price, 1e-9) // buys fill at the ask

	live, err := e.GetPositions(ctx, "EURUSD", 42)
	require.NoError(t, err)
	require.Len(t, live, 1)
	// Marked against the bid immediately: the spread is a $2 hole.
	assert.InDelta(t, -2, live[0].Profit, 1e-9)
}

func TestGetPositionsFilters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEngine(t)
	openBuy(t, e, 0.1, 0, 0)

	_, err := e.SendOrder(ctx, broker.OrderRequest{
		Symbol: "EURUSD", Side: broker.Sell, Volume: 0.1, Magic: 99,
	})
	require.NoError(t, err)

	mine, err := e.GetPositions(ctx, "EURUSD", 42)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := e.GetPositions(ctx, "EURUSD", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSendOrderRejectsBadVolume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEngine(t)
	_, err := e.SendOrder(ctx, broker.OrderRequest{
		Symbol: "EURUSD", Side: broker.Buy, Volume: 0,
	})
	assert.ErrorIs(t, err, broker.ErrInvalidVolume)

	_, err = e.SendOrder(ctx, broker.OrderRequest{
		Symbol: "EURUSD", Side: broker.Buy, Volume: 500,
	})
	assert.ErrorIs(t, err, broker.ErrInvalidVolume)
}

func TestStopLossAutoCloses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEngine(t)
	openBuy(t, e, 0.1, 1.0950, 0)

	// Bid through the stop: position closes at the stop tick's mark.
	setQuote(t, e, 1.0948, 1.0950)

	live, err := e.GetPositions(ctx, "EURUSD", 42)
	require.NoError(t, err)
	assert.Empty(t, live)

	closed := e.ClosedTrades()
	require.Len(t, closed, 1)
	assert.Equal(t, "stop_loss", closed[0].Reason)
	assert.InDelta(t, -54, closed[0].Profit, 1e-9)

	acct, err := e.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10000-54, acct.Balance, 1e-9)
}

func TestTakeProfitAutoCloses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEngine(t)
	openBuy(t, e, 0.1, 0, 1.1042)

	setQuote(t, e, 1.1045, 1.1047)

	closed := e.ClosedTrades()
	require.Len(t, closed, 1)
	assert.Equal(t, "take_profit", closed[0].Reason)
	assert.InDelta(t, 43, closed[0].Profit, 1e-9)

	acct, err := e.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10043, acct.Balance, 1e-9)
}

func TestModifyPosition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEngine(t)
	res := openBuy(t, e, 0.1, 0, 0)

	require.NoError(t, e.ModifyPosition(ctx, res.Ticket, 1.0990, 1.1100))

	live, err := e.GetPositions(ctx, "EURUSD", 42)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.InDelta(t, 1.0990, live[0].StopLoss, 1e-9)
	assert.InDelta(t, 1.1100, live[0].TakeProfit, 1e-9)

	assert.ErrorIs(t, e.ModifyPosition(ctx, 999999, 1.0990, 0), broker.ErrPositionNotFound)
}

func TestClosePosition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEngine(t)
	res := openBuy(t, e, 0.1, 0, 0)

	e.MovePrice("EURUSD", 0.0010)
	require.NoError(t, e.ClosePosition(ctx, res.Ticket))

	closed := e.ClosedTrades()
	require.Len(t, closed, 1)
	assert.Equal(t, "manual", closed[0].Reason)
	assert.InDelta(t, 8, closed[0].Profit, 1e-9)

	assert.ErrorIs(t, e.ClosePosition(ctx, res.Ticket), broker.ErrPositionNotFound)
}

func TestEquityTracksUnrealized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEngine(t)
	openBuy(t, e, 0.1, 0, 0)

	e.MovePrice("EURUSD", 0.0020)

	acct, err := e.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10000, acct.Balance, 1e-9)
	assert.InDelta(t, 10018, acct.Equity, 1e-9)
	assert.Greater(t, acct.MarginLevel, 0.0)
}

func TestOffline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEngine(t)
	e.SetOffline(true)

	_, err := e.GetAccount(ctx)
	assert.ErrorIs(t, err, broker.ErrNotConnected)
	_, err = e.GetQuote(ctx, "EURUSD")
	assert.ErrorIs(t, err, broker.ErrNotConnected)
	_, err = e.GetPositions(ctx, "EURUSD", 0)
	assert.ErrorIs(t, err, broker.ErrNotConnected)
	_, err = e.SendOrder(ctx, broker.OrderRequest{Symbol: "EURUSD", Side: broker.Buy, Volume: 0.1})
	assert.ErrorIs(t, err, broker.ErrNotConnected)

	e.SetOffline(false)
	_, err = e.GetAccount(ctx)
	assert.NoError(t, err)
}
