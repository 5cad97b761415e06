package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glockyhere/mt5bot/broker"
	"github.com/glockyhere/mt5bot/journal"
	"github.com/glockyhere/mt5bot/risk"
	"github.com/glockyhere/mt5bot/sim"
	"github.com/glockyhere/mt5bot/strategies"
	"github.com/glockyhere/mt5bot/trailing"
)

const testMagic = 777000

type testJournal struct {
	trades []journal.TradeRecord
	equity []journal.EquitySnapshot
}

func (j *testJournal) RecordTrade(rec journal.TradeRecord) error {
	j.trades = append(j.trades, rec)
	return nil
}

func (j *testJournal) RecordEquity(rec journal.EquitySnapshot) error {
	j.equity = append(j.equity, rec)
	return nil
}

func (j *testJournal) Close() error { return nil }

// countingBroker wraps the sim venue to count stop modifications and inject
// one-shot modify failures.
type countingBroker struct {
	broker.Broker
	modifies       int
	failNextModify error
}

func (b *countingBroker) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	if b.failNextModify != nil {
		err := b.failNextModify
		b.failNextModify = nil
		return err
	}
	if err := b.Broker.ModifyPosition(ctx, ticket, stopLoss, takeProfit); err != nil {
		return err
	}
	b.modifies++
	return nil
}

func newTestVenue(t *testing.T) *sim.Engine {
	t.Helper()
	venue := sim.NewEngine(broker.Account{Balance: 10000})
	venue.SetQuote(broker.Quote{
		Symbol:       "EURUSD",
		Bid:          1.1000,
		Ask:          1.1002,
		Point:        0.0001,
		Digits:       5,
		ContractSize: 100000,
		VolumeMin:    0.01,
		VolumeMax:    100,
		VolumeStep:   0.01,
		Time:         time.Now(),
	})
	return venue
}

func stepPolicy() trailing.Policy {
	return trailing.Policy{Mode: trailing.ModeStep, StepSize: 20, FirstLock: 5}
}

func newTestEngine(t *testing.T, b broker.Broker, cfg Config, policy trailing.Policy) (*Engine, *testJournal) {
	t.Helper()
	if cfg.Symbol == "" {
		cfg.Symbol = "EURUSD"
	}
	if cfg.Magic == 0 {
		cfg.Magic = testMagic
	}
	j := &testJournal{}
	guard := risk.NewGuard(risk.Limits{
		MaxPositions:    3,
		MaxRiskPerTrade: 0.02,
		MaxDailyLoss:    0.05,
		MinMarginLevel:  150,
	}, nil, nil)

	eng, err := New(cfg, b, guard, policy, j, nil, nil, nil)
	require.NoError(t, err)
	return eng, j
}

func onlyPosition(t *testing.T, venue *sim.Engine) broker.Position {
	t.Helper()
	live, err := venue.GetPositions(context.Background(), "EURUSD", testMagic)
	require.NoError(t, err)
	require.Len(t, live, 1)
	return live[0]
}

func TestTickEntryFromSignal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	eng, j := newTestEngine(t, venue, Config{LotSize: 0.1}, stepPolicy())

	eng.SubmitSignal(strategies.Buy)
	require.NoError(t, eng.Tick(ctx))

	pos := onlyPosition(t, venue)
	assert.Equal(t, broker.Buy, pos.Side)
	assert.InDelta(t, 0.1, pos.Volume, 1e-9)
	assert.InDelta(t, 1.1002, pos.OpenPrice, 1e-9) // filled at the ask
	assert.Zero(t, pos.StopLoss)

	s := eng.Summary()
	assert.Equal(t, 1, s.OpenCount)
	assert.NotEmpty(t, j.equity)
}

func TestSignalConsumedOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	eng, _ := newTestEngine(t, venue, Config{LotSize: 0.1}, stepPolicy())

	eng.SubmitSignal(strategies.Buy)
	require.NoError(t, eng.Tick(ctx))
	require.NoError(t, eng.Tick(ctx))

	live, err := venue.GetPositions(ctx, "EURUSD", testMagic)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestDuplicateDirectionSignalIgnored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	eng, _ := newTestEngine(t, venue, Config{LotSize: 0.1}, stepPolicy())

	eng.SubmitSignal(strategies.Buy)
	require.NoError(t, eng.Tick(ctx))
	eng.SubmitSignal(strategies.Buy)
	require.NoError(t, eng.Tick(ctx))

	live, err := venue.GetPositions(ctx, "EURUSD", testMagic)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestStepTrailingSingleModify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	counting := &countingBroker{Broker: venue}
	eng, _ := newTestEngine(t, counting, Config{LotSize: 0.1}, stepPolicy())

	eng.SubmitSignal(strategies.Buy)
	require.NoError(t, eng.Tick(ctx))

	// $23 unrealized: inside the first $20 step, locking the first $5.
	venue.MovePrice("EURUSD", 0.0025)
	require.NoError(t, eng.Tick(ctx))

	pos := onlyPosition(t, venue)
	assert.InDelta(t, 1.1007, pos.StopLoss, 1e-9)
	assert.Equal(t, 1, counting.modifies)

	// Same step on the next tick: no duplicate modify.
	require.NoError(t, eng.Tick(ctx))
	assert.Equal(t, 1, counting.modifies)
}

func TestLadderTrailingAdvancesRungs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	counting := &countingBroker{Broker: venue}
	policy := trailing.Policy{Mode: trailing.ModeLadder, Ladder: trailing.DefaultLadder()}
	eng, _ := newTestEngine(t, counting, Config{LotSize: 0.1}, policy)

	eng.SubmitSignal(strategies.Buy)
	require.NoError(t, eng.Tick(ctx))

	// $45 unrealized: the $40 rung locks $20.
	venue.MovePrice("EURUSD", 0.0047)
	require.NoError(t, eng.Tick(ctx))

	pos := onlyPosition(t, venue)
	assert.InDelta(t, 1.1022, pos.StopLoss, 1e-9)
	assert.Equal(t, 1, counting.modifies)

	// Retreat below the rung trigger: the stop must not move back.
	venue.MovePrice("EURUSD", -0.0020)
	require.NoError(t, eng.Tick(ctx))
	pos = onlyPosition(t, venue)
	assert.InDelta(t, 1.1022, pos.StopLoss, 1e-9)
	assert.Equal(t, 1, counting.modifies)

	// $85 unrealized: the $80 rung locks $60.
	venue.MovePrice("EURUSD", 0.0060)
	require.NoError(t, eng.Tick(ctx))
	pos = onlyPosition(t, venue)
	assert.InDelta(t, 1.1062, pos.StopLoss, 1e-9)
	assert.Equal(t, 2, counting.modifies)
}

func TestHedgeFiresOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	cfg := Config{
		LotSize: 0.1,
		Hedge:   HedgeConfig{Enabled: true, LossTrigger: 20, MaxLegs: 2},
	}
	eng, _ := newTestEngine(t, venue, cfg, trailing.Policy{Mode: trailing.ModeNone})

	eng.SubmitSignal(strategies.Buy)
	require.NoError(t, eng.Tick(ctx))

	// $27 under water: past the $20 trigger.
	venue.MovePrice("EURUSD", -0.0025)
	require.NoError(t, eng.Tick(ctx))

	live, err := venue.GetPositions(ctx, "EURUSD", testMagic)
	require.NoError(t, err)
	require.Len(t, live, 3)

	sells := 0
	for _, p := range live {
		if p.Side == broker.Sell {
			sells++
			assert.Zero(t, p.StopLoss)
			assert.Zero(t, p.TakeProfit)
		}
	}
	assert.Equal(t, 2, sells)

	// Still past the trigger on later ticks: no further legs.
	require.NoError(t, eng.Tick(ctx))
	require.NoError(t, eng.Tick(ctx))
	live, err = venue.GetPositions(ctx, "EURUSD", testMagic)
	require.NoError(t, err)
	assert.Len(t, live, 3)

	assert.Equal(t, 1, eng.Summary().HedgedCount)
}

func TestHedgeRespectsPositionCap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	cfg := Config{
		LotSize: 0.1,
		Hedge:   HedgeConfig{Enabled: true, LossTrigger: 20, MaxLegs: 2},
	}
	eng, _ := newTestEngine(t, venue, cfg, trailing.Policy{Mode: trailing.ModeNone})

	// Two positions already: only one slot is left for hedge legs.
	eng.SubmitSignal(strategies.Buy)
	require.NoError(t, eng.Tick(ctx))
	eng.SubmitSignal(strategies.Sell)
	require.NoError(t, eng.Tick(ctx))

	venue.MovePrice("EURUSD", -0.0025)
	require.NoError(t, eng.Tick(ctx))

	live, err := venue.GetPositions(ctx, "EURUSD", testMagic)
	require.NoError(t, err)
	assert.Len(t, live, 3)
}

func TestHedgeCountsLegsWithinTick(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)

	// Two positions in the same direction, both about to cross the trigger.
	for i := 0; i < 2; i++ {
		_, err := venue.SendOrder(ctx, broker.OrderRequest{
			Symbol: "EURUSD",
			Side:   broker.Buy,
			Volume: 0.1,
			Magic:  testMagic,
		})
		require.NoError(t, err)
	}

	cfg := Config{
		Symbol:  "EURUSD",
		Magic:   testMagic,
		LotSize: 0.1,
		Hedge:   HedgeConfig{Enabled: true, LossTrigger: 20, MaxLegs: 2},
	}
	guard := risk.NewGuard(risk.Limits{
		MaxPositions:    5,
		MaxRiskPerTrade: 0.02,
		MaxDailyLoss:    0.05,
		MinMarginLevel:  150,
	}, nil, nil)
	eng, err := New(cfg, venue, guard, trailing.Policy{Mode: trailing.ModeNone}, nil, nil, nil, nil)
	require.NoError(t, err)

	// Both hedges fire on the same pass. The first takes two slots; the
	// second must see them and open only the one remaining leg.
	venue.MovePrice("EURUSD", -0.0025)
	require.NoError(t, eng.Tick(ctx))

	live, err := venue.GetPositions(ctx, "EURUSD", testMagic)
	require.NoError(t, err)
	require.Len(t, live, 5)

	sells := 0
	for _, p := range live {
		if p.Side == broker.Sell {
			sells++
		}
	}
	assert.Equal(t, 3, sells)
}

func TestCloseFoldsProfitOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	eng, j := newTestEngine(t, venue, Config{LotSize: 0.1}, stepPolicy())

	eng.SubmitSignal(strategies.Buy)
	require.NoError(t, eng.Tick(ctx))

	venue.MovePrice("EURUSD", 0.0030)
	require.NoError(t, eng.CloseAll(ctx))

	// The close is realized on the tick that first observes it gone.
	require.NoError(t, eng.Tick(ctx))
	assert.InDelta(t, 28, eng.DailyStats().TotalProfit, 1e-9)
	require.Len(t, j.trades, 1)
	assert.InDelta(t, 28, j.trades[0].Profit, 1e-9)
	assert.Equal(t, eng.Session(), j.trades[0].Session)
	assert.NotEmpty(t, j.trades[0].RecordID)

	// Later ticks must not double-count it.
	require.NoError(t, eng.Tick(ctx))
	assert.InDelta(t, 28, eng.DailyStats().TotalProfit, 1e-9)
	assert.Len(t, j.trades, 1)
}

func TestCloseSignal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	eng, _ := newTestEngine(t, venue, Config{LotSize: 0.1}, stepPolicy())

	eng.SubmitSignal(strategies.Buy)
	require.NoError(t, eng.Tick(ctx))

	eng.SubmitSignal(strategies.Close)
	require.NoError(t, eng.Tick(ctx))

	live, err := venue.GetPositions(ctx, "EURUSD", testMagic)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestModifyNotFoundTriggersReconcile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	counting := &countingBroker{Broker: venue}
	eng, _ := newTestEngine(t, counting, Config{LotSize: 0.1}, stepPolicy())

	eng.SubmitSignal(strategies.Buy)
	require.NoError(t, eng.Tick(ctx))

	venue.MovePrice("EURUSD", 0.0025)
	counting.failNextModify = broker.ErrPositionNotFound

	// The stale-ticket error is absorbed, not surfaced.
	require.NoError(t, eng.Tick(ctx))
	assert.Zero(t, counting.modifies)

	// The retry on the next tick goes through.
	require.NoError(t, eng.Tick(ctx))
	assert.Equal(t, 1, counting.modifies)
	assert.InDelta(t, 1.1007, onlyPosition(t, venue).StopLoss, 1e-9)
}

func TestOfflineTickAborts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	eng, _ := newTestEngine(t, venue, Config{LotSize: 0.1}, stepPolicy())

	venue.SetOffline(true)
	err := eng.Tick(ctx)
	assert.ErrorIs(t, err, broker.ErrNotConnected)

	// Connectivity back: the next tick proceeds normally.
	venue.SetOffline(false)
	assert.NoError(t, eng.Tick(ctx))
}

func TestAdoptsExistingPositionsOnStart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)

	// A position opened before this engine existed, same symbol and tag.
	_, err := venue.SendOrder(ctx, broker.OrderRequest{
		Symbol: "EURUSD",
		Side:   broker.Buy,
		Volume: 0.1,
		Magic:  testMagic,
	})
	require.NoError(t, err)

	eng, _ := newTestEngine(t, venue, Config{LotSize: 0.1}, stepPolicy())
	require.NoError(t, eng.Tick(ctx))
	assert.Equal(t, 1, eng.Summary().OpenCount)

	// The adopted position trails like any other.
	venue.MovePrice("EURUSD", 0.0025)
	require.NoError(t, eng.Tick(ctx))
	assert.InDelta(t, 1.1007, onlyPosition(t, venue).StopLoss, 1e-9)
}

func TestGuardRejectionSkipsEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	j := &testJournal{}
	guard := risk.NewGuard(risk.Limits{
		MaxPositions:    1,
		MaxRiskPerTrade: 0.02,
		MaxDailyLoss:    0.05,
	}, nil, nil)
	eng, err := New(Config{Symbol: "EURUSD", Magic: testMagic, LotSize: 0.1},
		venue, guard, stepPolicy(), j, nil, nil, nil)
	require.NoError(t, err)

	eng.SubmitSignal(strategies.Buy)
	require.NoError(t, eng.Tick(ctx))

	// Rejections are silent skips, never tick errors.
	eng.SubmitSignal(strategies.Sell)
	require.NoError(t, eng.Tick(ctx))

	live, err := venue.GetPositions(ctx, "EURUSD", testMagic)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestRiskSizedEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	eng, _ := newTestEngine(t, venue, Config{StopPips: 20}, stepPolicy())

	eng.SubmitSignal(strategies.Buy)
	require.NoError(t, eng.Tick(ctx))

	// $200 at risk over 200 points: 0.1 lots, stop 20 pips under the fill.
	pos := onlyPosition(t, venue)
	assert.InDelta(t, 0.1, pos.Volume, 1e-9)
	assert.InDelta(t, 1.0802, pos.StopLoss, 1e-9)
}

func TestOpenManualInitialStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	cfg := Config{LotSize: 0.1, InitialStopDollars: -35}
	eng, _ := newTestEngine(t, venue, cfg, trailing.Policy{Mode: trailing.ModeNone})

	res, err := eng.OpenManual(ctx, broker.Buy)
	require.NoError(t, err)
	assert.NotZero(t, res.Ticket)

	// $35 of loss on 0.1 lots is 0.0035 price units below the fill.
	pos := onlyPosition(t, venue)
	assert.InDelta(t, 1.0967, pos.StopLoss, 1e-9)
}

func TestTakeProfitAttached(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	eng, _ := newTestEngine(t, venue, Config{LotSize: 0.1, TakeProfitPips: 40}, stepPolicy())

	eng.SubmitSignal(strategies.Sell)
	require.NoError(t, eng.Tick(ctx))

	pos := onlyPosition(t, venue)
	assert.Equal(t, broker.Sell, pos.Side)
	assert.InDelta(t, 1.0600, pos.TakeProfit, 1e-9) // 40 pips below the bid
}

func TestStatusReadsDuringTicks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	venue := newTestVenue(t)
	eng, _ := newTestEngine(t, venue, Config{LotSize: 0.1}, stepPolicy())

	// Status readers poll from another goroutine while the tick loop opens
	// and realizes closes. Both accessors must hand out snapshots.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			_ = eng.Summary()
			_ = eng.DailyStats()
		}
	}()

	for i := 0; i < 20; i++ {
		eng.SubmitSignal(strategies.Buy)
		require.NoError(t, eng.Tick(ctx))
		venue.MovePrice("EURUSD", 0.0005)
		require.NoError(t, eng.CloseAll(ctx))
		require.NoError(t, eng.Tick(ctx))
		venue.MovePrice("EURUSD", -0.0005)
	}
	<-done

	// Each cycle buys at the ask and closes 3 points higher on the bid.
	stats := eng.DailyStats()
	assert.Equal(t, 20, stats.TotalTrades)
	assert.InDelta(t, 60, stats.TotalProfit, 1e-9)
}
