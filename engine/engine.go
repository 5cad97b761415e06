// Package engine is the position risk and trailing-stop core. It is driven
// by an external tick source: each Tick reconciles the tracker against the
// venue's live position list, consumes at most one pending signal, and runs
// the configured trailing policy and hedge trigger over every tracked
// position. Ticks never overlap; the only cross-goroutine surface is the
// published summary snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/glockyhere/mt5bot/broker"
	"github.com/glockyhere/mt5bot/journal"
	"github.com/glockyhere/mt5bot/risk"
	"github.com/glockyhere/mt5bot/strategies"
	"github.com/glockyhere/mt5bot/telemetry"
	"github.com/glockyhere/mt5bot/trailing"
)

// HedgeConfig drives the loss-triggered counter-position logic.
type HedgeConfig struct {
	Enabled     bool
	LossTrigger float64 // dollars of loss that arms the trigger
	MaxLegs     int     // counter positions per trigger, capped by free slots
}

// Config is the engine's immutable setup.
type Config struct {
	Symbol string
	Magic  int64

	// LotSize fixes the order volume; 0 switches to risk-based sizing.
	LotSize float64

	// StopPips / TakeProfitPips are attached to indicator-driven entries.
	// Zero leaves the level unset.
	StopPips       float64
	TakeProfitPips float64

	// InitialStopDollars places a dollar-denominated stop on manually
	// opened positions (e.g. -35 for a $35 loss cap). 0 opens bare.
	InitialStopDollars float64

	Hedge HedgeConfig
}

// Summary is the read-only status snapshot published after every tick.
type Summary struct {
	OpenCount    int               `json:"open_count"`
	TotalProfit  float64           `json:"total_profit"`
	WinningCount int               `json:"winning_count"`
	LosingCount  int               `json:"losing_count"`
	HedgedCount  int               `json:"hedged_count"`
	Positions    []broker.Position `json:"positions"`
}

// Engine orchestrates guard, sizing, trailing and hedging over one broker
// session. One instance per account+magic tag; concurrent instances against
// the same tag are undefined.
type Engine struct {
	cfg     Config
	broker  broker.Broker
	guard   *risk.Guard
	policy  trailing.Policy
	tracker *tracker
	journal journal.Journal
	metrics *telemetry.Metrics
	log     *zap.Logger
	session string
	now     func() time.Time

	mu      sync.Mutex
	pending strategies.Signal
	summary Summary
	daily   risk.DailyStats

	lastStats   risk.DailyStats
	lastStatDay string
}

// New wires up an engine. journal may be nil (discarded), metrics may be nil
// (no-op), log may be nil (no-op), now may be nil (wall clock).
func New(cfg Config, b broker.Broker, guard *risk.Guard, policy trailing.Policy,
	j journal.Journal, m *telemetry.Metrics, log *zap.Logger, now func() time.Time) (*Engine, error) {

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("engine: symbol is required")
	}
	if cfg.Hedge.Enabled && cfg.Hedge.MaxLegs <= 0 {
		cfg.Hedge.MaxLegs = 2
	}
	if j == nil {
		j = journal.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		cfg:     cfg,
		broker:  b,
		guard:   guard,
		policy:  policy,
		tracker: newTracker(),
		journal: j,
		metrics: m,
		log:     log,
		session: ulid.Make().String(),
		now:     now,
	}
	e.daily = e.guard.DailyStats()
	e.lastStatDay = e.daily.Date
	return e, nil
}

// Session returns the engine's run identifier, stamped on journal records.
func (e *Engine) Session() string { return e.session }

// SubmitSignal stores a directional decision for the next tick. A newer
// signal replaces an unconsumed older one.
func (e *Engine) SubmitSignal(sig strategies.Signal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = sig
}

func (e *Engine) takeSignal() (strategies.Signal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sig := e.pending
	e.pending = ""
	return sig, sig != "" && sig != strategies.Hold
}

// Summary returns the last published snapshot. Safe to call between ticks.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

// DailyStats returns the realized statistics published with the last
// snapshot. Like Summary it is safe to call from other goroutines; the
// counter itself is touched only on the tick goroutine.
func (e *Engine) DailyStats() risk.DailyStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.daily
}

// Tick runs one full management pass: reconcile, consume a pending signal,
// then trail and hedge every monitored position. A connectivity failure
// aborts the remaining broker-writing steps; the next tick retries.
func (e *Engine) Tick(ctx context.Context) error {
	e.checkDailySummary()

	live, err := e.reconcile(ctx)
	if err != nil {
		return err
	}

	if sig, ok := e.takeSignal(); ok {
		if err := e.evaluateSignal(ctx, sig, live); err != nil {
			return err
		}
		// The order book may have changed; adopt before managing.
		if live, err = e.reconcile(ctx); err != nil {
			return err
		}
	}

	if err := e.manage(ctx, live); err != nil {
		return err
	}

	e.publish(ctx, live)
	return nil
}

// EvaluateSignal applies one directional decision outside the tick loop
// (chat-command glue calls this directly).
func (e *Engine) EvaluateSignal(ctx context.Context, sig strategies.Signal) error {
	live, err := e.reconcile(ctx)
	if err != nil {
		return err
	}
	return e.evaluateSignal(ctx, sig, live)
}

// ManagePositions runs reconciliation and position management without
// consuming a signal.
func (e *Engine) ManagePositions(ctx context.Context) error {
	live, err := e.reconcile(ctx)
	if err != nil {
		return err
	}
	if err := e.manage(ctx, live); err != nil {
		return err
	}
	e.publish(ctx, live)
	return nil
}

// reconcile fetches the live snapshot and aligns the tracker with it,
// folding realized closes into the daily counter exactly once.
func (e *Engine) reconcile(ctx context.Context) ([]broker.Position, error) {
	live, err := e.broker.GetPositions(ctx, e.cfg.Symbol, e.cfg.Magic)
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}

	adopted, closed := e.tracker.reconcile(live)

	for _, r := range adopted {
		e.log.Info("adopted position",
			zap.Int64("ticket", r.Ticket),
			zap.String("side", string(r.Mirror.Side)),
			zap.Float64("volume", r.Mirror.Volume),
			zap.Float64("open_price", r.Mirror.OpenPrice),
		)
	}

	for _, r := range closed {
		e.guard.RecordClose(r.Mirror.Profit)
		e.metrics.PositionClosed()
		e.log.Info("position closed",
			zap.Int64("ticket", r.Ticket),
			zap.Float64("profit", r.Mirror.Profit),
			zap.Bool("hedged", r.Hedged),
		)

		if err := e.journal.RecordTrade(journal.TradeRecord{
			RecordID:  uuid.NewString(),
			Session:   e.session,
			Ticket:    r.Ticket,
			Symbol:    r.Mirror.Symbol,
			Side:      r.Mirror.Side,
			Volume:    r.Mirror.Volume,
			OpenPrice: r.Mirror.OpenPrice,
			Profit:    r.Mirror.Profit,
			Hedged:    r.Hedged,
			Comment:   r.Mirror.Comment,
			ClosedAt:  e.now(),
		}); err != nil {
			e.log.Warn("journal trade failed", zap.Error(err))
		}
	}

	return live, nil
}

func (e *Engine) evaluateSignal(ctx context.Context, sig strategies.Signal, live []broker.Position) error {
	e.metrics.SignalReceived(string(sig))

	switch sig {
	case strategies.Hold, "":
		return nil
	case strategies.Close:
		return e.closeAll(ctx, live)
	case strategies.Buy, strategies.Sell:
		return e.openFromSignal(ctx, broker.Side(sig), live)
	default:
		e.log.Warn("unknown signal", zap.String("signal", string(sig)))
		return nil
	}
}

func (e *Engine) openFromSignal(ctx context.Context, side broker.Side, live []broker.Position) error {
	// One position per direction for indicator-driven entries.
	for _, p := range live {
		if p.Side == side {
			e.log.Debug("position already open in direction", zap.String("side", string(side)))
			return nil
		}
	}

	acct, err := e.broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	if ok, reason := e.guard.CanOpen(acct, live, side); !ok {
		e.metrics.Rejected(string(side))
		e.log.Warn("entry rejected", zap.String("side", string(side)), zap.String("reason", reason))
		return nil
	}

	quote, err := e.broker.GetQuote(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("get quote: %w", err)
	}

	entry := quote.EntryPrice(side)
	stop, take := e.entryLevels(side, entry, quote)

	volume := e.cfg.LotSize
	if volume <= 0 {
		sized, err := risk.Size(risk.SizeInputs{
			Equity:     acct.Equity,
			RiskPct:    e.guard.Limits().MaxRiskPerTrade,
			EntryPrice: entry,
			StopPrice:  stop,
			Quote:      quote,
		})
		if err != nil {
			// Sizing without a stop distance is undefined; skip the entry.
			e.log.Error("sizing failed", zap.Error(err))
			return nil
		}
		volume = sized.Volume
	}

	if ok, reason := risk.ValidateOrder(quote, side, volume, entry, stop, take); !ok {
		e.log.Error("order validation failed", zap.String("reason", reason))
		return nil
	}

	res, err := e.broker.SendOrder(ctx, broker.OrderRequest{
		Symbol:     e.cfg.Symbol,
		Side:       side,
		Volume:     volume,
		StopLoss:   stop,
		TakeProfit: take,
		Magic:      e.cfg.Magic,
		Comment:    fmt.Sprintf("bot_%d_%s", e.cfg.Magic, side),
	})
	if err != nil {
		if errors.Is(err, broker.ErrNotConnected) {
			return fmt.Errorf("send order: %w", err)
		}
		e.log.Error("order failed", zap.Error(err))
		return nil
	}

	e.metrics.OrderSubmitted(string(side), "entry")
	e.log.Info("order executed",
		zap.Int64("ticket", res.Ticket),
		zap.String("side", string(side)),
		zap.Float64("volume", res.Volume),
		zap.Float64("price", res.Price),
		zap.Float64("stop", stop),
		zap.Float64("take_profit", take),
		zap.Float64("reward_ratio", risk.RewardRatio(entry, stop, take)),
	)
	return nil
}

// entryLevels computes the stop/take attached at order time for
// indicator-driven entries.
func (e *Engine) entryLevels(side broker.Side, entry float64, quote broker.Quote) (stop, take float64) {
	if s := e.policy.InitialStop(side, entry, quote); s != 0 {
		stop = s
	} else if e.cfg.StopPips > 0 {
		dist := e.cfg.StopPips * quote.PipSize()
		if side == broker.Buy {
			stop = entry - dist
		} else {
			stop = entry + dist
		}
	}

	if e.cfg.TakeProfitPips > 0 {
		dist := e.cfg.TakeProfitPips * quote.PipSize()
		if side == broker.Buy {
			take = entry + dist
		} else {
			take = entry - dist
		}
	}
	return stop, take
}

// OpenManual opens a position outside the signal path (chat command or the
// hedge strategy's seed position). The stop, when configured, is placed at
// the dollar level InitialStopDollars relative to entry.
func (e *Engine) OpenManual(ctx context.Context, side broker.Side) (broker.OrderResult, error) {
	live, err := e.reconcile(ctx)
	if err != nil {
		return broker.OrderResult{}, err
	}

	acct, err := e.broker.GetAccount(ctx)
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("get account: %w", err)
	}

	if ok, reason := e.guard.CanOpen(acct, live, side); !ok {
		e.metrics.Rejected(string(side))
		return broker.OrderResult{}, fmt.Errorf("entry rejected: %s", reason)
	}

	quote, err := e.broker.GetQuote(ctx, e.cfg.Symbol)
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("get quote: %w", err)
	}

	volume := e.cfg.LotSize
	if volume <= 0 {
		volume = quote.VolumeMin
	}

	var stop float64
	if e.cfg.InitialStopDollars != 0 && volume > 0 && quote.ContractSize > 0 {
		entry := quote.EntryPrice(side)
		dist := e.cfg.InitialStopDollars / (volume * quote.ContractSize)
		if side == broker.Buy {
			stop = entry + dist
		} else {
			stop = entry - dist
		}
	}

	res, err := e.broker.SendOrder(ctx, broker.OrderRequest{
		Symbol:   e.cfg.Symbol,
		Side:     side,
		Volume:   volume,
		StopLoss: stop,
		Magic:    e.cfg.Magic,
		Comment:  fmt.Sprintf("bot_%d_manual", e.cfg.Magic),
	})
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("send order: %w", err)
	}

	e.metrics.OrderSubmitted(string(side), "entry")
	e.log.Info("manual position opened",
		zap.Int64("ticket", res.Ticket),
		zap.String("side", string(side)),
		zap.Float64("volume", res.Volume),
		zap.Float64("stop", stop),
	)
	return res, nil
}

// CloseAll closes every live position carrying this engine's tag.
func (e *Engine) CloseAll(ctx context.Context) error {
	live, err := e.reconcile(ctx)
	if err != nil {
		return err
	}
	return e.closeAll(ctx, live)
}

func (e *Engine) closeAll(ctx context.Context, live []broker.Position) error {
	var errs []error
	for _, p := range live {
		if err := e.broker.ClosePosition(ctx, p.Ticket); err != nil {
			if errors.Is(err, broker.ErrNotConnected) {
				errs = append(errs, err)
				break
			}
			e.log.Error("close failed", zap.Int64("ticket", p.Ticket), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		e.log.Info("closed position", zap.Int64("ticket", p.Ticket), zap.Float64("profit", p.Profit))
	}
	// Realized profit is folded in on the next reconciliation, when the
	// closes are observed in the live snapshot.
	return errors.Join(errs...)
}

// manage runs the trailing policy and hedge trigger over every monitored
// position: at most one stop modification and one hedge action per position
// per tick.
func (e *Engine) manage(ctx context.Context, live []broker.Position) error {
	if len(live) == 0 {
		return nil
	}

	quote, err := e.broker.GetQuote(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("get quote: %w", err)
	}

	// Legs opened earlier in this pass count against the position cap too.
	hedgeLegs := 0

	for _, p := range live {
		rec, ok := e.tracker.get(p.Ticket)
		if !ok {
			continue
		}

		if e.cfg.Hedge.Enabled && e.shouldHedge(p, rec) {
			n, err := e.executeHedge(ctx, p, rec, len(live)+hedgeLegs)
			hedgeLegs += n
			if err != nil {
				return err
			}
		}

		dec := e.policy.Evaluate(p, quote, rec.Level)
		if !dec.Update {
			continue
		}

		err := e.broker.ModifyPosition(ctx, p.Ticket, dec.NewStop, p.TakeProfit)
		switch {
		case err == nil:
			// Advance the rung only after the venue confirms.
			rec.Level = dec.Level
			rec.Mirror.StopLoss = dec.NewStop
			e.metrics.StopUpdated()
			e.log.Info("trailing stop updated",
				zap.Int64("ticket", p.Ticket),
				zap.Float64("profit", p.Profit),
				zap.Float64("old_stop", p.StopLoss),
				zap.Float64("new_stop", dec.NewStop),
				zap.Int("level", dec.Level),
			)
		case errors.Is(err, broker.ErrPositionNotFound):
			// The venue closed it under us; re-align immediately.
			e.log.Warn("modify hit closed position, reconciling", zap.Int64("ticket", p.Ticket))
			if _, rerr := e.reconcile(ctx); rerr != nil {
				return rerr
			}
		case errors.Is(err, broker.ErrNotConnected):
			return fmt.Errorf("modify position: %w", err)
		default:
			// Level not advanced; the same target is retried next tick.
			e.log.Error("modify failed", zap.Int64("ticket", p.Ticket), zap.Error(err))
		}
	}

	return nil
}

// shouldHedge reports whether the loss trigger fires for p. The hedge mark
// keeps it from firing twice for one ticket.
func (e *Engine) shouldHedge(p broker.Position, rec *Record) bool {
	return p.Profit <= -e.cfg.Hedge.LossTrigger && !rec.Hedged
}

// executeHedge opens up to MaxLegs counter-direction positions at market,
// bare of stop and take-profit: they exist as loss offsets managed later by
// the trailing policy. The mark is set only once at least one leg fills.
// openCount must include legs already filled this pass so stacked triggers
// cannot push the book past MaxPositions. Returns the number of filled legs.
func (e *Engine) executeHedge(ctx context.Context, losing broker.Position, rec *Record, openCount int) (int, error) {
	slots := e.guard.Limits().MaxPositions - openCount
	legs := e.cfg.Hedge.MaxLegs
	if legs > slots {
		legs = slots
	}
	if legs <= 0 {
		e.log.Warn("cannot hedge: no position slots available",
			zap.Int64("ticket", losing.Ticket),
			zap.Int("open", openCount),
		)
		return 0, nil
	}

	opposite := losing.Side.Opposite()
	volume := e.cfg.LotSize
	if volume <= 0 {
		volume = losing.Volume
	}

	e.log.Info("hedge triggered",
		zap.Int64("ticket", losing.Ticket),
		zap.Float64("profit", losing.Profit),
		zap.String("side", string(opposite)),
		zap.Int("legs", legs),
	)

	filled := 0
	for i := 0; i < legs; i++ {
		res, err := e.broker.SendOrder(ctx, broker.OrderRequest{
			Symbol:  e.cfg.Symbol,
			Side:    opposite,
			Volume:  volume,
			Magic:   e.cfg.Magic,
			Comment: fmt.Sprintf("hedge_%d_%d", losing.Ticket, i+1),
		})
		if err != nil {
			if errors.Is(err, broker.ErrNotConnected) {
				if filled > 0 {
					rec.Hedged = true
					e.metrics.HedgeExecuted()
				}
				return filled, fmt.Errorf("hedge order: %w", err)
			}
			e.log.Error("hedge leg failed", zap.Int("leg", i+1), zap.Error(err))
			continue
		}
		filled++
		e.metrics.OrderSubmitted(string(opposite), "hedge")
		e.log.Info("hedge leg opened",
			zap.Int64("ticket", res.Ticket),
			zap.Int64("for", losing.Ticket),
			zap.Int("leg", i+1),
		)
	}

	if filled > 0 {
		rec.Hedged = true
		e.metrics.HedgeExecuted()
	}
	// Zero fills leaves the trigger armed for the next tick.
	return filled, nil
}

// publish refreshes the summary snapshot and telemetry gauges.
func (e *Engine) publish(ctx context.Context, live []broker.Position) {
	s := Summary{OpenCount: len(live), Positions: live}
	for _, p := range live {
		s.TotalProfit += p.Profit
		switch {
		case p.Profit > 0:
			s.WinningCount++
		case p.Profit < 0:
			s.LosingCount++
		}
		if rec, ok := e.tracker.get(p.Ticket); ok && rec.Hedged {
			s.HedgedCount++
		}
	}

	stats := e.guard.DailyStats()

	e.mu.Lock()
	e.summary = s
	e.daily = stats
	e.mu.Unlock()

	e.metrics.SetOpenPositions(len(live))
	e.metrics.SetDayProfit(stats.TotalProfit)

	acct, err := e.broker.GetAccount(ctx)
	if err != nil {
		return
	}
	e.metrics.SetEquity(acct.Equity)

	if err := e.journal.RecordEquity(journal.EquitySnapshot{
		Session:       e.session,
		Time:          e.now(),
		Balance:       acct.Balance,
		Equity:        acct.Equity,
		MarginLevel:   acct.MarginLevel,
		OpenPositions: len(live),
		DayProfit:     stats.TotalProfit,
	}); err != nil {
		e.log.Warn("journal equity failed", zap.Error(err))
	}
}

// checkDailySummary logs the previous day's statistics once when the
// calendar date advances. The stats snapshot is cached every tick because
// the counter resets itself lazily on first access after midnight.
func (e *Engine) checkDailySummary() {
	stats := e.guard.DailyStats()
	if stats.Date != e.lastStatDay {
		e.log.Info("daily summary",
			zap.String("date", e.lastStats.Date),
			zap.Int("trades", e.lastStats.TotalTrades),
			zap.Float64("win_rate", e.lastStats.WinRate),
			zap.Float64("total_profit", e.lastStats.TotalProfit),
			zap.Float64("avg_win", e.lastStats.AverageWin),
			zap.Float64("avg_loss", e.lastStats.AverageLoss),
		)
		e.lastStatDay = stats.Date
	}
	e.lastStats = stats
}
