// Package sim is an in-memory implementation of broker.Broker. It fills
// market orders instantly, marks open positions to the latest quote, and
// auto-closes them when a stop-loss or take-profit level trades through.
// Tests and the demo runner use it in place of a live terminal session.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/glockyhere/mt5bot/broker"
)

const leverage = 100.0

// Engine holds the simulated account, a quote per symbol, and the open
// position book keyed by ticket.
type Engine struct {
	mu         sync.Mutex
	acct       broker.Account
	quotes     map[string]broker.Quote
	positions  map[int64]*broker.Position
	closed     []ClosedTrade
	nextTicket int64
	offline    bool
}

// ClosedTrade is a realized position, kept for inspection.
type ClosedTrade struct {
	Position broker.Position
	Profit   float64
	Reason   string
	ClosedAt time.Time
}

func NewEngine(acct broker.Account) *Engine {
	acct.Equity = acct.Balance
	return &Engine{
		acct:       acct,
		quotes:     make(map[string]broker.Quote),
		positions:  make(map[int64]*broker.Position),
		nextTicket: 1000,
	}
}

// SetOffline makes every broker call fail with ErrNotConnected until the
// flag is cleared. Used to exercise connectivity-error handling.
func (e *Engine) SetOffline(offline bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offline = offline
}

// SetQuote installs or replaces the quote for a symbol, then revalues and
// auto-closes positions against it.
func (e *Engine) SetQuote(q broker.Quote) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.quotes[q.Symbol] = q
	e.markPositionsLocked(q)
	e.revalueLocked()
}

// MovePrice shifts a symbol's bid/ask keeping the spread, a convenience for
// scripted price paths.
func (e *Engine) MovePrice(symbol string, delta float64) {
	e.mu.Lock()
	q, ok := e.quotes[symbol]
	e.mu.Unlock()
	if !ok {
		return
	}
	q.Bid += delta
	q.Ask += delta
	q.Time = q.Time.Add(time.Second)
	e.SetQuote(q)
}

func (e *Engine) GetAccount(ctx context.Context) (broker.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.offline {
		return broker.Account{}, broker.ErrNotConnected
	}
	return e.acct, nil
}

func (e *Engine) GetQuote(ctx context.Context, symbol string) (broker.Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.offline {
		return broker.Quote{}, broker.ErrNotConnected
	}
	q, ok := e.quotes[symbol]
	if !ok {
		return broker.Quote{}, broker.ErrNotConnected
	}
	return q, nil
}

func (e *Engine) GetPositions(ctx context.Context, symbol string, magic int64) ([]broker.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.offline {
		return nil, broker.ErrNotConnected
	}

	var out []broker.Position
	for _, p := range e.positions {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		if magic != 0 && p.Magic != magic {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (e *Engine) SendOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.offline {
		return broker.OrderResult{}, broker.ErrNotConnected
	}

	q, ok := e.quotes[req.Symbol]
	if !ok {
		return broker.OrderResult{}, broker.ErrNotConnected
	}
	if req.Volume <= 0 || (q.VolumeMax > 0 && req.Volume > q.VolumeMax) {
		return broker.OrderResult{}, broker.ErrInvalidVolume
	}

	fill := q.EntryPrice(req.Side)
	e.nextTicket++
	ticket := e.nextTicket

	e.positions[ticket] = &broker.Position{
		Ticket:     ticket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		OpenPrice:  fill,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Magic:      req.Magic,
		Comment:    req.Comment,
		OpenTime:   q.Time,
	}
	e.markPositionsLocked(q)
	e.revalueLocked()

	return broker.OrderResult{Ticket: ticket, Volume: req.Volume, Price: fill}, nil
}

func (e *Engine) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.offline {
		return broker.ErrNotConnected
	}

	p, ok := e.positions[ticket]
	if !ok {
		return broker.ErrPositionNotFound
	}
	p.StopLoss = stopLoss
	p.TakeProfit = takeProfit
	return nil
}

func (e *Engine) ClosePosition(ctx context.Context, ticket int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.offline {
		return broker.ErrNotConnected
	}

	p, ok := e.positions[ticket]
	if !ok {
		return broker.ErrPositionNotFound
	}
	e.closeLocked(p, "manual")
	e.revalueLocked()
	return nil
}

// ClosedTrades returns the realized trades so far.
func (e *Engine) ClosedTrades() []ClosedTrade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ClosedTrade, len(e.closed))
	copy(out, e.closed)
	return out
}

// markPositionsLocked refreshes unrealized profit for q's symbol and closes
// any position whose stop or take-profit level is reached.
func (e *Engine) markPositionsLocked(q broker.Quote) {
	for _, p := range e.positions {
		if p.Symbol != q.Symbol {
			continue
		}

		mark := q.ClosePrice(p.Side)
		p.Profit = unrealized(*p, mark, q.ContractSize)

		switch {
		case hitStop(*p, mark):
			e.closeLocked(p, "stop_loss")
		case hitTake(*p, mark):
			e.closeLocked(p, "take_profit")
		}
	}
}

func (e *Engine) closeLocked(p *broker.Position, reason string) {
	q := e.quotes[p.Symbol]
	mark := q.ClosePrice(p.Side)
	pl := unrealized(*p, mark, q.ContractSize)

	e.acct.Balance += pl
	e.closed = append(e.closed, ClosedTrade{
		Position: *p,
		Profit:   pl,
		Reason:   reason,
		ClosedAt: q.Time,
	})
	delete(e.positions, p.Ticket)
}

func (e *Engine) revalueLocked() {
	equity := e.acct.Balance
	margin := 0.0

	for _, p := range e.positions {
		q, ok := e.quotes[p.Symbol]
		if !ok {
			continue
		}
		equity += unrealized(*p, q.ClosePrice(p.Side), q.ContractSize)
		margin += p.Volume * q.ContractSize * q.EntryPrice(p.Side) / leverage
	}

	e.acct.Equity = equity
	e.acct.Margin = margin
	e.acct.FreeMargin = equity - margin
	e.acct.Profit = equity - e.acct.Balance
	if margin > 0 {
		e.acct.MarginLevel = equity / margin * 100
	} else {
		e.acct.MarginLevel = 0
	}
}

func unrealized(p broker.Position, mark, contractSize float64) float64 {
	if p.Side == broker.Buy {
		return (mark - p.OpenPrice) * p.Volume * contractSize
	}
	return (p.OpenPrice - mark) * p.Volume * contractSize
}

func hitStop(p broker.Position, mark float64) bool {
	if p.StopLoss == 0 {
		return false
	}
	if p.Side == broker.Buy {
		return mark <= p.StopLoss
	}
	return mark >= p.StopLoss
}

func hitTake(p broker.Position, mark float64) bool {
	if p.TakeProfit == 0 {
		return false
	}
	if p.Side == broker.Buy {
		return mark >= p.TakeProfit
	}
	return mark <= p.TakeProfit
}
