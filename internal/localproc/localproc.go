// Package localproc implements the local processor half of the split
// core described in spec §4.6: it owns the strategy-visible depth and
// order book for one asset, applies LOCAL_VISIBLE feed events to them,
// validates and forwards strategy order requests across the
// latency-interposed bus, and reconciles responses coming back from the
// exchange processor.
package localproc

import (
	"github.com/hftbacktest-go/hftbacktest/pkg/depth"
	"github.com/hftbacktest-go/hftbacktest/pkg/event"
	"github.com/hftbacktest-go/hftbacktest/pkg/hfterrors"
	"github.com/hftbacktest-go/hftbacktest/pkg/latency"
	"github.com/hftbacktest-go/hftbacktest/pkg/order"
)

// Processor is the local (strategy-facing) side of one asset's split
// core (spec §4.3/§4.6).
type Processor struct {
	Ticker depth.Ticker
	Depth  *depth.L2
	Orders map[uint64]*order.Order

	LastTrades []event.Record

	bus   *order.Pair
	model latency.Model

	currentTs int64
}

// New constructs a local processor for one asset, sharing busPair with
// its paired exchange processor.
func New(ticker depth.Ticker, busPair *order.Pair, model latency.Model) *Processor {
	return &Processor{
		Ticker: ticker,
		Depth:  depth.NewL2(ticker),
		Orders: make(map[uint64]*order.Order),
		bus:    busPair,
		model:  model,
	}
}

// ApplyFeed applies one LOCAL_VISIBLE feed record to the local depth view
// and, for trade records, appends it to LastTrades (spec §4.6).
func (p *Processor) ApplyFeed(r event.Record) error {
	if !r.Kind.LocalVisibleFlag() {
		return nil
	}
	p.currentTs = r.LocalTs
	switch r.Kind.Category() {
	case event.KindDepth:
		side := sideOf(r.Kind)
		p.Depth.Update(side, r.Price, r.Qty, r.LocalTs)
	case event.KindDepthSnapshot:
		side := sideOf(r.Kind)
		p.Depth.ClearSide(side, r.Price)
		p.Depth.Update(side, r.Price, r.Qty, r.LocalTs)
	case event.KindDepthClear:
		side := depth.SideNone
		if r.Kind.IsBuy() {
			side = depth.SideBuy
		} else if r.Kind.IsSell() {
			side = depth.SideSell
		}
		p.Depth.ClearSide(side, r.Price)
	case event.KindTrade:
		p.LastTrades = append(p.LastTrades, r)
	}
	return nil
}

// ClearLastTrades empties the accumulated trade buffer (Bot.clear_last_trades,
// spec §4.9).
func (p *Processor) ClearLastTrades() { p.LastTrades = nil }

func sideOf(k event.Kind) depth.Side {
	if k.IsBuy() {
		return depth.SideBuy
	}
	return depth.SideSell
}

// SubmitOrder validates and enqueues a new order request toward the
// exchange processor, applying the model's entry latency. A negative
// entry latency never reaches the exchange; instead a rejection is
// scheduled on the response bus at the right wall-clock offset, exactly
// like any other response (spec §4.4, §4.6).
func (p *Processor) SubmitOrder(o *order.Order) error {
	if _, exists := p.Orders[o.ID]; exists {
		return hfterrors.New(hfterrors.OrderIdExist, "order id already tracked locally")
	}
	p.Orders[o.ID] = o
	return p.forward(o.Clone())
}

// ModifyOrder re-prices/re-sizes a resting order. It is rejected if the
// order is unknown, already terminal, or has another request in flight
// (spec §4.6).
func (p *Processor) ModifyOrder(id uint64, price, qty float64, ts int64) error {
	o, ok := p.Orders[id]
	if !ok {
		return hfterrors.New(hfterrors.OrderNotFound, "no such local order")
	}
	if o.Status.IsTerminal() {
		return hfterrors.New(hfterrors.InvalidOrderStatus, "cannot modify a terminal order")
	}
	if o.Req != order.ReqNone {
		return hfterrors.New(hfterrors.OrderRequestInProcess, "a request is already in flight for this order")
	}
	o.Req = order.ReqReplaced
	o.LocalTs = ts
	replacement := o.Clone()
	replacement.Tick = o.PriceToTick(price)
	replacement.LeavesQty = o.RoundLot(qty)
	return p.forward(replacement)
}

// CancelOrder requests cancellation of a resting order (spec §4.6).
func (p *Processor) CancelOrder(id uint64, ts int64) error {
	o, ok := p.Orders[id]
	if !ok {
		return hfterrors.New(hfterrors.OrderNotFound, "no such local order")
	}
	if o.Status.IsTerminal() {
		return hfterrors.New(hfterrors.InvalidOrderStatus, "cannot cancel a terminal order")
	}
	if o.Req != order.ReqNone {
		return hfterrors.New(hfterrors.OrderRequestInProcess, "a request is already in flight for this order")
	}
	o.Req = order.ReqCanceled
	o.LocalTs = ts
	return p.forward(o.Clone())
}

func (p *Processor) forward(o *order.Order) error {
	entry := p.model.EntryLatency(o.LocalTs)
	if entry < 0 {
		// Rejected before reaching the exchange: the notification is
		// scheduled on the response bus at |entry| delay, same as any
		// other response (spec §4.3, §4.4 scenario 6).
		return p.rejectInFlight(o, o.LocalTs-entry)
	}
	p.bus.ToExch.Append(o, o.LocalTs+entry)
	return nil
}

// rejectInFlight stamps a clone of o Expired and appends it to the
// response bus at notifyTs, so it is drained and reconciled through
// PollResponses/reconcile exactly like an exchange-originated response
// (spec §4.3, §4.9).
func (p *Processor) rejectInFlight(o *order.Order, notifyTs int64) error {
	resp := o.Clone()
	resp.Status = order.StatusExpired
	resp.ExchTs = notifyTs
	p.bus.ToLocal.Append(resp, notifyTs)
	return nil
}

// PollResponses drains every response due by ts from the exchange bus
// and reconciles local order state against it (spec §4.6).
func (p *Processor) PollResponses(ts int64) []*order.Order {
	var touched []*order.Order
	for {
		resp, ok := p.bus.ToLocal.PopIfDue(ts)
		if !ok {
			break
		}
		p.reconcile(resp)
		touched = append(touched, p.Orders[resp.ID])
	}
	return touched
}

// reconcile merges an exchange-originated response back into the
// locally tracked order, restoring the prior price/qty if a replace was
// rejected (spec §4.6's "prior Replaced -> restore original price/qty"),
// or just clearing the in-flight flag if a cancel request was the one
// rejected (the resting order was never touched in the first place).
func (p *Processor) reconcile(resp *order.Order) {
	local, ok := p.Orders[resp.ID]
	if !ok {
		p.Orders[resp.ID] = resp
		return
	}
	if resp.Status == order.StatusExpired && (local.Req == order.ReqReplaced || local.Req == order.ReqCanceled) {
		// The exchange rejected the replace/cancel request itself (not
		// the resting order); it keeps its current price/qty/status and
		// simply clears the in-flight flag.
		local.Req = order.ReqNone
		return
	}
	local.Status = resp.Status
	local.Req = order.ReqNone
	local.ExecutedQty = resp.ExecutedQty
	local.LeavesQty = resp.LeavesQty
	local.ExecutedTick = resp.ExecutedTick
	local.ExchTs = resp.ExchTs
	local.Maker = resp.Maker
	if resp.Tick != local.Tick {
		local.Tick = resp.Tick
	}
}

// ClearInactiveOrders drops every terminal order from the tracked set
// (Bot.clear_inactive_orders, spec §4.9).
func (p *Processor) ClearInactiveOrders() {
	for id, o := range p.Orders {
		if o.Status.IsTerminal() {
			delete(p.Orders, id)
		}
	}
}

// CurrentTimestamp returns the local processor's notion of "now": the
// LocalTs of the last feed event applied.
func (p *Processor) CurrentTimestamp() int64 { return p.currentTs }
