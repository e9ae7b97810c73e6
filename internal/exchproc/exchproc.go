// Package exchproc implements the exchange processor half of the split
// core (spec §4.7): it owns the exchange-visible depth for one asset,
// matches incoming requests against it, maintains queue-position
// estimates for resting orders, and emits responses back across the
// order bus with response latency applied.
package exchproc

import (
	"github.com/hftbacktest-go/hftbacktest/internal/metrics"
	"github.com/hftbacktest-go/hftbacktest/pkg/depth"
	"github.com/hftbacktest-go/hftbacktest/pkg/event"
	"github.com/hftbacktest-go/hftbacktest/pkg/hfterrors"
	"github.com/hftbacktest-go/hftbacktest/pkg/latency"
	"github.com/hftbacktest-go/hftbacktest/pkg/order"
	"github.com/hftbacktest-go/hftbacktest/pkg/queue"
)

// FillMode selects how many responses a single matching fill produces
// (spec §4.7).
type FillMode int8

const (
	// NoPartialFill reports a fully-filled resting order with one
	// response once its queue position reaches the front, saving the
	// state a venue that only reports full fills would not send anyway.
	NoPartialFill FillMode = iota
	// PartialFill emits one response per qty increment actually
	// consumed by a trade once the order is at the front of the queue.
	PartialFill
)

// BookMode selects the underlying depth representation the matching
// engine reasons over.
type BookMode int8

const (
	L2Book     BookMode = iota
	L3FIFOBook          // uses exact per-order FIFO priority from an L3 book
)

// Config bundles matching-engine construction parameters. The
// L3FIFOBook + PartialFill combination is invalid (spec §9): L3-FIFO
// exposes exact order position and is only paired with NoPartialFill.
type Config struct {
	Ticker depth.Ticker
	Fill   FillMode
	Book   BookMode
	Queue  queue.Model // required when Book == L2Book; ignored for L3FIFOBook
}

func (c Config) validate() error {
	if c.Book == L3FIFOBook && c.Fill == PartialFill {
		return hfterrors.New(hfterrors.InvalidConfiguration, "L3-FIFO matching does not support the partial-fill response mode")
	}
	if c.Book == L2Book && c.Queue == nil {
		return hfterrors.New(hfterrors.InvalidConfiguration, "an L2 matching engine requires a queue-position model")
	}
	return nil
}

// restingOrder pairs a tracked order with the bookkeeping the matching
// engine needs once it is resting: its FIFO arrival slot within the
// processor's own rest list, and (L3FIFOBook only) the exogenous-order
// volume observed ahead of it at acceptance time.
type restingOrder struct {
	o          *order.Order
	frontQty   float64 // L3FIFOBook only: exogenous qty ahead at entry, decremented by trades
}

// Processor is the exchange-facing side of one asset's split core.
type Processor struct {
	cfg Config

	l2 *depth.L2
	l3 *depth.L3

	resting map[depth.Side]map[int64][]*restingOrder
	byID    map[uint64]*restingOrder

	bus       *order.Pair
	model     latency.Model
	currentTs int64

	// Metrics is optional instrumentation (SPEC_FULL.md ambient stack);
	// a nil value is a no-op via metrics.EngineMetrics's nil-receiver
	// methods.
	Metrics *metrics.EngineMetrics
}

// New constructs an exchange processor for one asset.
func New(cfg Config, busPair *order.Pair, model latency.Model) (*Processor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &Processor{
		cfg:     cfg,
		bus:     busPair,
		model:   model,
		resting: map[depth.Side]map[int64][]*restingOrder{depth.SideBuy: {}, depth.SideSell: {}},
		byID:    make(map[uint64]*restingOrder),
	}
	switch cfg.Book {
	case L2Book:
		p.l2 = depth.NewL2(cfg.Ticker)
	case L3FIFOBook:
		p.l3 = depth.NewL3(cfg.Ticker)
	}
	return p, nil
}

// Depth exposes the L2 view, non-nil only when Book == L2Book. Used by
// the backtest driver to hand the strategy a mirrored depth elsewhere;
// the exchange-side depth itself is never strategy-visible.
func (p *Processor) Depth() *depth.L2 { return p.l2 }

// L3Depth exposes the L3 view, non-nil only when Book == L3FIFOBook.
func (p *Processor) L3Depth() *depth.L3 { return p.l3 }

func (p *Processor) bestAsk() int64 {
	if p.l3 != nil {
		return p.l3.BestAskTick()
	}
	return p.l2.BestAskTick()
}

func (p *Processor) bestBid() int64 {
	if p.l3 != nil {
		return p.l3.BestBidTick()
	}
	return p.l2.BestBidTick()
}

// ApplyFeed applies one EXCH_VISIBLE feed record: depth/snapshot/clear
// mutate the book and notify resting orders at the touched tick via the
// queue model's Depth hook (L2Book only); trade records notify resting
// orders on the passive side via the queue model's Trade hook and may
// convert them to (partially) filled (spec §4.7).
func (p *Processor) ApplyFeed(r event.Record) error {
	if !r.Kind.ExchVisibleFlag() {
		return nil
	}
	p.currentTs = r.ExchTs
	switch r.Kind.Category() {
	case event.KindDepth:
		return p.applyDepthFeed(r)
	case event.KindDepthSnapshot:
		side := sideOf(r.Kind)
		if p.l2 != nil {
			p.l2.ClearSide(side, r.Price)
		}
		return p.applyDepthFeed(r)
	case event.KindDepthClear:
		side := depth.SideNone
		if r.Kind.IsBuy() {
			side = depth.SideBuy
		} else if r.Kind.IsSell() {
			side = depth.SideSell
		}
		if p.l2 != nil {
			p.l2.ClearSide(side, r.Price)
		}
		return nil
	case event.KindTrade:
		return p.applyTradeFeed(r)
	}
	return nil
}

func sideOf(k event.Kind) depth.Side {
	if k.IsBuy() {
		return depth.SideBuy
	}
	return depth.SideSell
}

func (p *Processor) applyDepthFeed(r event.Record) error {
	side := sideOf(r.Kind)
	tick := p.cfg.Ticker.PriceToTick(r.Price)
	qty := p.cfg.Ticker.RoundLot(r.Qty)

	if p.l2 != nil {
		prevQty := p.l2.QtyAt(side, tick)
		res := p.l2.UpdateTick(side, tick, qty, r.ExchTs)
		for _, ro := range p.resting[side][tick] {
			p.cfg.Queue.Depth(ro.o, prevQty, res.NewQty)
		}
		return nil
	}
	// L3FIFOBook: depth feed records are exogenous order adds/modifies,
	// keyed by the record's OrderID.
	if qty <= 0 {
		_, _, _, _ = p.l3.Delete(r.OrderID, r.ExchTs)
		return nil
	}
	if o, ok := p.l3.OrderAt(r.OrderID); ok {
		_ = o
		_, _, err := p.l3.Modify(r.OrderID, r.Price, qty, r.ExchTs)
		return err
	}
	var err error
	if side == depth.SideBuy {
		_, _, err = p.l3.AddBuy(r.OrderID, r.Price, qty, r.ExchTs)
	} else {
		_, _, err = p.l3.AddSell(r.OrderID, r.Price, qty, r.ExchTs)
	}
	return err
}

func (p *Processor) applyTradeFeed(r event.Record) error {
	takerSide := sideOf(r.Kind)
	passiveSide := takerSide.Opposite()
	tick := p.cfg.Ticker.PriceToTick(r.Price)
	tradeQty := p.cfg.Ticker.RoundLot(r.Qty)

	for _, ro := range p.resting[passiveSide][tick] {
		p.fillFromTrade(ro, tradeQty, r.ExchTs)
	}
	return nil
}

func (p *Processor) fillFromTrade(ro *restingOrder, tradeQty float64, ts int64) {
	o := ro.o
	if o.Status.IsTerminal() {
		return
	}
	if p.cfg.Book == L3FIFOBook {
		ro.frontQty -= tradeQty
		if ro.frontQty > 1e-9 {
			return
		}
		p.executeFill(ro, o.LeavesQty, ts)
		return
	}
	p.cfg.Queue.Trade(o, tradeQty, p.l2)
	if !o.Queue.Fillable() {
		return
	}
	switch p.cfg.Fill {
	case PartialFill:
		p.executeFill(ro, minF(o.LeavesQty, tradeQty), ts)
	default:
		p.executeFill(ro, o.LeavesQty, ts)
	}
}

func (p *Processor) executeFill(ro *restingOrder, qty float64, ts int64) {
	o := ro.o
	if err := o.ApplyFill(qty, o.Tick, ts, true); err != nil {
		return
	}
	p.Metrics.Fill()
	p.removeResting(ro)
	p.respond(o, ts)
	if !o.Status.IsTerminal() {
		// Still partially resting: re-insert at the tail of its FIFO line
		// so subsequent trades keep finding it. NoPartialFill always
		// consumes the full leaves-qty in one call and never reaches
		// here non-terminal.
		p.insertResting(ro)
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// PollRequests drains every request due by ts from the exchange bus and
// dispatches it (new order / modify / cancel, keyed by Req), returning
// every order touched so callers (the backtest driver, metrics) can
// observe them.
func (p *Processor) PollRequests(ts int64) []*order.Order {
	var touched []*order.Order
	for {
		req, ok := p.bus.ToExch.PopIfDue(ts)
		if !ok {
			break
		}
		p.currentTs = ts
		p.dispatch(req)
		touched = append(touched, req)
	}
	return touched
}

func (p *Processor) dispatch(req *order.Order) {
	switch req.Req {
	case order.ReqCanceled:
		p.handleCancel(req)
	case order.ReqReplaced:
		p.handleReplace(req)
	default:
		p.handleNew(req)
	}
}

func (p *Processor) handleNew(req *order.Order) {
	if _, exists := p.byID[req.ID]; exists {
		p.reject(req, hfterrors.InvalidOrderRequest, "duplicate order id at exchange")
		return
	}
	marketable := p.isMarketable(req.Side, req.Tick)

	if marketable && req.TIF == order.GTX {
		_ = req.Expire(p.currentTs)
		p.Metrics.Reject("gtx")
		p.respond(req, p.currentTs)
		return
	}

	if marketable || req.Type == order.Market {
		if req.TIF == order.FOK {
			availTick, availQty, availOk := p.bestLevel(req.Side)
			reachable := availOk && (req.Type == order.Market || p.withinLimit(req.Side, availTick, req.Tick))
			if !reachable || availQty+1e-9 < req.LeavesQty {
				// Cannot fill the whole order from the best level alone;
				// FOK requires an all-or-nothing fill, so reject without
				// ever touching the book.
				_ = req.Cancel(p.currentTs)
				p.respond(req, p.currentTs)
				return
			}
		}
		if taken := p.matchTaker(req); taken > 0 {
			p.Metrics.Fill()
		}
		switch req.TIF {
		case order.IOC:
			if req.LeavesQty > 0 {
				_ = req.Cancel(p.currentTs)
			}
		default:
			if req.LeavesQty > 0 {
				// Limit order partially crossed; the remainder rests.
				req.Accept(p.currentTs)
				p.rest(req)
			}
		}
		p.respond(req, p.currentTs)
		return
	}

	req.Accept(p.currentTs)
	p.rest(req)
	p.respond(req, p.currentTs)
}

// isMarketable reports whether a limit order at tick would cross the
// book on entry.
func (p *Processor) isMarketable(side depth.Side, tick int64) bool {
	switch side {
	case depth.SideBuy:
		ask := p.bestAsk()
		return ask != depth.MaxNone && tick >= ask
	case depth.SideSell:
		bid := p.bestBid()
		return bid != depth.MinNone && tick <= bid
	}
	return false
}

// matchTaker walks the book from best price toward (and, for market
// orders, through) req's limit, consuming aggregate depth and reducing
// req's leaves-qty. It models crossing against the tape's exogenous
// liquidity only; our own resting orders are never taker-matched
// against each other since each asset has one local/exchange pair.
func (p *Processor) matchTaker(req *order.Order) float64 {
	var filled float64
	for req.LeavesQty > 1e-9 {
		tick, qty, ok := p.bestLevel(req.Side)
		if !ok {
			break
		}
		if req.Type != order.Market {
			if req.Side == depth.SideBuy && tick > req.Tick {
				break
			}
			if req.Side == depth.SideSell && tick < req.Tick {
				break
			}
		}
		take := minF(req.LeavesQty, qty)
		p.consumeLevel(req.Side, tick, take)
		if err := req.ApplyFill(take, tick, p.currentTs, false); err != nil {
			break
		}
		filled += take
	}
	return filled
}

func (p *Processor) bestLevel(side depth.Side) (tick int64, qty float64, ok bool) {
	opp := side.Opposite()
	if p.l3 != nil {
		t := p.bestAskOrBidFor(opp)
		if t == depth.MinNone || t == depth.MaxNone {
			return 0, 0, false
		}
		return t, p.l3.AggQtyAt(opp, t), true
	}
	t := p.bestAskOrBidFor(opp)
	if t == depth.MinNone || t == depth.MaxNone {
		return 0, 0, false
	}
	return t, p.l2.QtyAt(opp, t), true
}

// withinLimit reports whether tick is reachable by a limit order resting
// at limitTick on side (i.e. crossing at tick would not exceed the
// order's own limit price).
func (p *Processor) withinLimit(side depth.Side, tick, limitTick int64) bool {
	switch side {
	case depth.SideBuy:
		return tick <= limitTick
	case depth.SideSell:
		return tick >= limitTick
	}
	return true
}

func (p *Processor) bestAskOrBidFor(side depth.Side) int64 {
	if side == depth.SideBuy {
		return p.bestBid()
	}
	return p.bestAsk()
}

func (p *Processor) consumeLevel(takerSide depth.Side, tick int64, qty float64) {
	opp := takerSide.Opposite()
	if p.l2 != nil {
		prev := p.l2.QtyAt(opp, tick)
		newQty := prev - qty
		res := p.l2.UpdateTick(opp, tick, newQty, p.currentTs)
		for _, ro := range p.resting[opp][tick] {
			p.cfg.Queue.Depth(ro.o, prev, res.NewQty)
		}
		return
	}
	cur := p.l3.AggQtyAt(opp, tick)
	newQty := cur - qty
	if newQty <= 1e-9 {
		for _, o := range p.l3.OrdersAtTick(opp, tick) {
			_, _, _ = p.l3.Delete(o.OrderID, p.currentTs)
		}
	} else {
		// proportionally shrink exogenous resting orders at this tick;
		// a full order-by-order consumption model is out of scope.
		for _, o := range p.l3.OrdersAtTick(opp, tick) {
			_, _, _ = p.l3.Modify(o.OrderID, p.cfg.Ticker.TickToPrice(tick), o.Qty*newQty/cur, p.currentTs)
		}
	}
}

func (p *Processor) handleCancel(req *order.Order) {
	ro, ok := p.byID[req.ID]
	if !ok {
		p.reject(req, hfterrors.OrderNotFound, "no such resting order at exchange")
		return
	}
	_ = ro.o.Cancel(p.currentTs)
	p.removeResting(ro)
	p.respond(ro.o, p.currentTs)
}

func (p *Processor) handleReplace(req *order.Order) {
	ro, ok := p.byID[req.ID]
	if !ok {
		p.reject(req, hfterrors.OrderNotFound, "no such resting order at exchange")
		return
	}
	p.removeResting(ro)
	ro.o.Tick = req.Tick
	ro.o.LeavesQty = req.LeavesQty
	ro.o.Req = order.ReqNone
	if p.isMarketable(ro.o.Side, ro.o.Tick) {
		_ = ro.o.Expire(p.currentTs)
		p.respond(ro.o, p.currentTs)
		return
	}
	p.rest(ro.o)
	p.respond(ro.o, p.currentTs)
}

func (p *Processor) rest(o *order.Order) {
	ro := &restingOrder{o: o}
	if p.cfg.Book == L3FIFOBook {
		var err error
		if o.Side == depth.SideBuy {
			_, _, err = p.l3.AddBuy(o.ID, o.Price(), o.LeavesQty, p.currentTs)
		} else {
			_, _, err = p.l3.AddSell(o.ID, o.Price(), o.LeavesQty, p.currentTs)
		}
		if err == nil {
			var ahead float64
			for _, other := range p.l3.OrdersAtTick(o.Side, o.Tick) {
				if other.OrderID != o.ID && other.Ts <= p.currentTs {
					ahead += other.Qty
				}
			}
			ro.frontQty = ahead
		}
	} else {
		p.cfg.Queue.NewOrder(o, p.l2)
	}
	p.insertResting(ro)
}

func (p *Processor) insertResting(ro *restingOrder) {
	side, tick := ro.o.Side, ro.o.Tick
	p.resting[side][tick] = append(p.resting[side][tick], ro)
	p.byID[ro.o.ID] = ro
}

func (p *Processor) removeResting(ro *restingOrder) {
	side, tick := ro.o.Side, ro.o.Tick
	list := p.resting[side][tick]
	for i, other := range list {
		if other == ro {
			p.resting[side][tick] = append(list[:i], list[i+1:]...)
			break
		}
	}
	delete(p.byID, ro.o.ID)
}

func (p *Processor) reject(req *order.Order, code hfterrors.Code, msg string) {
	req.Req = order.ReqNone
	_ = req.Expire(p.currentTs)
	p.Metrics.Reject(string(code))
	p.respond(req, p.currentTs)
}

func (p *Processor) respond(o *order.Order, ts int64) {
	resp := o.Clone()
	response := p.model.ResponseLatency(ts)
	deliverTs := ts + response
	if response < 0 {
		deliverTs = ts - response
	}
	p.bus.ToLocal.Append(resp, deliverTs)
}

// CurrentTimestamp returns the exchange processor's notion of "now".
func (p *Processor) CurrentTimestamp() int64 { return p.currentTs }
