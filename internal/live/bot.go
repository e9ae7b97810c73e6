package live

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hftbacktest-go/hftbacktest/internal/fees"
	"github.com/hftbacktest-go/hftbacktest/internal/ordermanager"
	"github.com/hftbacktest-go/hftbacktest/pkg/depth"
	"github.com/hftbacktest-go/hftbacktest/pkg/event"
	"github.com/hftbacktest-go/hftbacktest/pkg/hfterrors"
	"github.com/hftbacktest-go/hftbacktest/pkg/latency"
	"github.com/hftbacktest-go/hftbacktest/pkg/order"
)

// AssetConfig is everything Bot needs to track one live asset's book,
// orders, and P&L locally, mirroring backtest.AssetConfig's role for the
// replay driver.
type AssetConfig struct {
	Symbol    string
	Ticker    depth.Ticker
	AssetType fees.AssetType
	FeeModel  fees.Model
}

type assetState struct {
	symbol     string
	ticker     depth.Ticker
	depth      *depth.L2
	orders     map[uint64]*order.Order
	lastTrades []event.Record
	state      *fees.StateValues
}

// Bot implements the same strategy-facing interface as backtest.Driver
// (spec §4.11: "the strategy interface is identical") but is driven by
// one or more live connectors multiplexed through a Supervisor instead
// of a tape replay.
type Bot struct {
	sup      *Supervisor
	registry *ordermanager.Registry
	logger   *zap.Logger

	assets    []*assetState
	bySymbol  map[string]int
	currentTs int64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBot wires a Bot on top of sup, one asset per cfg entry, reconciling
// order terminal states through a fresh ordermanager.Registry namespaced
// by clientIDPrefix (spec §4.12).
func NewBot(sup *Supervisor, clientIDPrefix string, logger *zap.Logger, configs []AssetConfig) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		sup:      sup,
		registry: ordermanager.NewRegistry(clientIDPrefix, logger),
		logger:   logger,
		bySymbol: make(map[string]int),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i, cfg := range configs {
		b.assets = append(b.assets, &assetState{
			symbol: cfg.Symbol,
			ticker: cfg.Ticker,
			depth:  depth.NewL2(cfg.Ticker),
			orders: make(map[uint64]*order.Order),
			state:  &fees.StateValues{AssetType: cfg.AssetType, FeeModel: cfg.FeeModel},
		})
		b.bySymbol[cfg.Symbol] = i
	}
	go sup.Run(ctx)
	return b
}

// CurrentTimestamp returns the last event timestamp Bot observed, or the
// current wall clock if nothing has arrived yet.
func (b *Bot) CurrentTimestamp() int64 {
	if b.currentTs == 0 {
		return time.Now().UnixNano()
	}
	return b.currentTs
}

func (b *Bot) Depth(asset int) *depth.L2                        { return b.assets[asset].depth }
func (b *Bot) Position(asset int) float64                       { return b.assets[asset].state.Position }
func (b *Bot) StateValues(asset int) *fees.StateValues           { return b.assets[asset].state }
func (b *Bot) Orders(asset int) map[uint64]*order.Order          { return b.assets[asset].orders }
func (b *Bot) LastTrades(asset int) []event.Record                { return b.assets[asset].lastTrades }
func (b *Bot) ClearLastTrades(asset int) { b.assets[asset].lastTrades = nil }

func (b *Bot) ClearInactiveOrders(asset int) {
	as := b.assets[asset]
	for id, o := range as.orders {
		if o.Status.IsTerminal() {
			delete(as.orders, id)
		}
	}
}

// FeedLatency and OrderLatency have no backtest-style latency model to
// report in live mode; live submits go straight to the venue and are
// timed by whatever the connector measures, so these return nil
// (spec §6 declares the method, not a mandatory non-nil result in live).
func (b *Bot) FeedLatency(asset int) latency.Model  { return nil }
func (b *Bot) OrderLatency(asset int) latency.Model { return nil }

// SubmitBuyOrder and SubmitSellOrder place a live order via the
// connector (spec §4.11 "Order submission path").
func (b *Bot) SubmitBuyOrder(asset int, id uint64, price, qty float64, tif order.TIF, typ order.Type, wait bool) error {
	return b.submit(asset, id, order.Buy, price, qty, tif, typ, wait)
}

func (b *Bot) SubmitSellOrder(asset int, id uint64, price, qty float64, tif order.TIF, typ order.Type, wait bool) error {
	return b.submit(asset, id, order.Sell, price, qty, tif, typ, wait)
}

func (b *Bot) submit(asset int, id uint64, side order.Side, price, qty float64, tif order.TIF, typ order.Type, wait bool) error {
	as := b.assets[asset]
	if _, exists := as.orders[id]; exists {
		return hfterrors.New(hfterrors.OrderIdExist, "order id already tracked locally")
	}
	o := order.New(id, side, typ, tif, as.ticker, price, qty, b.CurrentTimestamp())
	as.orders[id] = o
	if _, err := b.registry.GenerateClientOrderID(asset, o); err != nil {
		return err
	}
	if err := b.sup.SubmitOrder(b.ctx, as.symbol, o); err != nil {
		return hfterrors.New(hfterrors.InvalidOrderRequest, "submit failed").WithCause(err)
	}
	if wait {
		_, err := b.WaitOrderResponse(asset, id, int64(30*time.Second))
		return err
	}
	return nil
}

// Cancel requests cancellation of a live order.
func (b *Bot) Cancel(asset int, id uint64, wait bool) error {
	as := b.assets[asset]
	o, ok := as.orders[id]
	if !ok {
		return hfterrors.New(hfterrors.OrderNotFound, "no such local order")
	}
	if o.Status.IsTerminal() {
		return hfterrors.New(hfterrors.InvalidOrderStatus, "cannot cancel a terminal order")
	}
	if err := b.sup.CancelOrder(b.ctx, as.symbol, id); err != nil {
		return hfterrors.New(hfterrors.InvalidOrderRequest, "cancel failed").WithCause(err)
	}
	if wait {
		_, err := b.WaitOrderResponse(asset, id, int64(30*time.Second))
		return err
	}
	return nil
}

// Elapse blocks on the connectors' multiplexed event channel for
// durationNs, applying every event received (spec §4.11).
func (b *Bot) Elapse(durationNs int64) (bool, error) {
	deadline := time.NewTimer(time.Duration(durationNs))
	defer deadline.Stop()
	for {
		select {
		case <-deadline.C:
			return true, nil
		case ev, ok := <-b.sup.Events():
			if !ok {
				return false, hfterrors.New(hfterrors.EndOfData, "connector event stream closed")
			}
			b.apply(ev)
		}
	}
}

// ElapseBT is declared by spec §6's Bot interface for backtest-only use;
// a live bot has no backtest-specific fast-forward mode so it behaves
// exactly like Elapse, matching backtest.Driver's own ElapseBT/Elapse
// equivalence decision (see DESIGN.md).
func (b *Bot) ElapseBT(durationNs int64) (bool, error) { return b.Elapse(durationNs) }

// WaitOrderResponse blocks until an EventOrder for id is observed or
// timeoutNs elapses.
func (b *Bot) WaitOrderResponse(asset int, id uint64, timeoutNs int64) (bool, error) {
	deadline := time.NewTimer(time.Duration(timeoutNs))
	defer deadline.Stop()
	for {
		select {
		case <-deadline.C:
			return false, nil
		case ev, ok := <-b.sup.Events():
			if !ok {
				return false, hfterrors.New(hfterrors.EndOfData, "connector event stream closed")
			}
			matched := ev.Kind == EventOrder && ev.Order != nil && ev.Order.ID == id
			b.apply(ev)
			if matched {
				return true, nil
			}
		}
	}
}

// WaitNextFeed blocks until any depth/trade event arrives, or (if
// includeResp) any order event, whichever comes first.
func (b *Bot) WaitNextFeed(includeResp bool, timeoutNs int64) (bool, error) {
	deadline := time.NewTimer(time.Duration(timeoutNs))
	defer deadline.Stop()
	for {
		select {
		case <-deadline.C:
			return true, nil
		case ev, ok := <-b.sup.Events():
			if !ok {
				return false, hfterrors.New(hfterrors.EndOfData, "connector event stream closed")
			}
			isFeed := ev.Kind == EventDepth || ev.Kind == EventTrade
			isResp := includeResp && ev.Kind == EventOrder
			b.apply(ev)
			if isFeed || isResp {
				return true, nil
			}
		}
	}
}

// Close tears down the connector supervisor.
func (b *Bot) Close() error {
	b.cancel()
	return b.sup.Close()
}

// apply folds one LiveEvent into local book/order/P&L state. Depth
// events between a BatchStart/BatchEnd pair (spec §5) are applied as
// they arrive; Bot does not itself defer them; BatchID is observational
// only and callers wanting atomic-looking application can buffer
// Bot-level events themselves between the two markers.
func (b *Bot) apply(ev LiveEvent) {
	asset, ok := b.bySymbol[ev.Symbol]
	if !ok {
		return
	}
	as := b.assets[asset]

	switch ev.Kind {
	case EventDepth:
		r := ev.Record
		b.currentTs = r.LocalTs
		side := depth.SideBuy
		if r.Kind.IsSell() {
			side = depth.SideSell
		}
		switch r.Kind.Category() {
		case event.KindDepthClear:
			as.depth.ClearSide(side, r.Price)
		case event.KindDepthSnapshot:
			as.depth.ClearSide(side, r.Price)
			as.depth.Update(side, r.Price, r.Qty, r.LocalTs)
		default:
			as.depth.Update(side, r.Price, r.Qty, r.LocalTs)
		}
	case EventTrade:
		b.currentTs = ev.Record.LocalTs
		as.lastTrades = append(as.lastTrades, ev.Record)
	case EventOrder:
		b.applyOrder(asset, as, ev)
	case EventPosition:
		as.state.Position = ev.PositionQty
	case EventError:
		if b.logger != nil {
			b.logger.Warn("live connector error event",
				zap.String("symbol", ev.Symbol), zap.Int("err_kind", int(ev.ErrKind)),
				zap.String("message", ev.ErrMessage))
		}
	case EventBatchStart, EventBatchEnd:
		// Framing markers only; see method doc.
	}
}

func (b *Bot) applyOrder(asset int, as *assetState, ev LiveEvent) {
	if ev.Order == nil {
		return
	}
	clientID, ok := b.registry.Lookup(asset, ev.Order.ID)
	if !ok {
		// First sight of this order id on this channel: register it so
		// future updates can be deduplicated.
		if _, err := b.registry.GenerateClientOrderID(asset, ev.Order); err != nil {
			return
		}
		clientID, _ = b.registry.Lookup(asset, ev.Order.ID)
	}
	// The registry may hold the same *Order as as.orders and overwrite it
	// in Update, so the executed qty before this event is read first.
	var prevExec float64
	if prev, ok := as.orders[ev.Order.ID]; ok {
		prevExec = prev.ExecutedQty
	}
	surfaced, err := b.registry.Update(ordermanager.ChannelWS, clientID, asset, ev.Order, b.currentTs)
	if err != nil || surfaced == nil {
		return
	}
	local, tracked := as.orders[surfaced.ID]
	if !tracked {
		as.orders[surfaced.ID] = surfaced
		local = surfaced
	}
	local.Status = surfaced.Status
	local.LeavesQty = surfaced.LeavesQty
	local.ExecutedQty = surfaced.ExecutedQty
	local.ExecutedTick = surfaced.ExecutedTick
	local.Tick = surfaced.Tick
	delta := local.ExecutedQty - prevExec
	if delta > 1e-9 {
		as.state.ApplyFill(local, delta, local.Ticker.TickToPrice(local.ExecutedTick))
	}
}
