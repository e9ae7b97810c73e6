// Package backtest implements the multi-asset backtest driver from spec
// §4.9: it owns the scheduler and, per asset, a (local, exchange)
// processor pair connected by a latency-interposed bus, and exposes the
// strategy-facing Bot interface shared with the live runtime (spec §6).
package backtest

import (
	"github.com/hftbacktest-go/hftbacktest/pkg/depth"
	"github.com/hftbacktest-go/hftbacktest/pkg/event"
	"github.com/hftbacktest-go/hftbacktest/pkg/hfterrors"
	"github.com/hftbacktest-go/hftbacktest/pkg/latency"
	"github.com/hftbacktest-go/hftbacktest/pkg/order"

	"github.com/hftbacktest-go/hftbacktest/internal/exchproc"
	"github.com/hftbacktest-go/hftbacktest/internal/fees"
	"github.com/hftbacktest-go/hftbacktest/internal/localproc"
	"github.com/hftbacktest-go/hftbacktest/internal/metrics"
	"github.com/hftbacktest-go/hftbacktest/internal/scheduler"
)

// WaitMode selects what goto's drained-response check is looking for
// (spec §4.9's WAIT_NONE/WAIT_ANY/specific order id).
type WaitMode int8

const (
	WaitNone WaitMode = iota
	WaitAny
	WaitID
)

// Wait is the (mode, order-id) pair goto compares drained local-order
// responses against.
type Wait struct {
	Mode    WaitMode
	OrderID uint64
}

// assetFeed wraps a pre-loaded, time-ordered record slice for one asset
// with two independent cursors: one for LOCAL_VISIBLE records, one for
// EXCH_VISIBLE records, since a single record may qualify for neither,
// either, or both streams (spec §3/§4.1). Driver materializes the full
// tape up front for simplicity; pkg/tape's chunked reader/cache remains
// available for callers that want incremental loading instead.
type assetFeed struct {
	records  []event.Record
	localIdx int
	exchIdx  int
}

func (f *assetFeed) peekLocal() (event.Record, bool) {
	for f.localIdx < len(f.records) {
		r := f.records[f.localIdx]
		if r.Kind.LocalVisibleFlag() {
			return r, true
		}
		f.localIdx++
	}
	return event.Record{}, false
}

func (f *assetFeed) popLocal() (event.Record, bool) {
	r, ok := f.peekLocal()
	if ok {
		f.localIdx++
	}
	return r, ok
}

func (f *assetFeed) peekExch() (event.Record, bool) {
	for f.exchIdx < len(f.records) {
		r := f.records[f.exchIdx]
		if r.Kind.ExchVisibleFlag() {
			return r, true
		}
		f.exchIdx++
	}
	return event.Record{}, false
}

func (f *assetFeed) popExch() (event.Record, bool) {
	r, ok := f.peekExch()
	if ok {
		f.exchIdx++
	}
	return r, ok
}

// AssetConfig is everything the driver needs to stand up one asset's
// local/exchange processor pair.
type AssetConfig struct {
	Ticker        depth.Ticker
	Records       []event.Record
	Latency       latency.Model
	ExchangeConfig exchproc.Config
	FeeModel      fees.Model
	AssetType     fees.AssetType

	// Metrics is optional instrumentation threaded onto this asset's
	// exchange processor; nil disables it (metrics.EngineMetrics's
	// methods are nil-receiver-safe).
	Metrics *metrics.EngineMetrics
}

type assetState struct {
	feed  *assetFeed
	local *localproc.Processor
	exch  *exchproc.Processor
	bus   *order.Pair
	state *fees.StateValues
	model latency.Model

	// prevExecuted tracks each order's last-seen cumulative executed
	// quantity so StateValues.ApplyFill is driven by the increment a
	// response actually represents, not PollResponses' cumulative total.
	prevExecuted map[uint64]float64
}

// Driver is the single-threaded, cooperative backtest runtime (spec
// §5: "no parallelism inside the driver; the scheduler deterministically
// interleaves components").
type Driver struct {
	sched     *scheduler.Scheduler
	assets    []*assetState
	currentTs int64
	stepped   bool
}

// New constructs a multi-asset backtest driver and loads the first
// event for each asset's local and exchange views (spec §4.9
// "Initialization").
func New(configs []AssetConfig) (*Driver, error) {
	d := &Driver{sched: scheduler.New(len(configs))}
	for i, cfg := range configs {
		bus := order.NewPair()
		exch, err := exchproc.New(cfg.ExchangeConfig, bus, cfg.Latency)
		if err != nil {
			return nil, err
		}
		exch.Metrics = cfg.Metrics
		as := &assetState{
			feed:         &assetFeed{records: cfg.Records},
			local:        localproc.New(cfg.Ticker, bus, cfg.Latency),
			exch:         exch,
			bus:          bus,
			state:        &fees.StateValues{AssetType: cfg.AssetType, FeeModel: cfg.FeeModel},
			model:        cfg.Latency,
			prevExecuted: make(map[uint64]float64),
		}
		d.assets = append(d.assets, as)

		if r, ok := as.feed.peekLocal(); ok {
			d.sched.UpdateLocalData(i, r.LocalTs)
		} else {
			d.sched.InvalidateLocalData(i)
		}
		if r, ok := as.feed.peekExch(); ok {
			d.sched.UpdateExchData(i, r.ExchTs)
		} else {
			d.sched.InvalidateExchData(i)
		}
	}
	return d, nil
}

// CurrentTimestamp returns the driver's virtual clock.
func (d *Driver) CurrentTimestamp() int64 { return d.currentTs }

// Depth returns asset's strategy-visible depth.
func (d *Driver) Depth(asset int) *depth.L2 { return d.assets[asset].local.Depth }

// Position returns asset's net position.
func (d *Driver) Position(asset int) float64 { return d.assets[asset].state.Position }

// StateValues returns asset's full P&L accumulator.
func (d *Driver) StateValues(asset int) *fees.StateValues { return d.assets[asset].state }

// Orders returns asset's locally tracked order set.
func (d *Driver) Orders(asset int) map[uint64]*order.Order { return d.assets[asset].local.Orders }

// LastTrades returns asset's accumulated trade-tape records since the
// last ClearLastTrades.
func (d *Driver) LastTrades(asset int) []event.Record { return d.assets[asset].local.LastTrades }

// ClearLastTrades empties asset's trade buffer.
func (d *Driver) ClearLastTrades(asset int) { d.assets[asset].local.ClearLastTrades() }

// ClearInactiveOrders drops every terminal order from asset's tracked set.
func (d *Driver) ClearInactiveOrders(asset int) { d.assets[asset].local.ClearInactiveOrders() }

// FeedLatency and OrderLatency expose the shared latency model for the
// asset, letting a strategy inspect what it will be charged without
// submitting an order (spec §6).
func (d *Driver) FeedLatency(asset int) latency.Model  { return d.assets[asset].model }
func (d *Driver) OrderLatency(asset int) latency.Model { return d.assets[asset].model }

// SubmitBuyOrder and SubmitSellOrder place a limit/market order on
// asset and, if wait is true, block (within goto's bounds) until a
// terminal or first response for it is observed.
func (d *Driver) SubmitBuyOrder(asset int, id uint64, price, qty float64, tif order.TIF, typ order.Type, wait bool) error {
	return d.submit(asset, id, order.Buy, price, qty, tif, typ, wait)
}

func (d *Driver) SubmitSellOrder(asset int, id uint64, price, qty float64, tif order.TIF, typ order.Type, wait bool) error {
	return d.submit(asset, id, order.Sell, price, qty, tif, typ, wait)
}

func (d *Driver) submit(asset int, id uint64, side order.Side, price, qty float64, tif order.TIF, typ order.Type, wait bool) error {
	as := d.assets[asset]
	ticker := as.local.Ticker
	o := order.New(id, side, typ, tif, ticker, price, qty, d.currentTs)
	if err := as.local.SubmitOrder(o); err != nil {
		return err
	}
	d.refreshExchOrderSlot(asset)
	d.refreshLocalOrderSlot(asset)
	if wait {
		_, err := d.WaitOrderResponse(asset, id, 1<<62)
		return err
	}
	return nil
}

// Cancel requests cancellation of asset's order id.
func (d *Driver) Cancel(asset int, id uint64, wait bool) error {
	as := d.assets[asset]
	if err := as.local.CancelOrder(id, d.currentTs); err != nil {
		return err
	}
	d.refreshExchOrderSlot(asset)
	d.refreshLocalOrderSlot(asset)
	if wait {
		_, err := d.WaitOrderResponse(asset, id, 1<<62)
		return err
	}
	return nil
}

func (d *Driver) refreshExchOrderSlot(asset int) {
	as := d.assets[asset]
	if ts, ok := as.bus.ToExch.PeekEarliest(); ok {
		d.sched.UpdateExchOrder(asset, ts)
	} else {
		d.sched.Update(asset, scheduler.ExchOrder, scheduler.Inf)
	}
}

func (d *Driver) refreshLocalOrderSlot(asset int) {
	as := d.assets[asset]
	if ts, ok := as.bus.ToLocal.PeekEarliest(); ok {
		d.sched.UpdateLocalOrder(asset, ts)
	} else {
		d.sched.Update(asset, scheduler.LocalOrder, scheduler.Inf)
	}
}

// Elapse drives the virtual clock forward by durationNs with no
// response to wait for (spec §4.9).
func (d *Driver) Elapse(durationNs int64) (bool, error) {
	return d.goTo(d.currentTs+durationNs, Wait{Mode: WaitNone})
}

// ElapseBT is the backtest-only entry point named in spec §6's
// strategy-facing interface; the interface is explicitly identical
// between backtest and live (spec §4.11), and the backtest driver has
// no wall-clock to differentiate, so it behaves exactly like Elapse.
func (d *Driver) ElapseBT(durationNs int64) (bool, error) {
	return d.Elapse(durationNs)
}

// WaitOrderResponse drives goto(current+timeoutNs, order-id) (spec §4.9).
func (d *Driver) WaitOrderResponse(asset int, id uint64, timeoutNs int64) (bool, error) {
	return d.goTo(d.currentTs+timeoutNs, Wait{Mode: WaitID, OrderID: id})
}

// WaitNextFeed advances until any data slot ticks, or (if includeResp)
// until any local-order slot ticks, whichever comes first, bounded by
// timeoutNs (spec §4.9). It returns false once no events remain.
func (d *Driver) WaitNextFeed(includeResp bool, timeoutNs int64) (bool, error) {
	target := d.currentTs + timeoutNs
	for {
		ev, ok := d.sched.Next()
		if !ok {
			return false, nil
		}
		if ev.Ts > target {
			d.currentTs = target
			return true, nil
		}
		isFeed := ev.Slot == scheduler.LocalData || ev.Slot == scheduler.ExchData
		isResp := includeResp && ev.Slot == scheduler.LocalOrder
		if _, err := d.step(ev); err != nil {
			return false, err
		}
		if isFeed || isResp {
			return true, nil
		}
	}
}

// Close is a no-op for the backtest driver: there is no IPC connection
// to tear down (spec §4.11 contrasts this with the live bot).
func (d *Driver) Close() error { return nil }

// goTo implements the §4.9 goto(target_ts, wait) loop exactly: step 2's
// early return on exceeding target_ts only fires for WAIT_NONE. A
// WAIT_ANY/specific-id wait keeps dispatching past target_ts until the
// matching response is drained or the scheduler runs out of events --
// target_ts there bounds the virtual clock the caller asked to reach,
// not how long the wait may run.
func (d *Driver) goTo(targetTs int64, wait Wait) (bool, error) {
	for {
		ev, ok := d.sched.Next()
		if !ok {
			return false, nil
		}
		if ev.Ts > targetTs && wait.Mode == WaitNone {
			d.currentTs = targetTs
			return true, nil
		}
		matchedID, err := d.step(ev)
		if err != nil {
			return false, err
		}
		if ev.Slot == scheduler.LocalOrder {
			if wait.Mode == WaitAny || (wait.Mode == WaitID && matchedID == wait.OrderID) {
				return true, nil
			}
		}
	}
}

// step dispatches the single earliest scheduled event and refreshes its
// slot, returning the order id touched for LocalOrder dispatches (0
// otherwise, since order ids are user-chosen and spec does not reserve
// 0; WAIT_ANY callers never compare against this return value).
func (d *Driver) step(ev scheduler.Next) (uint64, error) {
	as := d.assets[ev.Asset]
	as.exch.Metrics.EventProcessed(ev.Slot.String())
	if d.stepped {
		as.exch.Metrics.ObserveStep(float64(ev.Ts - d.currentTs))
	}
	d.stepped = true
	d.currentTs = ev.Ts

	switch ev.Slot {
	case scheduler.LocalData:
		r, ok := as.feed.popLocal()
		if !ok {
			return 0, hfterrors.New(hfterrors.EndOfData, "local feed exhausted")
		}
		if err := as.local.ApplyFeed(r); err != nil {
			return 0, err
		}
		if nr, ok := as.feed.peekLocal(); ok {
			d.sched.UpdateLocalData(ev.Asset, nr.LocalTs)
		} else {
			d.sched.InvalidateLocalData(ev.Asset)
		}
	case scheduler.ExchData:
		r, ok := as.feed.popExch()
		if !ok {
			return 0, hfterrors.New(hfterrors.EndOfData, "exchange feed exhausted")
		}
		if err := as.exch.ApplyFeed(r); err != nil {
			return 0, err
		}
		if nr, ok := as.feed.peekExch(); ok {
			d.sched.UpdateExchData(ev.Asset, nr.ExchTs)
		} else {
			d.sched.InvalidateExchData(ev.Asset)
		}
		// A depth/trade feed record can fill a resting order and push a
		// response onto the local bus (e.g. a queue-position model
		// reaching the front), so the local-order slot needs refreshing
		// here too, not only after a LocalOrder dispatch.
		d.refreshLocalOrderSlot(ev.Asset)
	case scheduler.ExchOrder:
		as.exch.PollRequests(ev.Ts)
		d.refreshExchOrderSlot(ev.Asset)
		d.refreshLocalOrderSlot(ev.Asset)
	case scheduler.LocalOrder:
		touched := as.local.PollResponses(ev.Ts)
		for _, o := range touched {
			prev := as.prevExecuted[o.ID]
			delta := o.ExecutedQty - prev
			if delta > 1e-9 {
				as.state.ApplyFill(o, delta, o.Ticker.TickToPrice(o.ExecutedTick))
				as.prevExecuted[o.ID] = o.ExecutedQty
			}
			if o.Status.IsTerminal() {
				delete(as.prevExecuted, o.ID)
			}
		}
		d.refreshLocalOrderSlot(ev.Asset)
		if len(touched) > 0 {
			return touched[len(touched)-1].ID, nil
		}
	}
	return 0, nil
}
