package depth

import "fmt"

// L3Order is a single resting order as tracked by the L3 book (spec §3).
type L3Order struct {
	OrderID uint64
	Side    Side
	Tick    int64
	Qty     float64
	Ts      int64
}

// L3 is the order-by-order depth representation: a map of order id to
// L3Order plus an aggregate price->qty book, kept consistent on every
// mutation (spec §4.2 invariant: sum of order qty at a tick equals the
// aggregate qty at that tick).
type L3 struct {
	Ticker

	orders map[uint64]*L3Order
	aggBid map[int64]float64
	aggAsk map[int64]float64

	bestBidTick int64
	bestAskTick int64
	lowBidTick  int64
	highAskTick int64
}

// NewL3 constructs an empty L3 book.
func NewL3(t Ticker) *L3 {
	return &L3{
		Ticker:      t,
		orders:      make(map[uint64]*L3Order),
		aggBid:      make(map[int64]float64),
		aggAsk:      make(map[int64]float64),
		bestBidTick: MinNone,
		bestAskTick: MaxNone,
		lowBidTick:  MaxNone,
		highAskTick: MinNone,
	}
}

// BestBidTick returns the current best bid tick.
func (d *L3) BestBidTick() int64 { return d.bestBidTick }

// BestAskTick returns the current best ask tick.
func (d *L3) BestAskTick() int64 { return d.bestAskTick }

// OrderAt returns the order record for an id, if present.
func (d *L3) OrderAt(id uint64) (*L3Order, bool) {
	o, ok := d.orders[id]
	return o, ok
}

// OrdersAtTick returns every resting order on side at tick, in no
// particular order; callers needing arrival order should compare Ts.
func (d *L3) OrdersAtTick(side Side, tick int64) []*L3Order {
	var out []*L3Order
	for _, o := range d.orders {
		if o.Side == side && o.Tick == tick {
			out = append(out, o)
		}
	}
	return out
}

// AggQtyAt returns the aggregate resting quantity at a tick.
func (d *L3) AggQtyAt(side Side, tick int64) float64 {
	if side == SideBuy {
		return d.aggBid[tick]
	}
	return d.aggAsk[tick]
}

func (d *L3) aggBook(side Side) map[int64]float64 {
	if side == SideBuy {
		return d.aggBid
	}
	return d.aggAsk
}

// AddBuy adds a new resting buy order. Errors if the id already exists.
func (d *L3) AddBuy(id uint64, price, qty float64, ts int64) (prevBest, newBest int64, err error) {
	return d.add(id, SideBuy, price, qty, ts)
}

// AddSell adds a new resting sell order. Errors if the id already exists.
func (d *L3) AddSell(id uint64, price, qty float64, ts int64) (prevBest, newBest int64, err error) {
	return d.add(id, SideSell, price, qty, ts)
}

func (d *L3) add(id uint64, side Side, price, qty float64, ts int64) (int64, int64, error) {
	if _, exists := d.orders[id]; exists {
		return 0, 0, fmt.Errorf("depth: order id %d already exists", id)
	}
	tick := d.PriceToTick(price)
	qty = d.RoundLot(qty)
	d.orders[id] = &L3Order{OrderID: id, Side: side, Tick: tick, Qty: qty, Ts: ts}
	agg := d.aggBook(side)
	prevBest := d.bestOf(side)
	agg[tick] += qty
	d.promote(side, tick, agg[tick])
	if side == SideBuy && (d.lowBidTick == MaxNone || tick < d.lowBidTick) {
		d.lowBidTick = tick
	}
	if side == SideSell && (d.highAskTick == MinNone || tick > d.highAskTick) {
		d.highAskTick = tick
	}
	return prevBest, d.bestOf(side), nil
}

// Delete removes a resting order, repairing the best-of-side if needed.
func (d *L3) Delete(id uint64, ts int64) (side Side, prevBest, newBest int64, err error) {
	o, ok := d.orders[id]
	if !ok {
		return SideNone, 0, 0, fmt.Errorf("depth: order id %d not found", id)
	}
	delete(d.orders, id)
	agg := d.aggBook(o.Side)
	prevBest = d.bestOf(o.Side)
	agg[o.Tick] -= o.Qty
	if agg[o.Tick] <= 1e-12 {
		delete(agg, o.Tick)
	}
	d.repairDeleted(o.Side, o.Tick)
	return o.Side, prevBest, d.bestOf(o.Side), nil
}

// Modify changes a resting order's price and/or quantity. If the price is
// unchanged, the aggregate is adjusted by the quantity delta; otherwise
// the order is deleted and re-added atomically at the new price.
func (d *L3) Modify(id uint64, price, qty float64, ts int64) (prevBest, newBest int64, err error) {
	o, ok := d.orders[id]
	if !ok {
		return 0, 0, fmt.Errorf("depth: order id %d not found", id)
	}
	newTick := d.PriceToTick(price)
	newQty := d.RoundLot(qty)
	side := o.Side
	agg := d.aggBook(side)

	if newTick == o.Tick {
		prevBest = d.bestOf(side)
		delta := newQty - o.Qty
		agg[o.Tick] += delta
		if agg[o.Tick] <= 1e-12 {
			delete(agg, o.Tick)
		}
		o.Qty = newQty
		o.Ts = ts
		d.repairDeleted(side, o.Tick) // handles the case newQty==0 removed the best
		if newQty > 0 {
			d.promote(side, o.Tick, agg[o.Tick])
		}
		return prevBest, d.bestOf(side), nil
	}

	// delete then add atomically
	prevBest = d.bestOf(side)
	agg[o.Tick] -= o.Qty
	if agg[o.Tick] <= 1e-12 {
		delete(agg, o.Tick)
	}
	d.repairDeleted(side, o.Tick)
	o.Tick = newTick
	o.Qty = newQty
	o.Ts = ts
	if newQty > 0 {
		agg[newTick] += newQty
		d.promote(side, newTick, agg[newTick])
		if side == SideBuy && (d.lowBidTick == MaxNone || newTick < d.lowBidTick) {
			d.lowBidTick = newTick
		}
		if side == SideSell && (d.highAskTick == MinNone || newTick > d.highAskTick) {
			d.highAskTick = newTick
		}
	} else {
		delete(d.orders, id)
	}
	return prevBest, d.bestOf(side), nil
}

// Clear drops all orders on a side (or both, for SideNone).
func (d *L3) Clear(side Side) {
	if side == SideNone {
		d.orders = make(map[uint64]*L3Order)
		d.aggBid = make(map[int64]float64)
		d.aggAsk = make(map[int64]float64)
		d.bestBidTick, d.bestAskTick = MinNone, MaxNone
		d.lowBidTick, d.highAskTick = MaxNone, MinNone
		return
	}
	for id, o := range d.orders {
		if o.Side == side {
			delete(d.orders, id)
		}
	}
	if side == SideBuy {
		d.aggBid = make(map[int64]float64)
		d.bestBidTick = MinNone
		d.lowBidTick = MaxNone
	} else {
		d.aggAsk = make(map[int64]float64)
		d.bestAskTick = MaxNone
		d.highAskTick = MinNone
	}
}

func (d *L3) bestOf(side Side) int64 {
	if side == SideBuy {
		return d.bestBidTick
	}
	return d.bestAskTick
}

func (d *L3) promote(side Side, tick int64, qty float64) {
	if qty <= 0 {
		return
	}
	if side == SideBuy {
		if d.bestBidTick == MinNone || tick > d.bestBidTick {
			d.bestBidTick = tick
		}
	} else {
		if d.bestAskTick == MaxNone || tick < d.bestAskTick {
			d.bestAskTick = tick
		}
	}
}

func (d *L3) repairDeleted(side Side, tick int64) {
	agg := d.aggBook(side)
	if side == SideBuy {
		if tick != d.bestBidTick {
			return
		}
		if q, ok := agg[tick]; ok && q > 0 {
			return
		}
		for t := tick - 1; t >= d.lowBidTick; t-- {
			if q, ok := agg[t]; ok && q > 0 {
				d.bestBidTick = t
				return
			}
		}
		d.bestBidTick = MinNone
	} else {
		if tick != d.bestAskTick {
			return
		}
		if q, ok := agg[tick]; ok && q > 0 {
			return
		}
		for t := tick + 1; t <= d.highAskTick; t++ {
			if q, ok := agg[t]; ok && q > 0 {
				d.bestAskTick = t
				return
			}
		}
		d.bestAskTick = MaxNone
	}
}

// Valid reports the best-bid < best-ask invariant and the per-tick
// sum-of-orders-equals-aggregate invariant.
func (d *L3) Valid() bool {
	if d.bestBidTick != MinNone && d.bestAskTick != MaxNone && d.bestBidTick >= d.bestAskTick {
		return false
	}
	bidSums := make(map[int64]float64)
	askSums := make(map[int64]float64)
	for _, o := range d.orders {
		if o.Side == SideBuy {
			bidSums[o.Tick] += o.Qty
		} else {
			askSums[o.Tick] += o.Qty
		}
	}
	for t, q := range d.aggBid {
		if bidSums[t] != q {
			return false
		}
	}
	for t, q := range d.aggAsk {
		if askSums[t] != q {
			return false
		}
	}
	return true
}
