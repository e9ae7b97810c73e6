package depth

// UpdateResult is returned by every depth mutation so observers (the
// exchange processor's queue-position updates, metrics) can react to the
// before/after state without re-reading the book.
type UpdateResult struct {
	Tick         int64
	PrevBestTick int64
	NewBestTick  int64
	PrevQty      float64
	NewQty       float64
	Ts           int64
}

// L2 is the dense hashmap instantiation of the market depth from spec
// §3/§4.2: a map per side plus four derived "best" and "extreme-so-far"
// ticks used to bound the O(range) repair scan when the current best is
// deleted.
type L2 struct {
	Ticker

	bid map[int64]float64
	ask map[int64]float64

	bestBidTick int64
	bestAskTick int64
	lowBidTick  int64 // lowest bid tick ever observed with qty>0, bounds the repair scan
	highAskTick int64 // highest ask tick ever observed with qty>0
}

// NewL2 constructs an empty dense L2 book.
func NewL2(t Ticker) *L2 {
	return &L2{
		Ticker:      t,
		bid:         make(map[int64]float64),
		ask:         make(map[int64]float64),
		bestBidTick: MinNone,
		bestAskTick: MaxNone,
		lowBidTick:  MaxNone,
		highAskTick: MinNone,
	}
}

// BestBidTick returns the current best bid tick, or MinNone if the bid
// side is empty.
func (d *L2) BestBidTick() int64 { return d.bestBidTick }

// BestAskTick returns the current best ask tick, or MaxNone if the ask
// side is empty.
func (d *L2) BestAskTick() int64 { return d.bestAskTick }

// QtyAt returns the resting quantity at a tick on the given side.
func (d *L2) QtyAt(side Side, tick int64) float64 {
	book := d.bookFor(side)
	return book[tick]
}

func (d *L2) bookFor(side Side) map[int64]float64 {
	if side == SideBuy {
		return d.bid
	}
	return d.ask
}

// Update applies a (side, price, qty, ts) observation, converting price to
// a tick and re-deriving the best-of-side ticks per spec §4.2.
func (d *L2) Update(side Side, price, qty float64, ts int64) UpdateResult {
	tick := d.PriceToTick(price)
	qty = d.RoundLot(qty)
	return d.UpdateTick(side, tick, qty, ts)
}

// UpdateTick is the tick-indexed form of Update, used when the tick is
// already known (e.g. replaying a recorded tape where ticks were
// precomputed).
func (d *L2) UpdateTick(side Side, tick int64, qty float64, ts int64) UpdateResult {
	book := d.bookFor(side)
	prevQty := book[tick]

	if qty <= 0 {
		delete(book, tick)
	} else {
		book[tick] = qty
	}

	res := UpdateResult{Tick: tick, PrevQty: prevQty, NewQty: qty, Ts: ts}

	switch side {
	case SideBuy:
		res.PrevBestTick = d.bestBidTick
		d.repairBidBest(tick, qty)
		res.NewBestTick = d.bestBidTick
		if qty > 0 && (d.lowBidTick == MaxNone || tick < d.lowBidTick) {
			d.lowBidTick = tick
		}
		if d.bestBidTick != MinNone && d.bestAskTick != MaxNone && d.bestBidTick >= d.bestAskTick {
			d.repairAskCrossedBy(d.bestBidTick)
		}
	case SideSell:
		res.PrevBestTick = d.bestAskTick
		d.repairAskBest(tick, qty)
		res.NewBestTick = d.bestAskTick
		if qty > 0 && (d.highAskTick == MinNone || tick > d.highAskTick) {
			d.highAskTick = tick
		}
		if d.bestBidTick != MinNone && d.bestAskTick != MaxNone && d.bestBidTick >= d.bestAskTick {
			d.repairBidCrossedBy(d.bestAskTick)
		}
	}
	return res
}

// repairBidBest implements the bid-side half of the §4.2 algorithm: if the
// tick just zeroed out was the best, scan downward (toward the tracked
// low) for the new best; if the tick just went positive and is better
// than the current best, promote it.
func (d *L2) repairBidBest(tick int64, newQty float64) {
	if newQty <= 0 {
		if tick != d.bestBidTick {
			return
		}
		for t := tick - 1; t >= d.lowBidTick; t-- {
			if q, ok := d.bid[t]; ok && q > 0 {
				d.bestBidTick = t
				return
			}
		}
		d.bestBidTick = MinNone
		d.lowBidTick = MaxNone
		return
	}
	if d.bestBidTick == MinNone || tick > d.bestBidTick {
		d.bestBidTick = tick
	}
}

func (d *L2) repairAskBest(tick int64, newQty float64) {
	if newQty <= 0 {
		if tick != d.bestAskTick {
			return
		}
		for t := tick + 1; t <= d.highAskTick; t++ {
			if q, ok := d.ask[t]; ok && q > 0 {
				d.bestAskTick = t
				return
			}
		}
		d.bestAskTick = MaxNone
		d.highAskTick = MinNone
		return
	}
	if d.bestAskTick == MaxNone || tick < d.bestAskTick {
		d.bestAskTick = tick
	}
}

// repairAskCrossedBy re-scans the ask side upward from crossingTick when a
// bid update has crossed the book, restoring best-bid < best-ask.
func (d *L2) repairAskCrossedBy(crossingTick int64) {
	for t := crossingTick + 1; t <= d.highAskTick; t++ {
		if q, ok := d.ask[t]; ok && q > 0 {
			d.bestAskTick = t
			return
		}
	}
	d.bestAskTick = MaxNone
}

func (d *L2) repairBidCrossedBy(crossingTick int64) {
	for t := crossingTick - 1; t >= d.lowBidTick; t-- {
		if q, ok := d.bid[t]; ok && q > 0 {
			d.bestBidTick = t
			return
		}
	}
	d.bestBidTick = MinNone
}

// ClearSide deletes every entry on a side from the current best back to
// (and including) uptoPrice, per spec §4.2's clear_depth. Passing
// SideNone wipes both books and resets extremes entirely.
func (d *L2) ClearSide(side Side, uptoPrice float64) {
	if side == SideNone {
		d.bid = make(map[int64]float64)
		d.ask = make(map[int64]float64)
		d.bestBidTick, d.bestAskTick = MinNone, MaxNone
		d.lowBidTick, d.highAskTick = MaxNone, MinNone
		return
	}
	uptoTick := d.PriceToTick(uptoPrice)
	if side == SideBuy {
		for t := range d.bid {
			if t >= uptoTick {
				delete(d.bid, t)
			}
		}
		d.bestBidTick = MinNone
		for t, q := range d.bid {
			if q > 0 && (d.bestBidTick == MinNone || t > d.bestBidTick) {
				d.bestBidTick = t
			}
		}
	} else {
		for t := range d.ask {
			if t <= uptoTick {
				delete(d.ask, t)
			}
		}
		d.bestAskTick = MaxNone
		for t, q := range d.ask {
			if q > 0 && (d.bestAskTick == MaxNone || t < d.bestAskTick) {
				d.bestAskTick = t
			}
		}
	}
}

// Valid reports the spec §8 invariant: whenever both bests exist, bid <
// ask.
func (d *L2) Valid() bool {
	if d.bestBidTick == MinNone || d.bestAskTick == MaxNone {
		return true
	}
	return d.bestBidTick < d.bestAskTick
}
