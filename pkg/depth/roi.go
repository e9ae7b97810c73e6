package depth

// ROI is the region-of-interest vector instantiation: a pre-sized,
// tick-indexed dense array bounded to [roiLowerBound, roiUpperBound].
// Updates outside the band are discarded, trading generality for
// allocation-free throughput when a strategy only ever needs a fixed
// price band (spec §3).
type ROI struct {
	Ticker

	roiLowerTick int64
	roiUpperTick int64

	bid []float64 // index 0 == roiLowerTick
	ask []float64

	bestBidTick int64
	bestAskTick int64
}

// NewROI constructs a ROI-bounded book. roiLowerPrice/roiUpperPrice are
// inclusive price bounds converted to ticks at construction time.
func NewROI(t Ticker, roiLowerPrice, roiUpperPrice float64) *ROI {
	lo := t.PriceToTick(roiLowerPrice)
	hi := t.PriceToTick(roiUpperPrice)
	n := int(hi-lo) + 1
	if n < 0 {
		n = 0
	}
	return &ROI{
		Ticker:       t,
		roiLowerTick: lo,
		roiUpperTick: hi,
		bid:          make([]float64, n),
		ask:          make([]float64, n),
		bestBidTick:  MinNone,
		bestAskTick:  MaxNone,
	}
}

func (d *ROI) inBounds(tick int64) bool {
	return tick >= d.roiLowerTick && tick <= d.roiUpperTick
}

func (d *ROI) idx(tick int64) int { return int(tick - d.roiLowerTick) }

// BestBidTick returns the current best bid tick within the ROI, or
// MinNone.
func (d *ROI) BestBidTick() int64 { return d.bestBidTick }

// BestAskTick returns the current best ask tick within the ROI, or
// MaxNone.
func (d *ROI) BestAskTick() int64 { return d.bestAskTick }

// Update applies a (side, price, qty, ts) observation; ticks outside the
// ROI are silently discarded per spec §3.
func (d *ROI) Update(side Side, price, qty float64, ts int64) (UpdateResult, bool) {
	tick := d.PriceToTick(price)
	if !d.inBounds(tick) {
		return UpdateResult{}, false
	}
	qty = d.RoundLot(qty)
	book := d.bid
	if side == SideSell {
		book = d.ask
	}
	i := d.idx(tick)
	prevQty := book[i]
	book[i] = qty

	var prevBest, newBest int64
	if side == SideBuy {
		prevBest = d.bestBidTick
		d.repairBid(tick, qty)
		newBest = d.bestBidTick
	} else {
		prevBest = d.bestAskTick
		d.repairAsk(tick, qty)
		newBest = d.bestAskTick
	}
	return UpdateResult{Tick: tick, PrevBestTick: prevBest, NewBestTick: newBest, PrevQty: prevQty, NewQty: qty, Ts: ts}, true
}

func (d *ROI) repairBid(tick int64, newQty float64) {
	if newQty <= 0 {
		if tick != d.bestBidTick {
			return
		}
		for t := tick - 1; t >= d.roiLowerTick; t-- {
			if d.bid[d.idx(t)] > 0 {
				d.bestBidTick = t
				return
			}
		}
		d.bestBidTick = MinNone
		return
	}
	if d.bestBidTick == MinNone || tick > d.bestBidTick {
		d.bestBidTick = tick
	}
}

func (d *ROI) repairAsk(tick int64, newQty float64) {
	if newQty <= 0 {
		if tick != d.bestAskTick {
			return
		}
		for t := tick + 1; t <= d.roiUpperTick; t++ {
			if d.ask[d.idx(t)] > 0 {
				d.bestAskTick = t
				return
			}
		}
		d.bestAskTick = MaxNone
		return
	}
	if d.bestAskTick == MaxNone || tick < d.bestAskTick {
		d.bestAskTick = tick
	}
}

// QtyAt returns the resting quantity at a tick, or 0 if outside the ROI.
func (d *ROI) QtyAt(side Side, tick int64) float64 {
	if !d.inBounds(tick) {
		return 0
	}
	if side == SideBuy {
		return d.bid[d.idx(tick)]
	}
	return d.ask[d.idx(tick)]
}

// Valid reports the best-bid < best-ask invariant.
func (d *ROI) Valid() bool {
	if d.bestBidTick == MinNone || d.bestAskTick == MaxNone {
		return true
	}
	return d.bestBidTick < d.bestAskTick
}
