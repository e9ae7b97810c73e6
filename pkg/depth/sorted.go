package depth

import "sort"

// Sorted is the sorted-key instantiation of market depth: an ordered map
// per side where the extremal keys are the bests directly, trading the
// dense form's O(1) update for an O(log n) key search (plus a slice
// shift on insert/delete) with no repair scan. No third-party ordered-map/btree library is present anywhere in
// the reference pack (Masterminds/semver, gonum, etc. offer no such
// structure), so this stays on the standard library `sort` package by
// necessity — see DESIGN.md.
type Sorted struct {
	Ticker

	bidQty  map[int64]float64
	askQty  map[int64]float64
	bidKeys []int64 // ascending
	askKeys []int64 // ascending
}

// NewSorted constructs an empty sorted-key book.
func NewSorted(t Ticker) *Sorted {
	return &Sorted{
		Ticker: t,
		bidQty: make(map[int64]float64),
		askQty: make(map[int64]float64),
	}
}

func insertSorted(keys []int64, tick int64) []int64 {
	i := sort.Search(len(keys), func(i int) bool { return keys[i] >= tick })
	if i < len(keys) && keys[i] == tick {
		return keys
	}
	keys = append(keys, 0)
	copy(keys[i+1:], keys[i:])
	keys[i] = tick
	return keys
}

func removeSorted(keys []int64, tick int64) []int64 {
	i := sort.Search(len(keys), func(i int) bool { return keys[i] >= tick })
	if i < len(keys) && keys[i] == tick {
		return append(keys[:i], keys[i+1:]...)
	}
	return keys
}

// Update applies a (side, price, qty, ts) observation.
func (d *Sorted) Update(side Side, price, qty float64, ts int64) UpdateResult {
	tick := d.PriceToTick(price)
	qty = d.RoundLot(qty)

	var qtyMap map[int64]float64
	var keys *[]int64
	if side == SideBuy {
		qtyMap, keys = d.bidQty, &d.bidKeys
	} else {
		qtyMap, keys = d.askQty, &d.askKeys
	}

	prevBest := d.bestTickOf(side)
	prevQty := qtyMap[tick]

	if qty <= 0 {
		if _, ok := qtyMap[tick]; ok {
			delete(qtyMap, tick)
			*keys = removeSorted(*keys, tick)
		}
	} else {
		if _, ok := qtyMap[tick]; !ok {
			*keys = insertSorted(*keys, tick)
		}
		qtyMap[tick] = qty
	}

	newBest := d.bestTickOf(side)
	return UpdateResult{Tick: tick, PrevBestTick: prevBest, NewBestTick: newBest, PrevQty: prevQty, NewQty: qty, Ts: ts}
}

func (d *Sorted) bestTickOf(side Side) int64 {
	if side == SideBuy {
		if len(d.bidKeys) == 0 {
			return MinNone
		}
		return d.bidKeys[len(d.bidKeys)-1]
	}
	if len(d.askKeys) == 0 {
		return MaxNone
	}
	return d.askKeys[0]
}

// BestBidTick returns the highest bid key, or MinNone if empty.
func (d *Sorted) BestBidTick() int64 { return d.bestTickOf(SideBuy) }

// BestAskTick returns the lowest ask key, or MaxNone if empty.
func (d *Sorted) BestAskTick() int64 { return d.bestTickOf(SideSell) }

// QtyAt returns the quantity resting at a tick.
func (d *Sorted) QtyAt(side Side, tick int64) float64 {
	if side == SideBuy {
		return d.bidQty[tick]
	}
	return d.askQty[tick]
}

// Valid reports the best-bid < best-ask invariant.
func (d *Sorted) Valid() bool {
	b, a := d.BestBidTick(), d.BestAskTick()
	if b == MinNone || a == MaxNone {
		return true
	}
	return b < a
}
