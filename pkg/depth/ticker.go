// Package depth implements the price-keyed quantity book described in
// spec §3/§4.2: a dense hashmap form, a sorted-key form, a region-of-
// interest (ROI) vector form, and the order-by-order L3 form, all sharing
// the same best-price self-repair semantics.
package depth

import "math"

// Sentinel ticks for "no best available on this side", matching spec §3's
// MIN_NONE / MAX_NONE.
const (
	MinNone = math.MinInt64
	MaxNone = math.MaxInt64
)

// Ticker centralizes the tick-size/lot-size rounding that spec's GLOSSARY
// names but the distilled spec never gives a concrete home to. Grounded
// on the original Rust implementation's `Ticker`/`px2qty`-style helpers
// (_examples/original_source/hftbacktest/src/types.rs) so every matching
// path snaps prices and quantities the same way instead of re-deriving
// rounding ad hoc.
type Ticker struct {
	TickSize float64
	LotSize  float64
}

// PriceToTick converts a price to its integer tick, rounding to the
// nearest representable tick.
func (t Ticker) PriceToTick(price float64) int64 {
	return int64(math.Round(price / t.TickSize))
}

// TickToPrice converts an integer tick back to a price.
func (t Ticker) TickToPrice(tick int64) float64 {
	return float64(tick) * t.TickSize
}

// RoundLot snaps a quantity down to the nearest whole lot. A quantity
// that rounds to zero lots is reported as exactly zero so callers can
// treat it as a deletion.
func (t Ticker) RoundLot(qty float64) float64 {
	if t.LotSize <= 0 {
		return qty
	}
	lots := math.Floor(qty/t.LotSize + 1e-9)
	if lots <= 0 {
		return 0
	}
	return lots * t.LotSize
}

// Side identifies book side. Depth and order operations take an explicit
// Side rather than relying on sign conventions.
type Side int8

const (
	SideNone Side = iota
	SideBuy
	SideSell
)

// Opposite returns the other side, or SideNone for SideNone.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideNone
	}
}
