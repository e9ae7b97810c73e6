// Package scheduler implements the per-asset 4-slot event scheduler from
// spec §4.8: a length-4N timestamp table that always hands the earliest
// pending event to the backtest driver, breaking ties by slot order so
// that data is applied before order processing at equal timestamps.
package scheduler

import "math"

// Slot identifies one of the four event streams tracked per asset. The
// declared order IS the tie-break order (spec §4.8: "ties broken by
// slot-index order ... ensuring data is applied before order processing
// at equal timestamps").
type Slot int8

const (
	LocalData Slot = iota
	LocalOrder
	ExchData
	ExchOrder
	numSlots
)

// Inf is the sentinel "no pending event" timestamp.
const Inf = math.MaxInt64

// Next is the (asset, slot) pair returned by Scheduler.Next.
type Next struct {
	Asset int
	Slot  Slot
	Ts    int64
}

// Scheduler holds the 4N-entry timestamp table, N = number of assets.
type Scheduler struct {
	table []int64 // len == 4*numAssets, indexed asset*4 + int(slot)
}

// New constructs a scheduler for numAssets assets, every slot initialized
// to +Inf (spec §3).
func New(numAssets int) *Scheduler {
	t := make([]int64, int(numSlots)*numAssets)
	for i := range t {
		t[i] = Inf
	}
	return &Scheduler{table: t}
}

func (s *Scheduler) index(asset int, slot Slot) int { return asset*int(numSlots) + int(slot) }

// Next performs an O(N) linear scan and returns the slot with the
// minimum timestamp, with ties broken by slot-index order. Returns
// ok=false if every slot is at Inf.
func (s *Scheduler) Next() (Next, bool) {
	best := Next{Ts: Inf}
	found := false
	for i, ts := range s.table {
		if ts >= Inf {
			continue
		}
		if !found || ts < best.Ts {
			best = Next{Asset: i / int(numSlots), Slot: Slot(i % int(numSlots)), Ts: ts}
			found = true
		}
	}
	return best, found
}

// Update writes ts into the given asset/slot.
func (s *Scheduler) Update(asset int, slot Slot, ts int64) {
	s.table[s.index(asset, slot)] = ts
}

// UpdateLocalData sets the local-data slot for asset.
func (s *Scheduler) UpdateLocalData(asset int, ts int64) { s.Update(asset, LocalData, ts) }

// UpdateLocalOrder sets the local-order slot for asset.
func (s *Scheduler) UpdateLocalOrder(asset int, ts int64) { s.Update(asset, LocalOrder, ts) }

// UpdateExchData sets the exch-data slot for asset.
func (s *Scheduler) UpdateExchData(asset int, ts int64) { s.Update(asset, ExchData, ts) }

// UpdateExchOrder sets the exch-order slot for asset.
func (s *Scheduler) UpdateExchOrder(asset int, ts int64) { s.Update(asset, ExchOrder, ts) }

// InvalidateLocalData sets the local-data slot to +Inf (end of tape).
func (s *Scheduler) InvalidateLocalData(asset int) { s.Update(asset, LocalData, Inf) }

// InvalidateExchData sets the exch-data slot to +Inf (end of tape).
func (s *Scheduler) InvalidateExchData(asset int) { s.Update(asset, ExchData, Inf) }

// Peek returns the current value of a slot without mutating anything.
func (s *Scheduler) Peek(asset int, slot Slot) int64 { return s.table[s.index(asset, slot)] }

// String names a slot the way callers label it externally (e.g. the
// per-slot dispatch counter in internal/metrics).
func (s Slot) String() string {
	switch s {
	case LocalData:
		return "local_data"
	case LocalOrder:
		return "local_order"
	case ExchData:
		return "exch_data"
	case ExchOrder:
		return "exch_order"
	default:
		return "unknown"
	}
}
