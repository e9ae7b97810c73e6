// Package order implements the exchange-facing order entity, its state
// machine, and the latency-interposed bus pair that connects a local
// processor to an exchange processor (spec §3, §4.3).
package order

import "github.com/hftbacktest-go/hftbacktest/pkg/depth"

// Side mirrors depth.Side for readability at call sites that only deal in
// orders.
type Side = depth.Side

const (
	Buy  = depth.SideBuy
	Sell = depth.SideSell
)

// Type is the order type.
type Type int8

const (
	Limit Type = iota
	Market
)

// TIF is the time-in-force.
type TIF int8

const (
	GTC TIF = iota // good till canceled
	GTX             // post-only, rejected if marketable
	IOC             // immediate or cancel
	FOK             // fill or kill
)

// Status is the order lifecycle status (spec §3).
type Status int8

const (
	StatusNone Status = iota
	StatusNew
	StatusPartiallyFilled
	StatusFilled
	StatusCanceled
	StatusExpired
)

// IsTerminal reports whether status is one of the terminal states.
func (s Status) IsTerminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusExpired
}

// PendingRequest is the in-flight request-intent flag (spec §3).
type PendingRequest int8

const (
	ReqNone PendingRequest = iota
	ReqNew
	ReqCanceled
	ReqReplaced
)

// QueuePos is an opaque per-order slot set only by the matching exchange
// processor's queue model (spec §9: "queue position as opaque per-order
// state"). Each queue model stores its own concrete type behind this
// interface; the order and the rest of the core never inspect it.
type QueuePos interface {
	// Fillable reports whether the resting order's estimated queue
	// position has reached the front. The queue models in pkg/queue test
	// front-queue <= 1e-9; the estimate is not rounded to the lot size.
	Fillable() bool
}

// Order is the exchange-facing order entity (spec §3).
type Order struct {
	ID       uint64
	Side     Side
	Type     Type
	TIF      TIF
	Tick     int64
	depth.Ticker

	OriginalQty    float64
	LeavesQty      float64
	ExecutedQty    float64
	ExecutedTick   int64
	Status         Status
	Req            PendingRequest
	ExchTs         int64
	LocalTs        int64
	Maker          bool
	Queue          QueuePos
	ClientOrderID  string
}

// New constructs a fresh order in status=None, req=New, as placed by the
// strategy (spec §3 lifecycle).
func New(id uint64, side Side, typ Type, tif TIF, ticker depth.Ticker, price, qty float64, ts int64) *Order {
	return &Order{
		ID:          id,
		Side:        side,
		Type:        typ,
		TIF:         tif,
		Ticker:      ticker,
		Tick:        ticker.PriceToTick(price),
		OriginalQty: qty,
		LeavesQty:   qty,
		Status:      StatusNone,
		Req:         ReqNew,
		LocalTs:     ts,
	}
}

// Price returns the limit price implied by Tick.
func (o *Order) Price() float64 { return o.TickToPrice(o.Tick) }

// CheckInvariant verifies leaves+exec ~= original within lot tolerance
// (spec §8 universal invariant 1).
func (o *Order) CheckInvariant() bool {
	sum := o.LeavesQty + o.ExecutedQty
	diff := sum - o.OriginalQty
	if diff < 0 {
		diff = -diff
	}
	tol := o.LotSize
	if tol <= 0 {
		tol = 1e-9
	}
	return diff <= tol+1e-9
}

// ApplyFill reduces leaves-qty and increases executed-qty by fillQty at
// execTick, updating status. It refuses to mutate a terminal order
// (spec §8 universal invariant 2).
func (o *Order) ApplyFill(fillQty float64, execTick int64, ts int64, maker bool) error {
	if o.Status.IsTerminal() {
		return ErrInvalidStatusForMutation
	}
	fillQty = o.RoundLot(fillQty)
	if fillQty <= 0 {
		return nil
	}
	if fillQty > o.LeavesQty {
		fillQty = o.LeavesQty
	}
	o.LeavesQty -= fillQty
	o.ExecutedQty += fillQty
	o.ExecutedTick = execTick
	o.ExchTs = ts
	o.Maker = maker
	if o.LeavesQty <= o.LotSize/2+1e-12 {
		o.LeavesQty = 0
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
	return nil
}

// Cancel transitions the order to Canceled. No-op (returns an error) if
// already terminal.
func (o *Order) Cancel(ts int64) error {
	if o.Status.IsTerminal() {
		return ErrInvalidStatusForMutation
	}
	o.Status = StatusCanceled
	o.ExchTs = ts
	return nil
}

// Expire transitions the order to Expired (used for GTX rejections,
// marketable replaces, exchange-side request rejections and live submit
// failures; IOC/FOK remainders are canceled instead).
func (o *Order) Expire(ts int64) error {
	if o.Status.IsTerminal() {
		return ErrInvalidStatusForMutation
	}
	o.Status = StatusExpired
	o.ExchTs = ts
	return nil
}

// Accept transitions a None/pending order to New (accepted by the
// exchange, resting or partially matched immediately).
func (o *Order) Accept(ts int64) {
	o.Status = StatusNew
	o.ExchTs = ts
}

// Clone returns a deep-enough copy suitable for round-tripping across the
// order bus without aliasing the original.
func (o *Order) Clone() *Order {
	cp := *o
	return &cp
}
