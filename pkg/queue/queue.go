// Package queue implements the pluggable queue-position models from spec
// §4.5: a risk-averse estimator and a probability-based estimator, each
// storing its own opaque per-order state behind order.QueuePos.
package queue

import (
	"math"

	"github.com/hftbacktest-go/hftbacktest/pkg/depth"
	"github.com/hftbacktest-go/hftbacktest/pkg/order"
)

// Model is invoked by the exchange processor on every resting order at a
// touched price (spec §4.7): NewOrder seeds the position when an order
// first rests, Trade accounts for executions at the order's price, and
// Depth accounts for depth changes there.
type Model interface {
	NewOrder(o *order.Order, d *depth.L2)
	Trade(o *order.Order, tradeQty float64, d *depth.L2)
	Depth(o *order.Order, prevQty, newQty float64)
}

// RiskAverse is the conservative estimator: front-queue starts as the
// full resting qty at the order's price and only ever decreases via
// trades at that price; an observed depth decrease below the remaining
// front-queue clamps the estimate down (spec §4.5).
type RiskAverse struct{}

type riskAversePos struct {
	front float64
}

// Fillable reports whether the front-queue has been exhausted.
func (p *riskAversePos) Fillable() bool { return p.front <= 1e-9 }

func (RiskAverse) NewOrder(o *order.Order, d *depth.L2) {
	front := d.QtyAt(o.Side, o.Tick)
	o.Queue = &riskAversePos{front: front}
}

func (RiskAverse) Trade(o *order.Order, tradeQty float64, d *depth.L2) {
	pos, ok := o.Queue.(*riskAversePos)
	if !ok {
		return
	}
	pos.front -= tradeQty
	if pos.front < 0 {
		pos.front = 0
	}
}

func (RiskAverse) Depth(o *order.Order, prevQty, newQty float64) {
	pos, ok := o.Queue.(*riskAversePos)
	if !ok {
		return
	}
	if newQty < pos.front {
		pos.front = newQty
	}
}

// ProbFunc is a pluggable "probability that cancellations fall behind us
// vs ahead of us" function, parameterized by (back, front) queue volumes
// (spec §4.5). The three named forms are constructed by ProbBackOverSum,
// ProbBackOverSumArg and ProbOneMinusFrontRatio below, composed with
// either PowWeight or LogWeight.
type ProbFunc func(back, front float64) float64

// PowWeight is f(x) = x^n, one of the two weighting functions spec §4.5
// names for building a ProbFunc.
func PowWeight(n float64) func(float64) float64 {
	return func(x float64) float64 { return math.Pow(x, n) }
}

// LogWeight is f(x) = ln(1+x), the other named weighting function.
func LogWeight() func(float64) float64 {
	return func(x float64) float64 { return math.Log1p(x) }
}

// ProbBackOverSum builds f(back)/(f(back)+f(front)).
func ProbBackOverSum(f func(float64) float64) ProbFunc {
	return func(back, front float64) float64 {
		fb, ff := f(back), f(front)
		if fb+ff == 0 {
			return 0
		}
		return fb / (fb + ff)
	}
}

// ProbBackOverSumArg builds f(back)/f(back+front).
func ProbBackOverSumArg(f func(float64) float64) ProbFunc {
	return func(back, front float64) float64 {
		denom := f(back + front)
		if denom == 0 {
			return 0
		}
		return f(back) / denom
	}
}

// ProbOneMinusFrontRatio builds 1 - f(front/(front+back)).
func ProbOneMinusFrontRatio(f func(float64) float64) ProbFunc {
	return func(back, front float64) float64 {
		total := front + back
		if total == 0 {
			return 0
		}
		return 1 - f(front/total)
	}
}

// Probability is the probability-based queue model (spec §4.5): it
// tracks (front_q_qty, cum_trade_qty) and, on organic depth changes
// (cancellations not accounted for by trades), attributes a fraction of
// the change to "ahead of us" using a pluggable ProbFunc.
type Probability struct {
	Prob ProbFunc
}

type probabilityPos struct {
	front    float64
	cumTrade float64
}

func (p *probabilityPos) Fillable() bool { return p.front <= 1e-9 }

func (m Probability) NewOrder(o *order.Order, d *depth.L2) {
	front := d.QtyAt(o.Side, o.Tick)
	o.Queue = &probabilityPos{front: front}
}

func (m Probability) Trade(o *order.Order, tradeQty float64, d *depth.L2) {
	pos, ok := o.Queue.(*probabilityPos)
	if !ok {
		return
	}
	pos.front -= tradeQty
	if pos.front < 0 {
		pos.front = 0
	}
	pos.cumTrade += tradeQty
}

func (m Probability) Depth(o *order.Order, prevQty, newQty float64) {
	pos, ok := o.Queue.(*probabilityPos)
	if !ok {
		return
	}
	chg := prevQty - newQty - pos.cumTrade
	if chg > 0 {
		p := m.Prob(backVolume(o), pos.front)
		ahead := (1-p)*chg + math.Min(0, pos.front-p*chg)
		pos.front -= ahead
		if pos.front < 0 {
			pos.front = 0
		}
	}
	pos.cumTrade = 0
}

// backVolume estimates the volume behind the order at its price. In the
// absence of L3 order-level visibility this defaults to the order's own
// original quantity, matching the conservative assumption used when
// only L2 depth is available; queue models fed by an L3 book (see
// exchproc's L3-FIFO variant) do not use Probability at all.
func backVolume(o *order.Order) float64 {
	return o.OriginalQty
}
