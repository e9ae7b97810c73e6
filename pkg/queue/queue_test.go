package queue

import (
	"testing"

	"github.com/hftbacktest-go/hftbacktest/pkg/depth"
	"github.com/hftbacktest-go/hftbacktest/pkg/order"
)

func TestRiskAverseQueueAdvancesOnTrade(t *testing.T) {
	d := depth.NewL2(depth.Ticker{TickSize: 0.01, LotSize: 0.001})
	d.Update(depth.SideBuy, 99.99, 10.0, 0)

	o := order.New(1, order.Buy, order.Limit, order.GTC, depth.Ticker{TickSize: 0.01, LotSize: 0.001}, 99.99, 1.0, 0)
	m := RiskAverse{}
	m.NewOrder(o, d)

	pos := o.Queue.(*riskAversePos)
	if pos.front != 10.0 {
		t.Fatalf("expected front-queue seeded to 10.0, got %v", pos.front)
	}

	m.Trade(o, 7.0, d)
	if pos.front != 3.0 {
		t.Fatalf("expected front-queue 3.0 after trade, got %v", pos.front)
	}
	if pos.Fillable() {
		t.Fatalf("order should not be fillable yet")
	}

	m.Trade(o, 3.0, d)
	if !pos.Fillable() {
		t.Fatalf("order should be fillable once front-queue reaches zero")
	}
}

func TestProbWeightConstructors(t *testing.T) {
	p := ProbBackOverSum(PowWeight(2))
	if v := p(0, 0); v != 0 {
		t.Fatalf("expected 0 for degenerate input, got %v", v)
	}
	if v := p(4, 4); v < 0.49 || v > 0.51 {
		t.Fatalf("expected ~0.5 for symmetric back/front, got %v", v)
	}

	logP := ProbOneMinusFrontRatio(LogWeight())
	if v := logP(1, 1); v <= 0 || v >= 1 {
		t.Fatalf("expected probability strictly between 0 and 1, got %v", v)
	}
}
