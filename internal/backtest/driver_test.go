package backtest

import (
	"testing"

	"github.com/hftbacktest-go/hftbacktest/pkg/depth"
	"github.com/hftbacktest-go/hftbacktest/pkg/event"
	"github.com/hftbacktest-go/hftbacktest/pkg/latency"
	"github.com/hftbacktest-go/hftbacktest/pkg/order"
	"github.com/hftbacktest-go/hftbacktest/pkg/queue"

	"github.com/hftbacktest-go/hftbacktest/internal/exchproc"
	"github.com/hftbacktest-go/hftbacktest/internal/fees"
)

func newSingleAssetDriver(t *testing.T) *Driver {
	t.Helper()
	ticker := depth.Ticker{TickSize: 0.01, LotSize: 1}
	records := []event.Record{
		{
			Kind:    event.KindDepth | event.Sell | event.LocalVisible | event.ExchVisible,
			Price:   100.01,
			Qty:     5,
			LocalTs: 0,
			ExchTs:  0,
		},
	}
	cfg := AssetConfig{
		Ticker:  ticker,
		Records: records,
		Latency: latency.Constant{Entry: 10, Response: 10},
		ExchangeConfig: exchproc.Config{
			Ticker: ticker,
			Fill:   exchproc.NoPartialFill,
			Book:   exchproc.L2Book,
			Queue:  queue.RiskAverse{},
		},
		FeeModel:  fees.TradingValue{Common: fees.CommonFees{TakerFee: 0.001}},
		AssetType: fees.Linear,
	}
	d, err := New([]AssetConfig{cfg})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestGotoAppliesSeedFeedThenFillsCrossingOrder(t *testing.T) {
	d := newSingleAssetDriver(t)

	if err := d.SubmitBuyOrder(0, 1, 100.01, 2, order.GTC, order.Limit, false); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := d.Elapse(20); err != nil {
		t.Fatalf("elapse: %v", err)
	}

	if d.CurrentTimestamp() != 20 {
		t.Fatalf("expected clock at 20, got %d", d.CurrentTimestamp())
	}

	o, ok := d.Orders(0)[1]
	if !ok {
		t.Fatalf("expected order 1 tracked locally")
	}
	if o.Status != order.StatusFilled || o.ExecutedQty != 2 {
		t.Fatalf("expected filled qty=2, got status=%v exec=%v", o.Status, o.ExecutedQty)
	}

	sv := d.StateValues(0)
	if sv.Position != 2 {
		t.Fatalf("expected position=2, got %v", sv.Position)
	}
	if sv.TradeCount != 1 {
		t.Fatalf("expected one trade recorded, got %d", sv.TradeCount)
	}
}

func TestSubmitBuyOrderWaitBlocksUntilResponse(t *testing.T) {
	d := newSingleAssetDriver(t)

	// Advance past the seed feed first so the book is populated before
	// the synchronous submit tries to match against it.
	if _, err := d.WaitNextFeed(false, 1); err != nil {
		t.Fatalf("wait next feed (local): %v", err)
	}
	if _, err := d.WaitNextFeed(false, 1); err != nil {
		t.Fatalf("wait next feed (exch): %v", err)
	}

	if err := d.SubmitBuyOrder(0, 1, 100.01, 2, order.GTC, order.Limit, true); err != nil {
		t.Fatalf("submit with wait: %v", err)
	}

	o := d.Orders(0)[1]
	if o.Status != order.StatusFilled {
		t.Fatalf("expected wait=true to block until Filled, got %v", o.Status)
	}
}

func TestElapseBTBehavesLikeElapse(t *testing.T) {
	d := newSingleAssetDriver(t)
	if err := d.SubmitBuyOrder(0, 1, 100.01, 2, order.GTC, order.Limit, false); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := d.ElapseBT(20); err != nil {
		t.Fatalf("elapse_bt: %v", err)
	}
	if d.Orders(0)[1].Status != order.StatusFilled {
		t.Fatalf("expected elapse_bt to drive the same goto loop as elapse")
	}
}

func TestCancelOrderWait(t *testing.T) {
	ticker := depth.Ticker{TickSize: 0.01, LotSize: 1}
	records := []event.Record{
		{
			Kind:    event.KindDepth | event.Buy | event.LocalVisible | event.ExchVisible,
			Price:   99.99,
			Qty:     10,
			LocalTs: 0,
			ExchTs:  0,
		},
	}
	cfg := AssetConfig{
		Ticker:  ticker,
		Records: records,
		Latency: latency.Constant{Entry: 10, Response: 10},
		ExchangeConfig: exchproc.Config{
			Ticker: ticker,
			Fill:   exchproc.NoPartialFill,
			Book:   exchproc.L2Book,
			Queue:  queue.RiskAverse{},
		},
		AssetType: fees.Linear,
	}
	d, err := New([]AssetConfig{cfg})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := d.SubmitBuyOrder(0, 1, 99.98, 1, order.GTC, order.Limit, true); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if d.Orders(0)[1].Status != order.StatusNew {
		t.Fatalf("expected resting New order, got %v", d.Orders(0)[1].Status)
	}

	if err := d.Cancel(0, 1, true); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if d.Orders(0)[1].Status != order.StatusCanceled {
		t.Fatalf("expected Canceled after wait, got %v", d.Orders(0)[1].Status)
	}
}
